package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"studybot/internal/domain"
	"studybot/pkg/telegram"
)

// maxBody limita o tamanho de um update aceito.
const maxBody = 1 << 20

// Processor trata uma mensagem recebida.
type Processor interface {
	ProcessMessage(ctx context.Context, msg domain.IncomingMessage)
}

// WebhookHandler recebe os updates que o Telegram envia por POST.
type WebhookHandler struct {
	processor Processor
	log       *zap.Logger
}

// NewWebhookHandler cria o handler.
func NewWebhookHandler(p Processor, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{processor: p, log: log.Named("webhook")}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Metodo nao permitido", http.StatusMethodNotAllowed)
		return
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "Erro ao ler body", http.StatusInternalServerError)
		return
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(bodyBytes, &update); err != nil {
		h.log.Warn("update invalido", zap.Error(err))
		http.Error(w, "Erro ao decodificar o update", http.StatusBadRequest)
		return
	}

	msg, ok := telegram.ToIncoming(update)
	if ok {
		h.processor.ProcessMessage(r.Context(), msg)
	}
	w.WriteHeader(http.StatusOK)
}

// Healthz responde 200 enquanto o processo estiver de pé.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

// Routes monta as rotas do servidor HTTP.
func Routes(h *WebhookHandler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/webhook", h)
	mux.HandleFunc("/healthz", Healthz)
	return mux
}
