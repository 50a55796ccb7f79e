// Package telegram envolve a Bot API do Telegram: envio de respostas, long
// polling, webhook e registro de comandos.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"studybot/internal/domain"
)

const pollTimeout = 30

// Client fala com a Bot API.
type Client struct {
	bot      *tgbotapi.BotAPI
	log      *zap.Logger
	keyboard tgbotapi.ReplyKeyboardMarkup
}

type options struct {
	endpoint string
	http     tgbotapi.HTTPClient
	debug    bool
}

// Option configura o Client.
type Option func(*options)

// WithEndpoint troca a URL da API (formato de tgbotapi.APIEndpoint).
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithHTTPClient troca o cliente HTTP.
func WithHTTPClient(c tgbotapi.HTTPClient) Option {
	return func(o *options) { o.http = c }
}

// WithDebug liga o log de requisições da biblioteca.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// New autentica o bot (getMe) e prepara o teclado do menu.
func New(token string, menu [][]string, log *zap.Logger, opts ...Option) (*Client, error) {
	o := options{endpoint: tgbotapi.APIEndpoint, http: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint, o.http)
	if err != nil {
		return nil, fmt.Errorf("erro ao autenticar bot no Telegram: %w", err)
	}
	bot.Debug = o.debug

	log = log.Named("telegram")
	log.Info("bot autenticado", zap.String("username", bot.Self.UserName))
	return &Client{bot: bot, log: log, keyboard: buildKeyboard(menu)}, nil
}

func buildKeyboard(menu [][]string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(menu))
	for _, labels := range menu {
		row := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for _, l := range labels {
			row = append(row, tgbotapi.NewKeyboardButton(l))
		}
		rows = append(rows, row)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// Username devolve o @ do bot.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

// Send envia a resposta, com MarkdownV2 e teclado quando pedido.
func (c *Client) Send(ctx context.Context, msg domain.OutgoingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdownV2
	}
	if msg.Keyboard {
		cfg.ReplyMarkup = c.keyboard
	}

	if _, err := c.bot.Send(cfg); err != nil {
		return fmt.Errorf("erro ao enviar mensagem para %d: %w", msg.ChatID, err)
	}
	return nil
}

// SetCommands registra o menu de comandos (setMyCommands).
func (c *Client) SetCommands(cmds []domain.BotCommand) error {
	list := make([]tgbotapi.BotCommand, 0, len(cmds))
	for _, cmd := range cmds {
		list = append(list, tgbotapi.BotCommand{Command: cmd.Command, Description: cmd.Description})
	}
	if _, err := c.bot.Request(tgbotapi.NewSetMyCommands(list...)); err != nil {
		return fmt.Errorf("erro ao registrar comandos: %w", err)
	}
	return nil
}

// SetWebhook aponta o Telegram para a URL pública informada.
func (c *Client) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("url de webhook invalida: %w", err)
	}
	if _, err := c.bot.Request(wh); err != nil {
		return fmt.Errorf("erro ao registrar webhook: %w", err)
	}
	c.log.Info("webhook registrado no Telegram", zap.String("url", url))
	return nil
}

// DeleteWebhook remove o webhook; necessário antes de usar long polling.
func (c *Client) DeleteWebhook() error {
	if _, err := c.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("erro ao remover webhook: %w", err)
	}
	return nil
}

// Poll recebe updates por long polling e os entrega em ordem, um por vez,
// até o contexto ser cancelado.
func (c *Client) Poll(ctx context.Context, handle func(context.Context, domain.IncomingMessage)) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := c.bot.GetUpdatesChan(u)
	defer c.bot.StopReceivingUpdates()

	c.log.Info("long polling iniciado")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("long polling encerrado")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if msg, ok := ToIncoming(update); ok {
				handle(ctx, msg)
			}
		}
	}
}

// ToIncoming converte um update em mensagem. Só mensagens e posts de canal com
// texto (ou legenda) interessam.
func ToIncoming(u tgbotapi.Update) (domain.IncomingMessage, bool) {
	m := u.Message
	if m == nil {
		m = u.ChannelPost
	}
	if m == nil || m.Chat == nil {
		return domain.IncomingMessage{}, false
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if strings.TrimSpace(text) == "" {
		return domain.IncomingMessage{}, false
	}

	msg := domain.IncomingMessage{
		ChatID:    m.Chat.ID,
		ChatType:  chatType(m.Chat),
		ChatTitle: m.Chat.Title,
		Text:      text,
		Date:      m.Time(),
	}
	if msg.ChatTitle == "" {
		msg.ChatTitle = m.Chat.UserName
	}
	if m.From != nil {
		msg.UserID = m.From.ID
		msg.UserName = m.From.FirstName
	} else {
		msg.UserID = m.Chat.ID
	}
	return msg, true
}

func chatType(c *tgbotapi.Chat) domain.ChatType {
	switch {
	case c.IsPrivate():
		return domain.ChatPrivate
	case c.IsChannel():
		return domain.ChatChannel
	default:
		return domain.ChatGroup
	}
}
