package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"studybot/internal/domain"
	"studybot/internal/sessions"
	"studybot/internal/utils"
)

// Sender entrega uma resposta ao chat.
type Sender interface {
	Send(ctx context.Context, msg domain.OutgoingMessage) error
}

// Commands é a lista registrada no menu de comandos do bot.
var Commands = []domain.BotCommand{
	{Command: "start", Description: "Welcome message and menu"},
	{Command: "help", Description: "How to use the bot"},
	{Command: "add", Description: "Add a term: /add Term - Definition"},
	{Command: "search", Description: "Search a term across all channels"},
	{Command: "list", Description: "List every term"},
	{Command: "delete", Description: "Delete a term from every base"},
	{Command: "stats", Description: "Overall statistics"},
	{Command: "channels", Description: "Channels I learn from"},
	{Command: "channel_stats", Description: "Statistics per channel"},
	{Command: "cancel", Description: "Cancel the current add or delete"},
}

// MessageService despacha cada mensagem recebida: comandos, botões do menu,
// etapas de conversa e posts de canal.
type MessageService struct {
	knowledge *KnowledgeService
	sessions  *sessions.Store
	sender    Sender
	builder   utils.Builder
	log       *zap.Logger
	botName   string
}

// MessageOption configura o MessageService.
type MessageOption func(*MessageService)

// WithBotUsername faz o bot ignorar comandos endereçados a outro bot (/cmd@outro).
func WithBotUsername(name string) MessageOption {
	return func(m *MessageService) { m.botName = strings.TrimPrefix(name, "@") }
}

// NewMessageService monta o despachante.
func NewMessageService(k *KnowledgeService, s *sessions.Store, sender Sender, builder utils.Builder, log *zap.Logger, opts ...MessageOption) *MessageService {
	m := &MessageService{
		knowledge: k,
		sessions:  s,
		sender:    sender,
		builder:   builder,
		log:       log.Named("messages"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ProcessMessage trata uma mensagem até o fim. Um panic no meio do caminho é
// recuperado: o estado do usuário volta a Idle e ele recebe uma falha genérica.
func (m *MessageService) ProcessMessage(ctx context.Context, msg domain.IncomingMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic ao processar mensagem",
				zap.Any("panic", r), zap.Stack("stack"),
				zap.Int64("chat_id", msg.ChatID), zap.Int64("user_id", msg.UserID))
			if msg.ChatType == domain.ChatChannel {
				return
			}
			m.sessions.Delete(msg.UserID)
			m.reply(ctx, msg, m.builder.BuildGenericFailure())
		}
	}()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.ChatType == domain.ChatChannel {
		m.processChannelPost(ctx, msg)
		return
	}

	m.log.Debug("mensagem recebida",
		zap.Int64("user_id", msg.UserID), zap.String("user", msg.UserName), zap.String("text", text))

	if strings.HasPrefix(text, "/") {
		name, target, args := splitCommand(text)
		if target != "" && m.botName != "" && !strings.EqualFold(target, m.botName) {
			m.log.Debug("comando para outro bot ignorado", zap.String("command", name), zap.String("bot", target))
			return
		}
		m.processCommand(ctx, msg, name, args)
		return
	}

	// em grupos só os comandos são atendidos
	if msg.ChatType != domain.ChatPrivate {
		return
	}

	if m.processButton(ctx, msg, text) {
		return
	}

	// a etapa de remoção é consumida numa única operação do Store
	if m.sessions.GetAndClearIf(msg.UserID, sessions.AwaitingDeleteTarget) {
		m.deleteTerm(ctx, msg, text)
		return
	}
	if m.sessions.Get(msg.UserID) == sessions.AwaitingTerm {
		m.addTerm(ctx, msg, text, true)
		return
	}
	m.search(ctx, msg, text)
}

func (m *MessageService) processChannelPost(ctx context.Context, msg domain.IncomingMessage) {
	results, err := m.knowledge.Ingest(ctx, msg.ChatID, msg.ChatTitle, msg.Text, msg.Date)
	if err != nil {
		m.log.Error("erro ao aprender post do canal",
			zap.Int64("chat_id", msg.ChatID), zap.String("channel", msg.ChatTitle), zap.Error(err))
		return
	}
	if len(results) == 0 {
		m.log.Debug("post de canal ignorado", zap.Int64("chat_id", msg.ChatID))
	}
}

// splitCommand separa "/cmd@bot resto" em "cmd", "bot" e "resto".
func splitCommand(text string) (name, target, args string) {
	head, args, _ := strings.Cut(text, " ")
	head, target, _ = strings.Cut(head, "@")
	return strings.ToLower(strings.TrimPrefix(head, "/")), target, strings.TrimSpace(args)
}

func (m *MessageService) processCommand(ctx context.Context, msg domain.IncomingMessage, name, args string) {
	if name != "cancel" {
		// um comando novo abandona qualquer etapa pendente
		m.sessions.Delete(msg.UserID)
	}

	switch name {
	case "start":
		m.reply(ctx, msg, m.builder.BuildStart(msg.UserName))
	case "help":
		m.reply(ctx, msg, m.builder.BuildHelp())
	case "add", "save":
		if args == "" {
			m.sessions.Set(msg.UserID, sessions.AwaitingTerm)
			m.reply(ctx, msg, m.builder.BuildAddPrompt())
			return
		}
		m.addTerm(ctx, msg, args, false)
	case "search":
		if args == "" {
			m.reply(ctx, msg, m.builder.BuildSearchPrompt())
			return
		}
		m.search(ctx, msg, args)
	case "delete":
		if args == "" {
			m.sessions.Set(msg.UserID, sessions.AwaitingDeleteTarget)
			m.reply(ctx, msg, m.builder.BuildDeletePrompt())
			return
		}
		m.deleteTerm(ctx, msg, args)
	case "list":
		m.list(ctx, msg)
	case "stats":
		m.stats(ctx, msg)
	case "channels":
		m.channels(ctx, msg, false)
	case "channel_stats":
		m.channels(ctx, msg, true)
	case "cancel":
		m.cancel(ctx, msg)
	default:
		m.reply(ctx, msg, m.builder.BuildUnknownCommand("/"+name))
	}
}

// processButton trata os botões do teclado. Retorna false se o texto não é um botão.
func (m *MessageService) processButton(ctx context.Context, msg domain.IncomingMessage, text string) bool {
	switch text {
	case utils.ButtonSearch:
		m.sessions.Delete(msg.UserID)
		m.reply(ctx, msg, m.builder.BuildSearchPrompt())
	case utils.ButtonList:
		m.sessions.Delete(msg.UserID)
		m.list(ctx, msg)
	case utils.ButtonChannels:
		m.sessions.Delete(msg.UserID)
		m.channels(ctx, msg, false)
	case utils.ButtonStats:
		m.sessions.Delete(msg.UserID)
		m.stats(ctx, msg)
	case utils.ButtonAdd:
		m.sessions.Set(msg.UserID, sessions.AwaitingTerm)
		m.reply(ctx, msg, m.builder.BuildAddPrompt())
	case utils.ButtonDelete:
		m.sessions.Set(msg.UserID, sessions.AwaitingDeleteTarget)
		m.reply(ctx, msg, m.builder.BuildDeletePrompt())
	case utils.ButtonHelp:
		m.sessions.Delete(msg.UserID)
		m.reply(ctx, msg, m.builder.BuildHelp())
	case utils.ButtonCancel:
		m.cancel(ctx, msg)
	default:
		return false
	}
	return true
}

func (m *MessageService) cancel(ctx context.Context, msg domain.IncomingMessage) {
	pending := m.sessions.Get(msg.UserID) != sessions.Idle
	m.sessions.Delete(msg.UserID)
	m.reply(ctx, msg, m.builder.BuildCancelled(pending))
}

// addTerm grava o texto. Em conversa (fromState), falha de parse mantém a etapa.
func (m *MessageService) addTerm(ctx context.Context, msg domain.IncomingMessage, text string, fromState bool) {
	res, err := m.knowledge.AddManualText(ctx, text, msg.Date)
	if errors.Is(err, ErrUnparsed) {
		m.reply(ctx, msg, m.builder.BuildParseFailure())
		return
	}
	if fromState {
		m.sessions.Delete(msg.UserID)
	}
	if err != nil {
		m.fail(ctx, msg, "erro ao adicionar termo", err)
		return
	}
	m.reply(ctx, msg, m.builder.BuildAdded(res))
}

func (m *MessageService) deleteTerm(ctx context.Context, msg domain.IncomingMessage, term string) {
	sources, err := m.knowledge.Delete(ctx, term)
	switch {
	case errors.Is(err, ErrNotFound):
		m.reply(ctx, msg, m.builder.BuildNotFound(term))
	case errors.Is(err, ErrEmptyQuery):
		m.reply(ctx, msg, m.builder.BuildDeletePrompt())
	case err != nil:
		m.fail(ctx, msg, "erro ao remover termo", err)
	default:
		m.reply(ctx, msg, m.builder.BuildDeleted(term, sources))
	}
}

func (m *MessageService) search(ctx context.Context, msg domain.IncomingMessage, query string) {
	results, err := m.knowledge.Search(ctx, query)
	switch {
	case errors.Is(err, ErrEmptyQuery):
		m.reply(ctx, msg, m.builder.BuildSearchPrompt())
	case err != nil:
		m.fail(ctx, msg, "erro ao buscar termo", err)
	default:
		m.reply(ctx, msg, m.builder.BuildSearchResults(query, results))
	}
}

func (m *MessageService) list(ctx context.Context, msg domain.IncomingMessage) {
	terms, err := m.knowledge.List(ctx)
	if err != nil {
		m.fail(ctx, msg, "erro ao listar termos", err)
		return
	}
	for _, chunk := range m.builder.BuildList(terms) {
		m.reply(ctx, msg, chunk)
	}
}

func (m *MessageService) stats(ctx context.Context, msg domain.IncomingMessage) {
	st, err := m.knowledge.Stats(ctx)
	if err != nil {
		m.fail(ctx, msg, "erro ao calcular estatísticas", err)
		return
	}
	m.reply(ctx, msg, m.builder.BuildStats(st))
}

func (m *MessageService) channels(ctx context.Context, msg domain.IncomingMessage, detailed bool) {
	chs, err := m.knowledge.Channels(ctx)
	if err != nil {
		m.fail(ctx, msg, "erro ao listar canais", err)
		return
	}
	if detailed {
		m.reply(ctx, msg, m.builder.BuildChannelStats(chs))
		return
	}
	m.reply(ctx, msg, m.builder.BuildChannels(chs))
}

func (m *MessageService) fail(ctx context.Context, msg domain.IncomingMessage, what string, err error) {
	m.log.Error(what, zap.Int64("user_id", msg.UserID), zap.Error(err))
	m.sessions.Delete(msg.UserID)
	m.reply(ctx, msg, m.builder.BuildGenericFailure())
}

func (m *MessageService) reply(ctx context.Context, msg domain.IncomingMessage, text string) {
	out := domain.OutgoingMessage{
		ChatID:   msg.ChatID,
		Text:     text,
		Markdown: m.builder.Markdown(),
		Keyboard: msg.ChatType == domain.ChatPrivate,
	}
	if err := m.sender.Send(ctx, out); err != nil {
		m.log.Error("erro ao enviar resposta", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}
}
