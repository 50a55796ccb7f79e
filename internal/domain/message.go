package domain

import "time"

// ChatType classifica a origem de uma mensagem recebida.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// IncomingMessage é a mensagem já extraída do update do Telegram.
type IncomingMessage struct {
	ChatID    int64
	ChatType  ChatType
	ChatTitle string
	UserID    int64
	UserName  string
	Text      string
	Date      time.Time
}

// OutgoingMessage é uma resposta a ser enviada pelo transporte.
type OutgoingMessage struct {
	ChatID   int64
	Text     string
	Markdown bool
	Keyboard bool
}

// BotCommand é um comando exibido no menu do Telegram.
type BotCommand struct {
	Command     string
	Description string
}
