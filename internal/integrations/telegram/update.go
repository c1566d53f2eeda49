package telegram

import (
	"strings"

	"strategybot/internal/domain"
)

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

type CallbackQuery struct {
	ID      string           `json:"id"`
	From    User             `json:"from"`
	Message *IncomingMessage `json:"message,omitempty"`
	Data    string           `json:"data,omitempty"`
}

// Update is the subset of the Bot API update object the bot consumes.
type Update struct {
	UpdateID      int64            `json:"update_id"`
	Msg           *IncomingMessage `json:"message,omitempty"`
	CallbackQuery *CallbackQuery   `json:"callback_query,omitempty"`
}

// Message converts u into a domain message. Updates without a sender,
// messages without text and bot senders are dropped.
func (u Update) Message() (domain.Message, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From.IsBot {
			return domain.Message{}, false
		}
		chatID := q.From.ID
		if q.Message != nil {
			chatID = q.Message.Chat.ID
		}
		return domain.Message{
			UserID:     q.From.ID,
			ChatID:     chatID,
			FirstName:  q.From.FirstName,
			CallbackID: q.ID,
			Data:       q.Data,
		}, true
	case u.Msg != nil:
		m := u.Msg
		if m.From == nil || m.From.IsBot || strings.TrimSpace(m.Text) == "" {
			return domain.Message{}, false
		}
		return domain.Message{
			UserID:    m.From.ID,
			ChatID:    m.Chat.ID,
			FirstName: m.From.FirstName,
			Text:      m.Text,
		}, true
	default:
		return domain.Message{}, false
	}
}
