package httpapi

import (
	"time"

	"github.com/pigeon-chat/pigeon/internal/model"
)

type labelView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type messageView struct {
	ID          string             `json:"id"`
	ChatID      string             `json:"chat_id"`
	SenderID    string             `json:"sender_id"`
	SenderName  string             `json:"sender_name"`
	Body        string             `json:"body"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
	SentAt      time.Time          `json:"sent_at"`
}

type chatView struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	AvatarURL     string      `json:"avatar_url,omitempty"`
	IsGroup       bool        `json:"is_group"`
	Participants  []string    `json:"participants,omitempty"`
	Labels        []labelView `json:"labels"`
	LastMessage   string      `json:"last_message"`
	LastMessageAt time.Time   `json:"last_message_at"`
	UnreadCount   int         `json:"unread_count"`
}

func labelViews(labels []model.Label) []labelView {
	out := make([]labelView, 0, len(labels))
	for _, l := range labels {
		out = append(out, labelView{ID: l.ID, Name: l.Name, Color: l.Color})
	}
	return out
}

func messageViews(msgs []model.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			ID:          m.ID,
			ChatID:      m.ChatID,
			SenderID:    m.SenderID,
			SenderName:  m.SenderName,
			Body:        m.Body,
			Attachments: m.Attachments,
			SentAt:      m.SentAt,
		})
	}
	return out
}

func chatViews(chats []*model.Chat) []chatView {
	out := make([]chatView, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatView{
			ID:            c.ID,
			Name:          c.Name,
			AvatarURL:     c.AvatarURL,
			IsGroup:       c.IsGroup,
			Participants:  c.Participants,
			Labels:        labelViews(c.Labels),
			LastMessage:   c.LastMessage,
			LastMessageAt: c.LastMessageAt,
			UnreadCount:   c.UnreadCount,
		})
	}
	return out
}
