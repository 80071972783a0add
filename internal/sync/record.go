package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/model"
)

func recString(r backend.Record, key string) string {
	s, _ := r[key].(string)
	return s
}

func recInt64(r backend.Record, key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func recBool(r backend.Record, key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// recTime interprets a unix-millisecond field; zero or absent yields the
// zero time.
func recTime(r backend.Record, key string) time.Time {
	ms := recInt64(r, key)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// recTimePtr is recTime but distinguishing "never set" as nil.
func recTimePtr(r backend.Record, key string) *time.Time {
	if r[key] == nil {
		return nil
	}
	ms := recInt64(r, key)
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

func decodeMessage(r backend.Record) (model.Message, error) {
	m := model.Message{
		ID:         recString(r, "id"),
		ChatID:     recString(r, "chat_id"),
		SenderID:   recString(r, "sender_id"),
		SenderName: recString(r, "sender_name"),
		Body:       recString(r, "body"),
		SentAt:     recTime(r, "sent_at"),
	}
	if m.ID == "" || m.ChatID == "" {
		return model.Message{}, fmt.Errorf("message record missing id or chat_id")
	}
	if raw := recString(r, "attachments"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.Attachments); err != nil {
			return model.Message{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return m, nil
}

// EncodeMessage builds the backend record for a message. Attachments travel
// as a JSON field so realtime changes carry them inline.
func EncodeMessage(m model.Message) backend.Record {
	rec := backend.Record{
		"id":          m.ID,
		"chat_id":     m.ChatID,
		"sender_id":   m.SenderID,
		"sender_name": m.SenderName,
		"body":        m.Body,
		"attachments": "",
		"sent_at":     m.SentAt.UnixMilli(),
	}
	if len(m.Attachments) > 0 {
		raw, err := json.Marshal(m.Attachments)
		if err == nil {
			rec["attachments"] = string(raw)
		}
	}
	return rec
}
