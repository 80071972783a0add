// Package seed populates a fresh profile with demo data so the client has
// something to show before real contacts exist.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
)

// Options controls how much demo data is generated.
type Options struct {
	SelfID   string
	Contacts int
	Messages int // per chat
}

// Run seeds users, chats, messages and labels. It is a no-op when the
// datastore already has chats.
func Run(ctx context.Context, be backend.Facade, logger *zap.Logger, opts Options) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Contacts <= 0 {
		opts.Contacts = 5
	}
	if opts.Messages <= 0 {
		opts.Messages = 8
	}

	existing, err := be.Query(ctx, backend.CollChats, nil, &backend.Options{Limit: 1})
	if err != nil {
		return fmt.Errorf("probe chats: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("datastore already populated, skipping seed")
		return nil
	}

	gofakeit.Seed(time.Now().UnixNano())

	labels := []backend.Record{
		{"id": uuid.New().String(), "name": "Work", "color": "blue"},
		{"id": uuid.New().String(), "name": "Family", "color": "green"},
	}
	if err := be.Insert(ctx, backend.CollLabels, labels...); err != nil {
		return fmt.Errorf("seed labels: %w", err)
	}

	for i := 0; i < opts.Contacts; i++ {
		contactID := uuid.New().String()
		name := gofakeit.Name()
		if err := be.Insert(ctx, backend.CollUsers, backend.Record{
			"id":     contactID,
			"name":   name,
			"phone":  gofakeit.Phone(),
			"email":  gofakeit.Email(),
			"status": gofakeit.Sentence(4),
		}); err != nil {
			return fmt.Errorf("seed user: %w", err)
		}

		res, err := be.Call(ctx, backend.ProcDirectChatFindOrCreate, backend.Record{
			"user_a": opts.SelfID,
			"user_b": contactID,
		})
		if err != nil {
			return fmt.Errorf("seed chat: %w", err)
		}
		chatID, _ := res["chat_id"].(string)

		base := time.Now().Add(-time.Duration(opts.Contacts-i) * time.Hour)
		msgs := make([]backend.Record, 0, opts.Messages)
		for j := 0; j < opts.Messages; j++ {
			sender, senderName := contactID, name
			if j%2 == 1 {
				sender, senderName = opts.SelfID, "You"
			}
			msgs = append(msgs, backend.Record{
				"id":          uuid.New().String(),
				"chat_id":     chatID,
				"sender_id":   sender,
				"sender_name": senderName,
				"body":        gofakeit.Sentence(gofakeit.Number(3, 12)),
				"sent_at":     base.Add(time.Duration(j) * time.Minute).UnixMilli(),
			})
		}
		if err := be.Insert(ctx, backend.CollMessages, msgs...); err != nil {
			return fmt.Errorf("seed messages: %w", err)
		}

		// Tag every other chat with a label.
		if i%2 == 0 {
			labelID, _ := labels[i%len(labels)]["id"].(string)
			if err := be.Insert(ctx, backend.CollChatLabels, backend.Record{
				"chat_id": chatID, "label_id": labelID,
			}); err != nil {
				return fmt.Errorf("seed chat label: %w", err)
			}
		}
	}

	logger.Info("seeded demo data", zap.Int("contacts", opts.Contacts))
	return nil
}
