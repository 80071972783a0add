package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/bus"
	"github.com/pigeon-chat/pigeon/internal/metrics"
	"github.com/pigeon-chat/pigeon/internal/model"
	"github.com/pigeon-chat/pigeon/internal/sync"
)

// Sender drains the outbox collection and delivers messages to the backend.
// Delivery is an insert into the messages collection; the realtime change
// that insert produces is the self-echo the synchronizer suppresses.
type Sender struct {
	be     backend.Facade
	sync   *sync.Synchronizer
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	senderName string
}

// NewSender creates a new outbox sender.
func NewSender(be backend.Facade, s *sync.Synchronizer, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		be:     be,
		sync:   s,
		bus:    b,
		logger: logger,
	}
}

// Queue enqueues a text message for delivery and returns its client id.
func (s *Sender) Queue(ctx context.Context, chatID, body string) (string, error) {
	clientMsgID := uuid.New().String()
	now := time.Now().UnixMilli()
	err := s.be.Insert(ctx, backend.CollOutbox, backend.Record{
		"client_msg_id": clientMsgID,
		"chat_id":       chatID,
		"body":          body,
		"status":        "queued",
		"error_message": "",
		"created_at":    now,
		"updated_at":    now,
	})
	if err != nil {
		return "", err
	}
	s.publish(bus.KindMessageQueued, map[string]string{"chat_id": chatID, "msg_id": clientMsgID})
	return clientMsgID, nil
}

// Start begins polling the outbox for queued messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending delivers every queued outbox entry once.
func (s *Sender) ProcessPending(ctx context.Context) {
	pending, err := s.be.Query(ctx, backend.CollOutbox,
		backend.Filter{"status": "queued"},
		&backend.Options{OrderBy: "created_at", Ascending: true})
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		s.deliver(ctx, entry)
	}
}

func (s *Sender) deliver(ctx context.Context, entry backend.Record) {
	clientMsgID, _ := entry["client_msg_id"].(string)
	chatID, _ := entry["chat_id"].(string)
	body, _ := entry["body"].(string)

	if err := s.setStatus(ctx, clientMsgID, "sending", ""); err != nil {
		s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", clientMsgID))
		return
	}

	msg := model.Message{
		ID:         clientMsgID,
		ChatID:     chatID,
		SenderID:   s.sync.UserID(),
		SenderName: s.displayName(ctx),
		Body:       body,
		SentAt:     time.Now(),
	}

	// Optimistic: the message shows locally, and its id is remembered so
	// the realtime echo of the insert below is discarded.
	s.sync.ApplyLocalMessage(msg)

	if err := s.be.Insert(ctx, backend.CollMessages, sync.EncodeMessage(msg)); err != nil {
		s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", clientMsgID))
		_ = s.setStatus(ctx, clientMsgID, "failed", err.Error())
		s.publish(bus.KindMessageFailed, map[string]string{
			"client_msg_id": clientMsgID,
			"error":         err.Error(),
		})
		return
	}

	if err := s.setStatus(ctx, clientMsgID, "sent", ""); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", clientMsgID))
	}

	metrics.MessagesSent.Inc()
	s.logger.Info("message sent", zap.String("client_msg_id", clientMsgID), zap.String("chat_id", chatID))
	s.publish(bus.KindMessageSent, map[string]string{
		"client_msg_id": clientMsgID,
		"chat_id":       chatID,
	})
}

func (s *Sender) setStatus(ctx context.Context, clientMsgID, status, errMsg string) error {
	_, err := s.be.Update(ctx, backend.CollOutbox, backend.Record{
		"status":        status,
		"error_message": errMsg,
		"updated_at":    time.Now().UnixMilli(),
	}, backend.Filter{"client_msg_id": clientMsgID})
	return err
}

func (s *Sender) displayName(ctx context.Context) string {
	if s.senderName != "" {
		return s.senderName
	}
	rows, err := s.be.Query(ctx, backend.CollUsers, backend.Filter{"id": s.sync.UserID()}, nil)
	if err == nil && len(rows) > 0 {
		s.senderName, _ = rows[0]["name"].(string)
	}
	return s.senderName
}

func (s *Sender) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
