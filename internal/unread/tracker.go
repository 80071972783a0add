// Package unread derives per-chat unread counts from the participant read
// watermark and writes the watermark back through the backend facade.
package unread

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/model"
)

// Count returns the number of messages authored by someone other than self
// with a timestamp strictly greater than the watermark. A nil watermark
// means never read: every foreign message counts.
func Count(msgs []model.Message, watermark *time.Time, selfID string) int {
	n := 0
	for i := range msgs {
		if msgs[i].SenderID == selfID {
			continue
		}
		if watermark == nil || msgs[i].SentAt.After(*watermark) {
			n++
		}
	}
	return n
}

// Tracker writes read watermarks. The first write failing with a
// missing-column signature disables watermark writes for the rest of the
// session; unread counting then degrades to the nil-watermark behavior.
type Tracker struct {
	be     backend.Facade
	logger *zap.Logger

	mu        sync.Mutex
	enabled   bool
	onDisable func()
}

// NewTracker creates a tracker with watermark writes enabled.
func NewTracker(be backend.Facade, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{be: be, logger: logger, enabled: true}
}

// OnDisable registers a hook invoked once when watermark support is
// detected absent.
func (t *Tracker) OnDisable(fn func()) {
	t.mu.Lock()
	t.onDisable = fn
	t.mu.Unlock()
}

// Enabled reports whether watermark writes are still on for this session.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// CountFor computes the unread count for a chat, honoring the session's
// watermark capability.
func (t *Tracker) CountFor(c *model.Chat, selfID string) int {
	wm := c.ParticipantRead
	if !t.Enabled() {
		wm = nil
	}
	return Count(c.Messages, wm, selfID)
}

// MarkRead writes now as the (user, chat) watermark. A missing-column
// failure permanently disables watermark writes and is not reported as an
// error; any other failure is logged and returned, and the caller's
// optimistically reset count stands either way.
func (t *Tracker) MarkRead(ctx context.Context, chatID, userID string) error {
	if !t.Enabled() {
		return nil
	}

	now := time.Now().UnixMilli()
	_, err := t.be.Update(ctx, backend.CollParticipants,
		backend.Record{"last_read": now},
		backend.Filter{"chat_id": chatID, "user_id": userID})
	if err == nil {
		return nil
	}

	if backend.IsMissingColumn(err) {
		t.disable()
		t.logger.Warn("read watermark column absent, disabling watermark writes for this session",
			zap.String("chat_id", chatID), zap.Error(err))
		return nil
	}

	t.logger.Error("failed to write read watermark",
		zap.String("chat_id", chatID), zap.String("user_id", userID), zap.Error(err))
	return err
}

func (t *Tracker) disable() {
	t.mu.Lock()
	wasEnabled := t.enabled
	t.enabled = false
	fn := t.onDisable
	t.mu.Unlock()
	if wasEnabled && fn != nil {
		fn()
	}
}
