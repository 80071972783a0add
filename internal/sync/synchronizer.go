// Package sync owns the canonical in-memory chat collection and reconciles
// it against realtime backend changes and periodic full refreshes.
package sync

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/bus"
	"github.com/pigeon-chat/pigeon/internal/metrics"
	"github.com/pigeon-chat/pigeon/internal/model"
	"github.com/pigeon-chat/pigeon/internal/unread"
	gosync "sync"
)

// DefaultSuppressionWindow bounds how long a locally sent message id is
// remembered for self-echo suppression if the realtime echo never arrives.
const DefaultSuppressionWindow = 5 * time.Second

// ErrChatNotFound is returned when an operation references a chat that is
// not in the collection.
var ErrChatNotFound = errors.New("chat not found")

type labelSchema int

const (
	schemaUnknown labelSchema = iota
	schemaByID
	schemaByName
)

// Synchronizer reconciles the in-memory chat collection with the backend.
// All state mutation happens under one mutex with no I/O held inside it;
// realtime changes are applied serially by a single consumer goroutine.
type Synchronizer struct {
	be      backend.Facade
	bus     *bus.Bus
	tracker *unread.Tracker
	logger  *zap.Logger
	userID  string

	suppressWindow  time.Duration
	refreshInterval time.Duration

	mu            gosync.Mutex
	chats         map[string]*model.Chat
	focusedID     string
	justSentID    string
	suppressTimer *time.Timer
	refreshing    int
	journal       []model.Message
	labels        labelSchema

	cancel context.CancelFunc
}

// Options tunes synchronizer behavior. Zero values fall back to defaults.
type Options struct {
	SuppressionWindow time.Duration
	RefreshInterval   time.Duration
}

// New creates a synchronizer for the given authenticated user.
func New(be backend.Facade, b *bus.Bus, tracker *unread.Tracker, userID string, logger *zap.Logger, opts Options) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SuppressionWindow <= 0 {
		opts.SuppressionWindow = DefaultSuppressionWindow
	}
	return &Synchronizer{
		be:              be,
		bus:             b,
		tracker:         tracker,
		logger:          logger,
		userID:          userID,
		suppressWindow:  opts.SuppressionWindow,
		refreshInterval: opts.RefreshInterval,
		chats:           make(map[string]*model.Chat),
	}
}

// UserID returns the authenticated user this synchronizer works for.
func (s *Synchronizer) UserID() string { return s.userID }

// Run subscribes to message inserts and applies them serially, and runs the
// periodic refresh ticker if configured. Returns after subscription setup;
// processing continues until ctx ends or Stop is called.
func (s *Synchronizer) Run(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	ch, unsub, err := s.be.Subscribe(ctx, backend.CollMessages, []backend.ChangeKind{backend.ChangeInsert}, nil)
	if err != nil {
		return err
	}

	go func() {
		defer unsub()
		for {
			select {
			case change, ok := <-ch:
				if !ok {
					return
				}
				msg, err := decodeMessage(change.Record)
				if err != nil {
					s.logger.Warn("undecodable message change", zap.Error(err))
					continue
				}
				s.ApplyMessageEvent(ctx, msg)
			case <-ctx.Done():
				return
			}
		}
	}()

	if s.refreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(s.refreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := s.Refresh(ctx); err != nil {
						s.logger.Error("periodic refresh failed", zap.Error(err))
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	return nil
}

// Stop ends event processing.
func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// ApplyMessageEvent applies one realtime message insert to the collection:
// self-echoes and duplicate ids are discarded, events for unloaded chats are
// ignored, and unread counts move unless the owning chat is focused, in
// which case the chat is immediately marked read.
func (s *Synchronizer) ApplyMessageEvent(ctx context.Context, m model.Message) {
	s.mu.Lock()

	// Journal before any discard decision: a refresh snapshot in flight may
	// predate this event and needs it replayed, including messages the live
	// collection already has (replay deduplicates).
	if s.refreshing > 0 {
		s.journal = append(s.journal, m)
	}

	if m.ID != "" && m.ID == s.justSentID {
		s.mu.Unlock()
		metrics.DuplicatesDiscarded.Inc()
		return
	}

	chat, ok := s.chats[m.ChatID]
	if !ok {
		// Chat not loaded yet; a later full refresh picks it up.
		s.mu.Unlock()
		return
	}

	if chat.HasMessage(m.ID) {
		s.mu.Unlock()
		metrics.DuplicatesDiscarded.Inc()
		return
	}

	chat.Messages = append(chat.Messages, m)
	chat.Touch(m)

	markRead := false
	if m.SenderID != s.userID {
		if s.focusedID == chat.ID {
			chat.UnreadCount = 0
			markRead = true
		} else {
			chat.UnreadCount++
		}
	}
	chatID := chat.ID
	s.mu.Unlock()

	metrics.MessagesApplied.Inc()
	s.publish(bus.KindChatUpdated, map[string]string{"chat_id": chatID, "msg_id": m.ID})

	if markRead {
		_ = s.tracker.MarkRead(ctx, chatID, s.userID)
	}
}

// ApplyLocalMessage appends an optimistically sent message and remembers its
// id so the realtime echo is suppressed. The memory resets after the
// suppression window even if the echo never arrives.
func (s *Synchronizer) ApplyLocalMessage(m model.Message) {
	s.mu.Lock()

	s.justSentID = m.ID
	if s.suppressTimer != nil {
		s.suppressTimer.Stop()
	}
	id := m.ID
	s.suppressTimer = time.AfterFunc(s.suppressWindow, func() {
		s.mu.Lock()
		if s.justSentID == id {
			s.justSentID = ""
		}
		s.mu.Unlock()
	})

	if s.refreshing > 0 {
		s.journal = append(s.journal, m)
	}

	chat, ok := s.chats[m.ChatID]
	if ok && !chat.HasMessage(m.ID) {
		chat.Messages = append(chat.Messages, m)
		chat.Touch(m)
	}
	s.mu.Unlock()

	s.publish(bus.KindChatUpdated, map[string]string{"chat_id": m.ChatID, "msg_id": m.ID})
}

// Focus makes a chat the active conversation. A nonzero unread count is
// zeroed optimistically before the watermark write is issued; a failed
// write never brings the count back.
func (s *Synchronizer) Focus(ctx context.Context, chatID string) error {
	s.mu.Lock()
	chat, ok := s.chats[chatID]
	if !ok {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	s.focusedID = chatID
	hadUnread := chat.UnreadCount > 0
	chat.UnreadCount = 0
	s.mu.Unlock()

	if hadUnread {
		_ = s.tracker.MarkRead(ctx, chatID, s.userID)
		s.publish(bus.KindChatRead, map[string]string{"chat_id": chatID})
	}
	return nil
}

// Blur clears the focused chat.
func (s *Synchronizer) Blur() {
	s.mu.Lock()
	s.focusedID = ""
	s.mu.Unlock()
}

// Focused returns a snapshot of the focused chat, or nil.
func (s *Synchronizer) Focused() *model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focusedID == "" {
		return nil
	}
	chat, ok := s.chats[s.focusedID]
	if !ok {
		return nil
	}
	return chat.Clone()
}

// Chat returns a snapshot of one chat.
func (s *Synchronizer) Chat(id string) (*model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil, false
	}
	return chat.Clone(), true
}

// Chats returns snapshots of every chat, newest activity first.
func (s *Synchronizer) Chats() []*model.Chat {
	s.mu.Lock()
	out := make([]*model.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// ChatsByLabel returns snapshots of chats carrying the given label id (or
// legacy label name), newest activity first.
func (s *Synchronizer) ChatsByLabel(labelID string) []*model.Chat {
	all := s.Chats()
	out := all[:0]
	for _, c := range all {
		for _, l := range c.Labels {
			if l.ID == labelID {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (s *Synchronizer) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
