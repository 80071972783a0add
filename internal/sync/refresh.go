package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/bus"
	"github.com/pigeon-chat/pigeon/internal/metrics"
	"github.com/pigeon-chat/pigeon/internal/model"
)

// Refresh rebuilds the whole collection from the backend. Collection-level
// failures abort without touching existing state; per-chat detail failures
// degrade that one chat to empty defaults. Message events applied while the
// fetch is in flight are journaled and replayed onto the fresh snapshot
// before install, so a slow refresh can neither drop a just-applied message
// nor resurrect an already-cleared unread count.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.refreshing++
	s.mu.Unlock()

	fresh, err := s.fetchAll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing--
	if s.refreshing == 0 {
		defer func() { s.journal = nil }()
	}
	if err != nil {
		metrics.Refreshes.WithLabelValues("error").Inc()
		return err
	}

	for _, m := range s.journal {
		replayMessage(fresh, m, s.focusedID, s.userID)
	}

	s.chats = fresh
	if s.focusedID != "" {
		if chat, ok := fresh[s.focusedID]; ok {
			chat.UnreadCount = 0
		} else {
			s.focusedID = ""
		}
	}

	metrics.Refreshes.WithLabelValues("ok").Inc()
	s.publish(bus.KindSyncRefreshed, map[string]int{"chats": len(fresh)})
	return nil
}

// fetchAll loads every chat the user participates in, with full detail, and
// computes unread counts from the user's watermark.
func (s *Synchronizer) fetchAll(ctx context.Context) (map[string]*model.Chat, error) {
	memberships, err := s.be.Query(ctx, backend.CollParticipants,
		backend.Filter{"user_id": s.userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}

	fresh := make(map[string]*model.Chat, len(memberships))
	for _, membership := range memberships {
		chatID := recString(membership, "chat_id")
		if chatID == "" {
			continue
		}
		chat, err := s.fetchChat(ctx, chatID, recTimePtr(membership, "last_read"))
		if err != nil {
			return nil, err
		}
		if chat != nil {
			fresh[chat.ID] = chat
		}
	}
	return fresh, nil
}

// fetchChat loads one chat with its history, participant names and labels.
// The chat row query is collection-level: its failure propagates. Detail
// queries degrade to empty defaults for this chat only.
func (s *Synchronizer) fetchChat(ctx context.Context, chatID string, watermark *time.Time) (*model.Chat, error) {
	rows, err := s.be.Query(ctx, backend.CollChats, backend.Filter{"id": chatID}, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch chat %s: %w", chatID, err)
	}
	if len(rows) == 0 {
		// Membership without a chat row; treat as not-yet-visible.
		return nil, nil
	}
	rec := rows[0]

	chat := &model.Chat{
		ID:              chatID,
		Name:            recString(rec, "name"),
		AvatarURL:       recString(rec, "avatar_url"),
		IsGroup:         recBool(rec, "is_group"),
		Phone:           recString(rec, "phone"),
		Extension:       recString(rec, "extension"),
		ParticipantRead: watermark,
	}

	msgRows, err := s.be.Query(ctx, backend.CollMessages,
		backend.Filter{"chat_id": chatID},
		&backend.Options{OrderBy: "sent_at", Ascending: true})
	if err != nil {
		s.logger.Warn("message history unavailable, degrading to empty",
			zap.String("chat_id", chatID), zap.Error(err))
	}
	for _, mr := range msgRows {
		m, err := decodeMessage(mr)
		if err != nil {
			s.logger.Warn("skipping undecodable message", zap.String("chat_id", chatID), zap.Error(err))
			continue
		}
		chat.Messages = append(chat.Messages, m)
		chat.Touch(m)
	}

	chat.Participants = s.fetchParticipantNames(ctx, chatID)
	if !chat.IsGroup && chat.Name == "" {
		for _, name := range chat.Participants {
			if name != "" {
				chat.Name = name
				break
			}
		}
	}

	labels, err := s.fetchLabels(ctx, chatID)
	if err != nil {
		s.logger.Warn("labels unavailable, degrading to none",
			zap.String("chat_id", chatID), zap.Error(err))
	}
	chat.Labels = labels

	chat.UnreadCount = s.tracker.CountFor(chat, s.userID)
	return chat, nil
}

// fetchParticipantNames returns display names of the other participants.
// Failures degrade to an empty list.
func (s *Synchronizer) fetchParticipantNames(ctx context.Context, chatID string) []string {
	rows, err := s.be.Query(ctx, backend.CollParticipants, backend.Filter{"chat_id": chatID}, nil)
	if err != nil {
		s.logger.Warn("participants unavailable, degrading to empty",
			zap.String("chat_id", chatID), zap.Error(err))
		return nil
	}

	var ids []string
	for _, r := range rows {
		if uid := recString(r, "user_id"); uid != "" && uid != s.userID {
			ids = append(ids, uid)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	userRows, err := s.be.Query(ctx, backend.CollUsers, backend.Filter{"id": ids}, nil)
	if err != nil {
		s.logger.Warn("user lookup failed, degrading to empty",
			zap.String("chat_id", chatID), zap.Error(err))
		return nil
	}
	names := make(map[string]string, len(userRows))
	for _, ur := range userRows {
		names[recString(ur, "id")] = recString(ur, "name")
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name := names[id]; name != "" {
			out = append(out, name)
		} else {
			out = append(out, id)
		}
	}
	return out
}

// replayMessage applies a journaled event onto a fresh snapshot, mirroring
// ApplyMessageEvent's append/unread steps without re-issuing watermark
// writes (the live application already did).
func replayMessage(chats map[string]*model.Chat, m model.Message, focusedID, selfID string) {
	chat, ok := chats[m.ChatID]
	if !ok {
		return
	}
	if chat.HasMessage(m.ID) {
		return
	}
	chat.Messages = append(chat.Messages, m)
	chat.Touch(m)
	if m.SenderID != selfID {
		if focusedID == chat.ID {
			chat.UnreadCount = 0
		} else {
			chat.UnreadCount++
		}
	}
}
