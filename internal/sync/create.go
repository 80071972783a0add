package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/bus"
)

// CreateDirectChat returns the id of the direct chat between the current
// user and other, creating it if needed. The atomic find-or-create
// procedure is tried first; if the procedure itself fails, a manual
// two-step fallback inserts the chat row and then both participant rows.
// If the second step fails after the first succeeded, the error is
// surfaced and the chat row stays in place.
func (s *Synchronizer) CreateDirectChat(ctx context.Context, otherUserID, name string) (string, error) {
	if otherUserID == "" || otherUserID == s.userID {
		return "", fmt.Errorf("invalid peer user id %q", otherUserID)
	}

	var chatID string
	res, err := s.be.Call(ctx, backend.ProcDirectChatFindOrCreate, backend.Record{
		"user_a": s.userID,
		"user_b": otherUserID,
		"name":   name,
	})
	if err == nil {
		chatID = recString(res, "chat_id")
	} else {
		s.logger.Warn("find-or-create procedure failed, using manual fallback", zap.Error(err))
		chatID, err = s.manualCreate(ctx, name, false, []string{s.userID, otherUserID})
		if err != nil {
			return "", err
		}
	}

	s.adopt(ctx, chatID)
	return chatID, nil
}

// CreateGroupChat creates a group chat with the current user plus members.
// Groups are never deduplicated. Same procedure-first, manual-fallback,
// no-rollback behavior as direct chats.
func (s *Synchronizer) CreateGroupChat(ctx context.Context, name string, memberIDs []string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("group name is required")
	}

	var chatID string
	res, err := s.be.Call(ctx, backend.ProcGroupChatCreate, backend.Record{
		"name":       name,
		"creator_id": s.userID,
		"member_ids": memberIDs,
	})
	if err == nil {
		chatID = recString(res, "chat_id")
	} else {
		s.logger.Warn("group create procedure failed, using manual fallback", zap.Error(err))
		chatID, err = s.manualCreate(ctx, name, true, append([]string{s.userID}, memberIDs...))
		if err != nil {
			return "", err
		}
	}

	s.adopt(ctx, chatID)
	return chatID, nil
}

// manualCreate is the two-step fallback: chat row first, participant rows
// second. No compensating delete on partial failure.
func (s *Synchronizer) manualCreate(ctx context.Context, name string, isGroup bool, memberIDs []string) (string, error) {
	chatID := uuid.New().String()
	if err := s.be.Insert(ctx, backend.CollChats, backend.Record{
		"id":         chatID,
		"name":       name,
		"avatar_url": "",
		"is_group":   isGroup,
		"phone":      "",
		"extension":  "",
		"created_at": time.Now().UnixMilli(),
	}); err != nil {
		return "", fmt.Errorf("insert chat: %w", err)
	}

	seen := make(map[string]bool, len(memberIDs))
	records := make([]backend.Record, 0, len(memberIDs))
	for _, uid := range memberIDs {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		records = append(records, backend.Record{"chat_id": chatID, "user_id": uid})
	}
	if err := s.be.Insert(ctx, backend.CollParticipants, records...); err != nil {
		// The chat row already exists and is left in place.
		return "", fmt.Errorf("insert participants after chat %s: %w", chatID, err)
	}
	return chatID, nil
}

// adopt loads a newly created chat into the collection. Fetch failures are
// tolerated: the next full refresh picks the chat up.
func (s *Synchronizer) adopt(ctx context.Context, chatID string) {
	if chatID == "" {
		return
	}
	chat, err := s.fetchChat(ctx, chatID, nil)
	if err != nil || chat == nil {
		if err != nil {
			s.logger.Warn("could not load created chat", zap.String("chat_id", chatID), zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	if _, exists := s.chats[chatID]; !exists {
		s.chats[chatID] = chat
	}
	s.mu.Unlock()

	s.publish(bus.KindChatCreated, map[string]string{"chat_id": chatID})
}
