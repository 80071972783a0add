package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pigeon-chat/pigeon/internal/backend"
)

// Call runs a named transactional procedure. The two registered procedures
// cover the multi-row chat creation paths that must commit atomically.
func (b *Backend) Call(ctx context.Context, procedure string, args backend.Record) (backend.Record, error) {
	switch procedure {
	case backend.ProcDirectChatFindOrCreate:
		return b.directChatFindOrCreate(ctx, args)
	case backend.ProcGroupChatCreate:
		return b.groupChatCreate(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %q", backend.ErrUnknownProcedure, procedure)
	}
}

// directChatFindOrCreate returns the existing direct chat between the two
// users, or creates the chat plus both participant rows in one transaction.
func (b *Backend) directChatFindOrCreate(ctx context.Context, args backend.Record) (backend.Record, error) {
	userA, _ := args["user_a"].(string)
	userB, _ := args["user_b"].(string)
	if userA == "" || userB == "" {
		return nil, fmt.Errorf("direct_chat_find_or_create: user_a and user_b are required")
	}
	name, _ := args["name"].(string)

	var chatID string
	err := b.db.QueryRowContext(ctx, `
		SELECT p1.chat_id
		FROM participants p1
		JOIN participants p2 ON p1.chat_id = p2.chat_id
		JOIN chats c ON c.id = p1.chat_id
		WHERE p1.user_id = ? AND p2.user_id = ? AND c.is_group = 0
		LIMIT 1`, userA, userB).Scan(&chatID)
	if err == nil {
		return backend.Record{"chat_id": chatID, "created": false}, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("find direct chat: %w", err)
	}

	chatID = uuid.New().String()
	now := time.Now().UnixMilli()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, name, avatar_url, is_group, phone, extension, created_at)
		VALUES (?, ?, '', 0, '', '', ?)`, chatID, name, now); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	for _, uid := range []string{userA, userB} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (chat_id, user_id) VALUES (?, ?)`, chatID, uid); err != nil {
			return nil, fmt.Errorf("insert participant %s: %w", uid, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	b.subs.publish(backend.Change{
		Kind:       backend.ChangeInsert,
		Collection: backend.CollChats,
		Record:     backend.Record{"id": chatID, "name": name, "is_group": int64(0), "created_at": now},
	})
	return backend.Record{"chat_id": chatID, "created": true}, nil
}

// groupChatCreate creates a group chat plus all participant rows in one
// transaction. Groups are never deduplicated.
func (b *Backend) groupChatCreate(ctx context.Context, args backend.Record) (backend.Record, error) {
	name, _ := args["name"].(string)
	creator, _ := args["creator_id"].(string)
	if name == "" || creator == "" {
		return nil, fmt.Errorf("group_chat_create: name and creator_id are required")
	}

	members := []string{creator}
	switch ids := args["member_ids"].(type) {
	case []string:
		members = append(members, ids...)
	case []any:
		for _, v := range ids {
			if s, ok := v.(string); ok {
				members = append(members, s)
			}
		}
	}

	chatID := uuid.New().String()
	now := time.Now().UnixMilli()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, name, avatar_url, is_group, phone, extension, created_at)
		VALUES (?, ?, '', 1, '', '', ?)`, chatID, name, now); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	seen := make(map[string]bool, len(members))
	for _, uid := range members {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (chat_id, user_id) VALUES (?, ?)`, chatID, uid); err != nil {
			return nil, fmt.Errorf("insert participant %s: %w", uid, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	b.subs.publish(backend.Change{
		Kind:       backend.ChangeInsert,
		Collection: backend.CollChats,
		Record:     backend.Record{"id": chatID, "name": name, "is_group": int64(1), "created_at": now},
	})
	return backend.Record{"chat_id": chatID, "created": true}, nil
}
