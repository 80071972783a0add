package outbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/backend/sqlite"
	"github.com/pigeon-chat/pigeon/internal/bus"
	"github.com/pigeon-chat/pigeon/internal/sync"
	"github.com/pigeon-chat/pigeon/internal/unread"
)

const selfID = "user-self"

func testSetup(t *testing.T) (*sqlite.Backend, *sync.Synchronizer, *bus.Bus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	be, err := sqlite.Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = be.Close() })
	if _, err := be.Migrate(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := be.Insert(ctx, backend.CollUsers,
		backend.Record{"id": selfID, "name": "Self"},
		backend.Record{"id": "peer", "name": "Peer"},
	); err != nil {
		t.Fatal(err)
	}
	if err := be.Insert(ctx, backend.CollChats,
		backend.Record{"id": "c1", "name": "Chat", "created_at": time.Now().UnixMilli()},
	); err != nil {
		t.Fatal(err)
	}
	if err := be.Insert(ctx, backend.CollParticipants,
		backend.Record{"chat_id": "c1", "user_id": selfID},
		backend.Record{"chat_id": "c1", "user_id": "peer"},
	); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	tracker := unread.NewTracker(be, nil)
	s := sync.New(be, b, tracker, selfID, nil, sync.Options{})
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	return be, s, b
}

func TestQueueAndDeliver(t *testing.T) {
	be, s, b := testSetup(t)
	ctx := context.Background()
	sender := NewSender(be, s, b, nil)

	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	msgID, err := sender.Queue(ctx, "c1", "hello")
	if err != nil {
		t.Fatalf("Queue() error = %v", err)
	}

	// Queue publishes before delivery happens.
	evt := <-ch
	if evt.Kind != bus.KindMessageQueued {
		t.Errorf("first event = %q, want %q", evt.Kind, bus.KindMessageQueued)
	}

	sender.ProcessPending(ctx)

	rows, err := be.Query(ctx, backend.CollOutbox, backend.Filter{"client_msg_id": msgID}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["status"] != "sent" {
		t.Errorf("outbox rows = %+v, want one with status sent", rows)
	}

	msgs, err := be.Query(ctx, backend.CollMessages, backend.Filter{"chat_id": "c1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0]["body"] != "hello" {
		t.Errorf("messages = %+v, want one with body hello", msgs)
	}

	// The optimistic copy is already in the collection, with zero unread.
	chat, ok := s.Chat("c1")
	if !ok {
		t.Fatal("chat missing from collection")
	}
	if !chat.HasMessage(msgID) {
		t.Error("optimistic message not applied to collection")
	}
	if chat.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 for own message", chat.UnreadCount)
	}

	evt = <-ch
	if evt.Kind != bus.KindMessageSent {
		t.Errorf("event = %q, want %q", evt.Kind, bus.KindMessageSent)
	}
}

func TestDeliverFailureMarksOutbox(t *testing.T) {
	be, s, b := testSetup(t)
	ctx := context.Background()
	sender := NewSender(be, s, b, nil)

	msgID, err := sender.Queue(ctx, "c1", "doomed")
	if err != nil {
		t.Fatal(err)
	}

	// Occupy the message id so delivery's insert hits a conflict.
	if err := be.Insert(ctx, backend.CollMessages, backend.Record{
		"id": msgID, "chat_id": "c1", "sender_id": "peer", "body": "squatter",
		"sent_at": time.Now().UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}

	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	sender.ProcessPending(ctx)

	rows, err := be.Query(ctx, backend.CollOutbox, backend.Filter{"client_msg_id": msgID}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["status"] != "failed" {
		t.Fatalf("outbox rows = %+v, want one with status failed", rows)
	}
	if rows[0]["error_message"] == "" {
		t.Error("error_message is empty, want the delivery error recorded")
	}

	evt := <-ch
	if evt.Kind != bus.KindMessageFailed {
		t.Errorf("event = %q, want %q", evt.Kind, bus.KindMessageFailed)
	}
}

func TestProcessPendingSkipsNonQueued(t *testing.T) {
	be, s, b := testSetup(t)
	ctx := context.Background()
	sender := NewSender(be, s, b, nil)

	msgID, err := sender.Queue(ctx, "c1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	sender.ProcessPending(ctx)
	// A second pass must not re-deliver the sent entry.
	sender.ProcessPending(ctx)

	msgs, err := be.Query(ctx, backend.CollMessages, backend.Filter{"id": msgID}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Errorf("got %d message rows, want 1", len(msgs))
	}
}
