package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/backend/sqlite"
	"github.com/pigeon-chat/pigeon/internal/bus"
	"github.com/pigeon-chat/pigeon/internal/config"
	"github.com/pigeon-chat/pigeon/internal/httpapi"
	"github.com/pigeon-chat/pigeon/internal/lock"
	"github.com/pigeon-chat/pigeon/internal/outbox"
	"github.com/pigeon-chat/pigeon/internal/seed"
	"github.com/pigeon-chat/pigeon/internal/status"
	intsync "github.com/pigeon-chat/pigeon/internal/sync"
	"github.com/pigeon-chat/pigeon/internal/unread"
)

// TestDaemonLifecycle assembles the daemon's components by hand and drives
// the full startup path: lock, migrate, seed, refresh, serve, shut down.
func TestDaemonLifecycle(t *testing.T) {
	tmpDir := t.TempDir()

	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	be, err := sqlite.Open(filepath.Join(tmpDir, "pigeon.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = be.Close() }()
	if _, err := be.Migrate(); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Auth.Secret = "test-secret"
	cfg.Auth.BootstrapKey = "bootstrap"

	ctx := context.Background()
	if err := ensureSelfUser(ctx, be, cfg.UserID); err != nil {
		t.Fatal(err)
	}
	if err := seed.Run(ctx, be, nil, seed.Options{SelfID: cfg.UserID, Contacts: 2, Messages: 3}); err != nil {
		t.Fatal(err)
	}
	// Seeding twice is a no-op.
	if err := seed.Run(ctx, be, nil, seed.Options{SelfID: cfg.UserID, Contacts: 2, Messages: 3}); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	machine := status.NewMachine(b)
	_ = machine.Transition(status.Migrating)

	tracker := unread.NewTracker(be, nil)
	syn := intsync.New(be, b, tracker, cfg.UserID, nil, intsync.Options{})

	_ = machine.Transition(status.Syncing)
	syn.ProbeLabelSchema(ctx)
	if err := syn.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	_ = machine.Transition(status.Ready)

	if err := syn.Run(ctx); err != nil {
		t.Fatal(err)
	}
	defer syn.Stop()

	sender := outbox.NewSender(be, syn, b, nil)
	srv := httpapi.New(cfg, be, syn, sender, b, machine, nil)

	// Mint a token and read the chat list over HTTP.
	body, _ := json.Marshal(map[string]string{"user_id": cfg.UserID, "bootstrap_key": "bootstrap"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint status = %d", resp.StatusCode)
	}
	var mint struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mint); err != nil {
		t.Fatal(err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer "+mint.Token)
	resp, err = srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chats status = %d", resp.StatusCode)
	}
	var chats struct {
		Chats []struct {
			ID          string `json:"id"`
			UnreadCount int    `json:"unread_count"`
		} `json:"chats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chats); err != nil {
		t.Fatal(err)
	}
	if len(chats.Chats) != 2 {
		t.Fatalf("got %d chats, want 2 seeded", len(chats.Chats))
	}

	// Queue a message through the API and let the sender deliver it.
	chatID := chats.Chats[0].ID
	body, _ = json.Marshal(map[string]string{"body": "integration hello"})
	req = httptest.NewRequest(http.MethodPost, "/api/chats/"+chatID+"/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+mint.Token)
	resp, err = srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("send status = %d", resp.StatusCode)
	}

	sender.ProcessPending(ctx)

	pending, err := be.Query(ctx, backend.CollOutbox, backend.Filter{"status": "queued"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d queued entries after delivery, want 0", len(pending))
	}

	if machine.Current() != status.Ready {
		t.Errorf("state = %s, want READY", machine.Current())
	}
}

// TestStartupOnOldSchemaDegrades runs the startup path against a datastore
// pinned before the read watermark migration and verifies the daemon keeps
// working with coarse unread counts.
func TestStartupOnOldSchemaDegrades(t *testing.T) {
	tmpDir := t.TempDir()

	be, err := sqlite.Open(filepath.Join(tmpDir, "pigeon.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = be.Close() }()
	if _, err := be.MigrateTo(2); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := be.Insert(ctx, backend.CollUsers,
		backend.Record{"id": "self", "name": "You"},
		backend.Record{"id": "peer", "name": "Peer"},
	); err != nil {
		t.Fatal(err)
	}
	if err := be.Insert(ctx, backend.CollChats,
		backend.Record{"id": "c1", "name": "Old Times", "created_at": time.Now().UnixMilli()},
	); err != nil {
		t.Fatal(err)
	}
	if err := be.Insert(ctx, backend.CollParticipants,
		backend.Record{"chat_id": "c1", "user_id": "self"},
		backend.Record{"chat_id": "c1", "user_id": "peer"},
	); err != nil {
		t.Fatal(err)
	}
	if err := be.Insert(ctx, backend.CollMessages,
		backend.Record{"id": "m1", "chat_id": "c1", "sender_id": "peer", "body": "hi", "sent_at": int64(1000)},
		backend.Record{"id": "m2", "chat_id": "c1", "sender_id": "peer", "body": "there", "sent_at": int64(2000)},
	); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	machine := status.NewMachine(b)
	_ = machine.Transition(status.Migrating)
	_ = machine.Transition(status.Syncing)

	tracker := unread.NewTracker(be, nil)
	tracker.OnDisable(func() { _ = machine.Transition(status.Degraded) })

	syn := intsync.New(be, b, tracker, "self", nil, intsync.Options{})
	if err := syn.Refresh(ctx); err != nil {
		t.Fatalf("refresh on old schema: %v", err)
	}

	chat, ok := syn.Chat("c1")
	if !ok {
		t.Fatal("chat missing")
	}
	if chat.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2 (all foreign history)", chat.UnreadCount)
	}

	// Focusing triggers the watermark write, which hits the missing column
	// and flips the daemon into degraded mode.
	if err := syn.Focus(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if tracker.Enabled() {
		t.Error("tracker still enabled after missing-column write")
	}
	if machine.Current() != status.Degraded {
		t.Errorf("state = %s, want DEGRADED", machine.Current())
	}

	// Counts remain coarse after another refresh, Focus notwithstanding.
	syn.Blur()
	if err := syn.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	chat, _ = syn.Chat("c1")
	if chat.UnreadCount != 2 {
		t.Errorf("unread = %d after degraded refresh, want 2", chat.UnreadCount)
	}
}
