package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/backend/sqlite"
	"github.com/pigeon-chat/pigeon/internal/bus"
	"github.com/pigeon-chat/pigeon/internal/config"
	"github.com/pigeon-chat/pigeon/internal/objstore"
	"github.com/pigeon-chat/pigeon/internal/outbox"
	"github.com/pigeon-chat/pigeon/internal/status"
	"github.com/pigeon-chat/pigeon/internal/sync"
	"github.com/pigeon-chat/pigeon/internal/unread"
)

const selfID = "user-self"

type testEnv struct {
	srv   *Server
	be    *sqlite.Backend
	sync  *sync.Synchronizer
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, nil)
}

func newTestEnvWithStore(t *testing.T, store objstore.Store) *testEnv {
	t.Helper()

	be, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), store)
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
		backend.Record{"id": "c1", "name": "General", "created_at": time.Now().UnixMilli()},
	); err != nil {
		t.Fatal(err)
	}
	if err := be.Insert(ctx, backend.CollParticipants,
		backend.Record{"chat_id": "c1", "user_id": selfID},
		backend.Record{"chat_id": "c1", "user_id": "peer"},
	); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Auth.Secret = "test-secret"
	cfg.Auth.BootstrapKey = "bootstrap-key"

	b := bus.New()
	tracker := unread.NewTracker(be, nil)
	syn := sync.New(be, b, tracker, selfID, nil, sync.Options{})
	if err := syn.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	sender := outbox.NewSender(be, syn, b, nil)
	machine := status.NewMachine(b)

	srv := New(cfg, be, syn, sender, b, machine, nil)

	env := &testEnv{srv: srv, be: be, sync: syn}
	env.token = env.mintToken(t, selfID, "bootstrap-key")
	return env
}

func (e *testEnv) mintToken(t *testing.T, userID, key string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"user_id": userID, "bootstrap_key": key})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.srv.App().Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint token status = %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.Token
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := e.srv.App().Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
}

func TestMintTokenRejectsBadKey(t *testing.T) {
	env := newTestEnv(t)
	body, _ := json.Marshal(map[string]string{"user_id": selfID, "bootstrap_key": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	resp, err := env.srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without token", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = env.srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for bad token", resp.StatusCode)
	}
}

func TestListChats(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/api/chats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Chats []chatView `json:"chats"`
	}
	decodeBody(t, resp, &out)
	if len(out.Chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(out.Chats))
	}
	if out.Chats[0].ID != "c1" || out.Chats[0].Name != "General" {
		t.Errorf("chat = %+v", out.Chats[0])
	}
}

func TestGetChatNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/api/chats/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSendMessageQueues(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodPost, "/api/chats/c1/messages", map[string]string{"body": "hello"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var out struct {
		MsgID string `json:"msg_id"`
	}
	decodeBody(t, resp, &out)
	if out.MsgID == "" {
		t.Fatal("empty msg_id")
	}

	rows, err := env.be.Query(context.Background(), backend.CollOutbox,
		backend.Filter{"client_msg_id": out.MsgID}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["status"] != "queued" {
		t.Errorf("outbox rows = %+v, want one queued entry", rows)
	}
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodPost, "/api/chats/c1/messages", map[string]string{"body": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for empty body", resp.StatusCode)
	}
	resp = env.request(t, http.MethodPost, "/api/chats/ghost/messages", map[string]string{"body": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown chat", resp.StatusCode)
	}
}

func TestFocusChat(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodPost, "/api/chats/c1/focus", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if f := env.sync.Focused(); f == nil || f.ID != "c1" {
		t.Errorf("focused = %v, want c1", f)
	}

	resp = env.request(t, http.MethodPost, "/api/chats/ghost/focus", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	resp = env.request(t, http.MethodPost, "/api/chats/blur", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("blur status = %d", resp.StatusCode)
	}
	if f := env.sync.Focused(); f != nil {
		t.Errorf("focused = %v after blur, want nil", f.ID)
	}
}

// TestCreateDirectChatIdempotent creates the same direct chat twice and
// expects the same id back.
func TestCreateDirectChatIdempotent(t *testing.T) {
	env := newTestEnv(t)

	first := env.request(t, http.MethodPost, "/api/chats/direct", map[string]string{"user_id": "peer"})
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", first.StatusCode)
	}
	var a, b struct {
		ChatID string `json:"chat_id"`
	}
	decodeBody(t, first, &a)

	second := env.request(t, http.MethodPost, "/api/chats/direct", map[string]string{"user_id": "peer"})
	if second.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", second.StatusCode)
	}
	decodeBody(t, second, &b)

	if a.ChatID == "" || a.ChatID != b.ChatID {
		t.Errorf("chat ids %q and %q, want one stable id", a.ChatID, b.ChatID)
	}
}

func TestLabelLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/labels", map[string]string{"name": "Work", "color": "blue"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create label status = %d", resp.StatusCode)
	}
	var created struct {
		Label labelView `json:"label"`
	}
	decodeBody(t, resp, &created)
	if created.Label.ID == "" {
		t.Fatal("empty label id")
	}

	resp = env.request(t, http.MethodPost, "/api/chats/c1/labels", map[string]string{"label_id": created.Label.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("assign status = %d", resp.StatusCode)
	}

	// The label shows up after a refresh and filters the chat list.
	if err := env.sync.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp = env.request(t, http.MethodGet, "/api/chats?label="+created.Label.ID, nil)
	var filtered struct {
		Chats []chatView `json:"chats"`
	}
	decodeBody(t, resp, &filtered)
	if len(filtered.Chats) != 1 || filtered.Chats[0].ID != "c1" {
		t.Errorf("filtered chats = %+v, want only c1", filtered.Chats)
	}

	resp = env.request(t, http.MethodDelete,
		fmt.Sprintf("/api/chats/c1/labels/%s", created.Label.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unassign status = %d", resp.StatusCode)
	}
	resp = env.request(t, http.MethodDelete,
		fmt.Sprintf("/api/chats/c1/labels/%s", created.Label.ID), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second unassign status = %d, want 404", resp.StatusCode)
	}
}

func TestUploadWithoutObjectStore(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("not really a png")); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token)
	resp, err := env.srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want 503: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func TestUploadStoresObject(t *testing.T) {
	store := objstore.NewMemory()
	env := newTestEnvWithStore(t, store)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("binary image bytes")
	if _, err := fw.Write(payload); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token)
	resp, err := env.srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out uploadResponse
	decodeBody(t, resp, &out)
	if !out.Success {
		t.Error("success = false")
	}
	if !strings.HasSuffix(out.FilePath, "-photo.png") {
		t.Errorf("filePath = %q, want time-prefixed photo.png", out.FilePath)
	}
	if out.Name != "photo.png" {
		t.Errorf("name = %q", out.Name)
	}
	if out.Size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", out.Size, len(payload))
	}
	if out.PublicURL == "" {
		t.Error("empty publicUrl")
	}

	stored, ok := store.Get(config.Default().Storage.Bucket, out.FilePath)
	if !ok {
		t.Fatal("object missing from store")
	}
	if !bytes.Equal(stored, payload) {
		t.Error("stored bytes differ from upload")
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		State string `json:"state"`
	}
	decodeBody(t, resp, &out)
	if out.State != string(status.Booting) {
		t.Errorf("state = %q, want BOOTING", out.State)
	}
}
