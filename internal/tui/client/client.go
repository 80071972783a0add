// Package client is the thin HTTP client the TUI and CLI use to talk to
// a running pigeond.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client wraps the daemon's HTTP API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Chat is the wire form of a chat snapshot.
type Chat struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AvatarURL     string    `json:"avatar_url"`
	IsGroup       bool      `json:"is_group"`
	Participants  []string  `json:"participants"`
	Labels        []Label   `json:"labels"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
}

// Message is the wire form of a chat message.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
}

// Label is the wire form of a label entity.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// New returns a client for a daemon listening on addr (host:port).
func New(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns the current bearer token.
func (c *Client) Token() string { return c.token }

// Authenticate exchanges the profile bootstrap key for a bearer token and
// stores it for subsequent calls.
func (c *Client) Authenticate(ctx context.Context, userID, bootstrapKey string) error {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/token",
		map[string]string{"user_id": userID, "bootstrap_key": bootstrapKey}, &resp)
	if err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

// Status returns the daemon state machine's current state.
func (c *Client) Status(ctx context.Context) (string, error) {
	var resp struct {
		State string `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return "", err
	}
	return resp.State, nil
}

// Chats returns the chat list, optionally filtered by label.
func (c *Client) Chats(ctx context.Context, label string) ([]Chat, error) {
	path := "/api/chats"
	if label != "" {
		path += "?label=" + url.QueryEscape(label)
	}
	var resp struct {
		Chats []Chat `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// Messages returns a chat's message history.
func (c *Client) Messages(ctx context.Context, chatID string) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(chatID)+"/messages", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Send queues a message for delivery and returns its client id.
func (c *Client) Send(ctx context.Context, chatID, body string) (string, error) {
	var resp struct {
		MsgID string `json:"msg_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/messages",
		map[string]string{"body": body}, &resp)
	if err != nil {
		return "", err
	}
	return resp.MsgID, nil
}

// Focus marks a chat as the active conversation.
func (c *Client) Focus(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/focus", nil, nil)
}

// Blur clears the active conversation.
func (c *Client) Blur(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/chats/blur", nil, nil)
}

// CreateDirectChat finds or creates the direct chat with userID.
func (c *Client) CreateDirectChat(ctx context.Context, userID, name string) (string, error) {
	var resp struct {
		ChatID string `json:"chat_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/chats/direct",
		map[string]string{"user_id": userID, "name": name}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ChatID, nil
}

// CreateGroupChat creates a group chat with the given members.
func (c *Client) CreateGroupChat(ctx context.Context, name string, memberIDs []string) (string, error) {
	var resp struct {
		ChatID string `json:"chat_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/chats/group",
		map[string]any{"name": name, "member_ids": memberIDs}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ChatID, nil
}

// Labels returns every label entity.
func (c *Client) Labels(ctx context.Context) ([]Label, error) {
	var resp struct {
		Labels []Label `json:"labels"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/labels", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Labels, nil
}

// CreateLabel creates a label entity.
func (c *Client) CreateLabel(ctx context.Context, name, color string) (Label, error) {
	var resp struct {
		Label Label `json:"label"`
	}
	err := c.do(ctx, http.MethodPost, "/api/labels",
		map[string]string{"name": name, "color": color}, &resp)
	return resp.Label, err
}

// AssignLabel attaches a label to a chat.
func (c *Client) AssignLabel(ctx context.Context, chatID, labelID string) error {
	return c.do(ctx, http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/labels",
		map[string]string{"label_id": labelID}, nil)
}

// UnassignLabel detaches a label from a chat.
func (c *Client) UnassignLabel(ctx context.Context, chatID, labelID string) error {
	return c.do(ctx, http.MethodDelete,
		"/api/chats/"+url.PathEscape(chatID)+"/labels/"+url.PathEscape(labelID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// wsURL converts the base URL into the websocket endpoint with the token
// in the query string.
func (c *Client) wsURL() string {
	base := strings.Replace(c.baseURL, "http://", "ws://", 1)
	return base + "/api/ws?token=" + url.QueryEscape(c.token)
}
