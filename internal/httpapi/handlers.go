package httpapi

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/auth"
	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/model"
	"github.com/pigeon-chat/pigeon/internal/sync"
)

type mintTokenRequest struct {
	UserID       string `json:"user_id"`
	BootstrapKey string `json:"bootstrap_key"`
}

// MintToken exchanges the profile bootstrap key for a bearer token.
func (s *Server) MintToken(c *fiber.Ctx) error {
	var req mintTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}
	key := s.cfg.Auth.BootstrapKey
	if key == "" || subtle.ConstantTimeCompare([]byte(req.BootstrapKey), []byte(key)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid bootstrap key"})
	}

	token, err := auth.GenerateToken(req.UserID, s.cfg.Auth.Secret, s.cfg.Auth.TTL())
	if err != nil {
		s.logger.Error("token mint failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not mint token"})
	}
	return c.JSON(fiber.Map{"token": token})
}

// Status reports the daemon state machine's current state.
func (s *Server) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"state": s.state.Current()})
}

// ListChats returns the chat collection, newest activity first. An optional
// label query filters by label id (or legacy label name).
func (s *Server) ListChats(c *fiber.Ctx) error {
	var chats []*model.Chat
	if label := c.Query("label"); label != "" {
		chats = s.sync.ChatsByLabel(label)
	} else {
		chats = s.sync.Chats()
	}
	return c.JSON(fiber.Map{"chats": chatViews(chats)})
}

// GetChat returns one chat snapshot.
func (s *Server) GetChat(c *fiber.Ctx) error {
	chat, ok := s.sync.Chat(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Chat not found"})
	}
	views := chatViews([]*model.Chat{chat})
	return c.JSON(fiber.Map{"chat": views[0]})
}

// GetMessages returns a chat's full in-memory history.
func (s *Server) GetMessages(c *fiber.Ctx) error {
	chat, ok := s.sync.Chat(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Chat not found"})
	}
	return c.JSON(fiber.Map{"messages": messageViews(chat.Messages)})
}

// FocusChat marks a chat as the active conversation and clears its unread
// count.
func (s *Server) FocusChat(c *fiber.Ctx) error {
	err := s.sync.Focus(c.Context(), c.Params("id"))
	if errors.Is(err, sync.ErrChatNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Chat not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"focused": c.Params("id")})
}

// BlurChat clears the active conversation.
func (s *Server) BlurChat(c *fiber.Ctx) error {
	s.sync.Blur()
	return c.JSON(fiber.Map{"focused": ""})
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

// SendMessage queues a message for delivery through the outbox.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	chatID := c.Params("id")
	if _, ok := s.sync.Chat(chatID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Chat not found"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Body == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "body is required"})
	}

	msgID, err := s.sender.Queue(c.Context(), chatID, req.Body)
	if err != nil {
		s.logger.Error("queue message failed", zap.Error(err), zap.String("chat_id", chatID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not queue message"})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"msg_id": msgID})
}

type createDirectChatRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// CreateDirectChat finds or creates the direct chat with another user.
func (s *Server) CreateDirectChat(c *fiber.Ctx) error {
	var req createDirectChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	chatID, err := s.sync.CreateDirectChat(c.Context(), req.UserID, req.Name)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"chat_id": chatID})
}

type createGroupChatRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// CreateGroupChat creates a new group chat.
func (s *Server) CreateGroupChat(c *fiber.Ctx) error {
	var req createGroupChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	chatID, err := s.sync.CreateGroupChat(c.Context(), req.Name, req.MemberIDs)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"chat_id": chatID})
}

// ListLabels returns every label entity.
func (s *Server) ListLabels(c *fiber.Ctx) error {
	rows, err := s.be.Query(c.Context(), backend.CollLabels, nil, &backend.Options{OrderBy: "name", Ascending: true})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not list labels"})
	}
	out := make([]labelView, 0, len(rows))
	for _, r := range rows {
		v := labelView{}
		v.ID, _ = r["id"].(string)
		v.Name, _ = r["name"].(string)
		v.Color, _ = r["color"].(string)
		if v.Color == "" {
			v.Color = model.DefaultLabelColor
		}
		out = append(out, v)
	}
	return c.JSON(fiber.Map{"labels": out})
}

type createLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CreateLabel creates a new label entity.
func (s *Server) CreateLabel(c *fiber.Ctx) error {
	var req createLabelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if req.Color == "" {
		req.Color = model.DefaultLabelColor
	}

	id := uuid.New().String()
	err := s.be.Insert(c.Context(), backend.CollLabels, backend.Record{
		"id": id, "name": req.Name, "color": req.Color,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not create label"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"label": labelView{ID: id, Name: req.Name, Color: req.Color}})
}

type assignLabelRequest struct {
	LabelID string `json:"label_id"`
}

// AssignLabel attaches a label to a chat.
func (s *Server) AssignLabel(c *fiber.Ctx) error {
	chatID := c.Params("id")
	var req assignLabelRequest
	if err := c.BodyParser(&req); err != nil || req.LabelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "label_id is required"})
	}

	err := s.be.Insert(c.Context(), backend.CollChatLabels, backend.Record{
		"chat_id": chatID, "label_id": req.LabelID,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not assign label"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"chat_id": chatID, "label_id": req.LabelID})
}

// UnassignLabel detaches a label from a chat.
func (s *Server) UnassignLabel(c *fiber.Ctx) error {
	chatID := c.Params("id")
	labelID := c.Params("labelID")

	n, err := s.be.Delete(c.Context(), backend.CollChatLabels, backend.Filter{
		"chat_id": chatID, "label_id": labelID,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not unassign label"})
	}
	if n == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Label not assigned"})
	}
	return c.JSON(fiber.Map{"removed": n})
}
