package model

import "time"

// DefaultLabelColor is assigned to labels coming from the legacy name-based
// association, which carries no color of its own.
const DefaultLabelColor = "gray"

// User is a chat participant identity. Immutable within a session except Status.
type User struct {
	ID        string
	Name      string
	AvatarURL string
	Phone     string
	Email     string
	Status    string
}

// Attachment is a file attached to a message. Immutable once created.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// Message is a single chat message. The ID is assigned client-side before
// persistence and is the deduplication key across realtime delivery and
// local optimistic insertion.
type Message struct {
	ID          string
	ChatID      string
	SenderID    string
	SenderName  string
	Body        string
	Attachments []Attachment
	SentAt      time.Time
}

// Label is a chat tag. Shared by many chats. Labels resolved through the
// legacy name-based association use the name as ID and DefaultLabelColor.
type Label struct {
	ID    string
	Name  string
	Color string
}

// Participant links a user to a chat. LastRead is the read watermark for the
// (user, chat) pair; nil when never read or when the deployment predates the
// watermark column.
type Participant struct {
	ChatID   string
	UserID   string
	Name     string
	LastRead *time.Time
}

// Chat is one conversation with its full in-memory message history.
// Messages are append-only from the synchronizer's perspective; ordering for
// display is by SentAt and is the presentation layer's job.
type Chat struct {
	ID              string
	Name            string
	AvatarURL       string
	IsGroup         bool
	Phone           string
	Extension       string
	Participants    []string
	Messages        []Message
	Labels          []Label
	LastMessage     string
	LastMessageAt   time.Time
	UnreadCount     int
	ParticipantRead *time.Time
}

// Touch updates the derived last-message fields if m is newer than the
// current last message.
func (c *Chat) Touch(m Message) {
	if m.SentAt.After(c.LastMessageAt) || c.LastMessage == "" {
		c.LastMessage = m.Body
		c.LastMessageAt = m.SentAt
	}
}

// HasMessage reports whether a message with the given id is already in the
// chat's history.
func (c *Chat) HasMessage(id string) bool {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c *Chat) Clone() *Chat {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.Messages = append([]Message(nil), c.Messages...)
	cp.Labels = append([]Label(nil), c.Labels...)
	if c.ParticipantRead != nil {
		t := *c.ParticipantRead
		cp.ParticipantRead = &t
	}
	return &cp
}
