package bus

import "time"

// Event kinds published by pigeon components. Subscribers filter by
// namespace prefix, e.g. "chat." receives chat.updated and chat.created.
const (
	KindChatUpdated   = "chat.updated"
	KindChatCreated   = "chat.created"
	KindChatRead      = "chat.read"
	KindMessageQueued = "message.queued"
	KindMessageSent   = "message.sent"
	KindMessageFailed = "message.failed"
	KindSyncRefreshed = "sync.refreshed"
	KindSyncDegraded  = "sync.degraded"
	KindStatusChanged = "session.status_changed"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
