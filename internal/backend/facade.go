// Package backend defines the facade contract the chat core talks to: a
// collection-oriented datastore with change subscriptions, named
// transactional procedures, and object storage. Implementations may back it
// with any datastore + pub/sub mechanism; the sqlite subpackage is the
// embedded one.
package backend

import "context"

// Collection names used by the chat core.
const (
	CollUsers        = "users"
	CollChats        = "chats"
	CollMessages     = "messages"
	CollParticipants = "participants"
	CollLabels       = "labels"
	CollChatLabels   = "chat_labels"
	CollChatTags     = "chat_tags"
	CollOutbox       = "outbox"
)

// Procedure names for atomic multi-row operations.
const (
	ProcDirectChatFindOrCreate = "direct_chat_find_or_create"
	ProcGroupChatCreate        = "group_chat_create"
)

// Record is one row of a collection.
type Record map[string]any

// Filter is an equality predicate over record fields. A nil filter matches
// every record.
type Filter map[string]any

// Options controls ordering and limits for queries.
type Options struct {
	OrderBy   string
	Ascending bool
	Limit     int
}

// ChangeKind identifies the mutation type carried by a Change.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is one datastore mutation delivered on a subscription.
type Change struct {
	Kind       ChangeKind
	Collection string
	Record     Record
	Old        Record
}

// Facade is the backend contract. Every call may suspend on I/O; callers
// pass a context for deadline propagation.
type Facade interface {
	Query(ctx context.Context, collection string, filter Filter, opts *Options) ([]Record, error)
	Insert(ctx context.Context, collection string, records ...Record) error
	Update(ctx context.Context, collection string, patch Record, filter Filter) (int64, error)
	Delete(ctx context.Context, collection string, filter Filter) (int64, error)
	Call(ctx context.Context, procedure string, args Record) (Record, error)

	// Subscribe delivers changes of the given kinds on one collection,
	// optionally narrowed by an equality filter, until cancel is called or
	// ctx ends. Delivery order follows commit order.
	Subscribe(ctx context.Context, collection string, kinds []ChangeKind, filter Filter) (<-chan Change, func(), error)

	// Upload stores an object and returns its public URL.
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}
