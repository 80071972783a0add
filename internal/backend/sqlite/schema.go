package sqlite

import (
	"fmt"

	"github.com/pigeon-chat/pigeon/internal/backend"
)

// collections maps every exposed collection to its column allowlist. Query
// building only ever interpolates identifiers taken from these lists; values
// always go through placeholders.
var collections = map[string][]string{
	backend.CollUsers:        {"id", "name", "avatar_url", "phone", "email", "status"},
	backend.CollChats:        {"id", "name", "avatar_url", "is_group", "phone", "extension", "created_at"},
	backend.CollMessages:     {"id", "chat_id", "sender_id", "sender_name", "body", "attachments", "sent_at"},
	backend.CollParticipants: {"chat_id", "user_id", "last_read"},
	backend.CollLabels:       {"id", "name", "color"},
	backend.CollChatLabels:   {"chat_id", "label_id"},
	backend.CollChatTags:     {"chat_id", "name"},
	backend.CollOutbox:       {"client_msg_id", "chat_id", "body", "status", "error_message", "created_at", "updated_at"},
}

func columnsFor(collection string) ([]string, error) {
	cols, ok := collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %q", backend.ErrUnknownCollection, collection)
	}
	return cols, nil
}

func validColumn(collection, name string) bool {
	for _, c := range collections[collection] {
		if c == name {
			return true
		}
	}
	return false
}
