// Package sqlite implements the backend facade over an embedded SQLite
// database, with change notifications fanned out in-process and object
// storage delegated to an objstore.Store.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/objstore"
)

// Backend is the embedded SQLite implementation of backend.Facade.
type Backend struct {
	db      *sql.DB
	objects objstore.Store
	subs    *subscribers
}

var _ backend.Facade = (*Backend)(nil)

// Open creates a SQLite-backed facade with WAL mode and recommended pragmas.
// The objstore may be nil if Upload is never used.
func Open(path string, objects objstore.Store) (*Backend, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Backend{
		db:      db,
		objects: objects,
		subs:    newSubscribers(),
	}, nil
}

// Close closes the underlying database.
func (b *Backend) Close() error {
	return b.db.Close()
}
