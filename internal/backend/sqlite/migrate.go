package sqlite

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/pigeon-chat/pigeon/internal/backend/sqlite/migrations"
)

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

func (b *Backend) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(b.db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}

// Migrate runs all pending migrations.
func (b *Backend) Migrate() (*MigrateResult, error) {
	m, err := b.migrator()
	if err != nil {
		return nil, err
	}
	err = m.Up()
	changed := true
	if err == migrate.ErrNoChange {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}
	version, dirty, _ := m.Version()
	return &MigrateResult{Version: version, Dirty: dirty, Changed: changed}, nil
}

// MigrateTo pins the schema at a specific version. Used to reproduce older
// deployments: version 1 predates the id-based label schema, version 2
// predates the participants read watermark.
func (b *Backend) MigrateTo(version uint) (*MigrateResult, error) {
	m, err := b.migrator()
	if err != nil {
		return nil, err
	}
	err = m.Migrate(version)
	changed := true
	if err == migrate.ErrNoChange {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("migrate to %d: %w", version, err)
	}
	v, dirty, _ := m.Version()
	return &MigrateResult{Version: v, Dirty: dirty, Changed: changed}, nil
}
