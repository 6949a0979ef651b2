// Package sqlite implements the store interfaces on a local SQLite file using
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/gagbot/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenDB opens (creating if needed) the database at path.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// one writer at a time; the driver serializes anyway
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// NewMigrator returns a migrator over the embedded migrations for the
// database at path. The caller must Close it.
func NewMigrator(path string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+path)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies all pending migrations.
func Migrate(path string) error {
	m, err := NewMigrator(path)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// NewStores migrates the database at path and returns stores backed by it.
func NewStores(path string) (*store.Stores, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	status, err := CheckSchema(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if status.Dirty || status.CurrentVersion > status.RequiredVersion {
		db.Close()
		return nil, fmt.Errorf("%w: %s", ErrSchemaAhead, FormatError(status))
	}
	if status.NeedsMigration {
		if err := Migrate(path); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &store.Stores{
		Gags:    NewGagStore(db),
		Members: NewMemberStore(db),
		Close:   db.Close,
	}, nil
}
