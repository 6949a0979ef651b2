package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
)

// RequiredSchemaVersion is the newest migration embedded in this binary.
const RequiredSchemaVersion uint = 1

var ErrSchemaAhead = errors.New("database schema is newer than this binary")

// SchemaStatus represents the result of a schema compatibility check.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

// CheckSchema reads the schema_migrations table and compares it against
// RequiredSchemaVersion. A fresh database reports NeedsMigration.
func CheckSchema(db *sql.DB) (*SchemaStatus, error) {
	s := &SchemaStatus{RequiredVersion: RequiredSchemaVersion}

	var exists int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check schema table: %w", err)
	}
	if exists == 0 {
		s.NeedsMigration = true
		return s, nil
	}

	err = db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&s.CurrentVersion, &s.Dirty)
	if errors.Is(err, sql.ErrNoRows) {
		s.NeedsMigration = true
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	if s.Dirty {
		return s, nil
	}

	switch {
	case s.CurrentVersion == RequiredSchemaVersion:
		s.Compatible = true
	case s.CurrentVersion < RequiredSchemaVersion:
		s.NeedsMigration = true
	}
	return s, nil
}

// FormatError returns a user-facing explanation for an incompatible status.
func FormatError(s *SchemaStatus) string {
	if s.Dirty {
		return fmt.Sprintf(
			"Database schema is in a dirty state (version %d).\n"+
				"This usually means a migration failed partway.\n\n"+
				"  Fix:  gagbot migrate force %d\n"+
				"  Then: gagbot migrate up\n",
			s.CurrentVersion, s.CurrentVersion-1,
		)
	}
	if s.CurrentVersion > s.RequiredVersion {
		return fmt.Sprintf(
			"Database schema (v%d) is newer than this binary (requires v%d).\n"+
				"  Fix: upgrade your gagbot binary.\n",
			s.CurrentVersion, s.RequiredVersion,
		)
	}
	return fmt.Sprintf(
		"Database schema is outdated: current v%d, required v%d.\n"+
			"  Run: gagbot migrate up\n",
		s.CurrentVersion, s.RequiredVersion,
	)
}
