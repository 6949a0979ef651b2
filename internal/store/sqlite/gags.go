package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/store"
)

// GagStore implements store.GagStore backed by SQLite.
type GagStore struct {
	db *sql.DB
}

func NewGagStore(db *sql.DB) *GagStore {
	return &GagStore{db: db}
}

func (s *GagStore) SaveGag(ctx context.Context, g store.GagEntry) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gags (user_id, chat_id, username, name, expires_at, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   chat_id = excluded.chat_id,
		   username = excluded.username,
		   name = excluded.name,
		   expires_at = excluded.expires_at,
		   created_by = excluded.created_by,
		   created_at = excluded.created_at`,
		g.UserID, g.ChatID, g.Username, g.Name, g.ExpiresAt.Unix(), g.CreatedBy, g.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save gag %d: %w", g.UserID, err)
	}
	return nil
}

func (s *GagStore) DeleteGag(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM gags WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete gag %d: %w", userID, err)
	}
	return nil
}

func (s *GagStore) ListGags(ctx context.Context) ([]store.GagEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, chat_id, username, name, expires_at, created_by, created_at
		 FROM gags ORDER BY expires_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.GagEntry
	for rows.Next() {
		var g store.GagEntry
		var expires, created int64
		if err := rows.Scan(&g.UserID, &g.ChatID, &g.Username, &g.Name, &expires, &g.CreatedBy, &created); err != nil {
			return nil, err
		}
		g.ExpiresAt = time.Unix(expires, 0)
		g.CreatedAt = time.Unix(created, 0)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *GagStore) PruneGags(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM gags WHERE expires_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune gags: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
