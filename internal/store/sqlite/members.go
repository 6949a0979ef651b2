package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/store"
)

// MemberStore implements store.MemberStore backed by SQLite.
type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func (s *MemberStore) UpsertMember(ctx context.Context, chatID int64, u platform.User) error {
	if u.Username == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (chat_id, handle, username, user_id, first_name, is_bot, seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (chat_id, handle) DO UPDATE SET
		   username = excluded.username,
		   user_id = excluded.user_id,
		   first_name = excluded.first_name,
		   is_bot = excluded.is_bot,
		   seen_at = excluded.seen_at`,
		chatID, strings.ToLower(u.Username), u.Username, u.ID, u.FirstName, u.IsBot, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert member %d: %w", u.ID, err)
	}
	return nil
}

func (s *MemberStore) FindMember(ctx context.Context, chatID int64, username string) (*platform.User, error) {
	key := strings.ToLower(strings.TrimPrefix(username, "@"))
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, first_name, is_bot FROM members WHERE chat_id = ? AND handle = ?`,
		chatID, key)

	u := &platform.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.IsBot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find member %q: %w", key, err)
	}
	return u, nil
}
