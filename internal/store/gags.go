package store

import (
	"context"
	"errors"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/platform"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// GagEntry is the durable form of an active gag.
type GagEntry struct {
	UserID    int64
	ChatID    int64
	Username  string
	Name      string
	ExpiresAt time.Time
	CreatedBy int64
	CreatedAt time.Time
}

// GagStore journals active gags so they survive a restart.
// Saving an entry for a user already journaled replaces it.
type GagStore interface {
	SaveGag(ctx context.Context, g GagEntry) error
	DeleteGag(ctx context.Context, userID int64) error
	ListGags(ctx context.Context) ([]GagEntry, error)
	// PruneGags removes entries that expired before the given instant.
	PruneGags(ctx context.Context, before time.Time) (int, error)
}

// MemberStore remembers users seen in a chat so plain @handles can be
// resolved to user ids.
type MemberStore interface {
	UpsertMember(ctx context.Context, chatID int64, u platform.User) error
	// FindMember matches username case-insensitively. Returns ErrNotFound when unknown.
	FindMember(ctx context.Context, chatID int64, username string) (*platform.User, error)
}
