// Package memory implements the store interfaces in process memory. State is
// lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/store"
)

// NewStores returns in-memory gag and member stores.
func NewStores() *store.Stores {
	return &store.Stores{
		Gags:    NewGagStore(),
		Members: NewMemberStore(),
	}
}

// GagStore implements store.GagStore.
type GagStore struct {
	mu   sync.Mutex
	gags map[int64]store.GagEntry
}

func NewGagStore() *GagStore {
	return &GagStore{gags: make(map[int64]store.GagEntry)}
}

func (s *GagStore) SaveGag(_ context.Context, g store.GagEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	s.gags[g.UserID] = g
	return nil
}

func (s *GagStore) DeleteGag(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gags, userID)
	return nil
}

func (s *GagStore) ListGags(_ context.Context) ([]store.GagEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.GagEntry, 0, len(s.gags))
	for _, g := range s.gags {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *GagStore) PruneGags(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, g := range s.gags {
		if g.ExpiresAt.Before(before) {
			delete(s.gags, id)
			n++
		}
	}
	return n, nil
}

type memberKey struct {
	chatID   int64
	username string
}

// MemberStore implements store.MemberStore.
type MemberStore struct {
	mu      sync.RWMutex
	members map[memberKey]platform.User
}

func NewMemberStore() *MemberStore {
	return &MemberStore{members: make(map[memberKey]platform.User)}
}

func (s *MemberStore) UpsertMember(_ context.Context, chatID int64, u platform.User) error {
	if u.Username == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey{chatID, strings.ToLower(u.Username)}] = u
	return nil
}

func (s *MemberStore) FindMember(_ context.Context, chatID int64, username string) (*platform.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.members[memberKey{chatID, strings.ToLower(strings.TrimPrefix(username, "@"))}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}
