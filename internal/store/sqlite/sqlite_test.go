package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/store"
)

func newTestStores(t *testing.T) *store.Stores {
	t.Helper()
	s, err := NewStores(filepath.Join(t.TempDir(), "data", "gagbot.db"))
	if err != nil {
		t.Fatalf("NewStores() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGagStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	if err := s.Gags.SaveGag(ctx, store.GagEntry{UserID: 7, ChatID: -100, Username: "bob", ExpiresAt: exp, CreatedBy: 1}); err != nil {
		t.Fatal(err)
	}
	// replacing keeps one row per user
	if err := s.Gags.SaveGag(ctx, store.GagEntry{UserID: 7, ChatID: -100, Username: "bob", ExpiresAt: exp.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}

	gags, err := s.Gags.ListGags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(gags) != 1 {
		t.Fatalf("ListGags() = %d rows, want 1", len(gags))
	}
	if g := gags[0]; g.ChatID != -100 || g.Username != "bob" || !g.ExpiresAt.Equal(exp.Add(time.Minute)) {
		t.Errorf("gag = %+v", g)
	}

	if err := s.Gags.DeleteGag(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if gags, _ := s.Gags.ListGags(ctx); len(gags) != 0 {
		t.Errorf("ListGags() after delete = %d rows", len(gags))
	}
}

func TestMemberStore_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)

	if err := s.Members.UpsertMember(ctx, 1, platform.User{ID: 42, Username: "Alice", FirstName: "Alice"}); err != nil {
		t.Fatal(err)
	}
	u, err := s.Members.FindMember(ctx, 1, "@ALICE")
	if err != nil {
		t.Fatalf("FindMember() error: %v", err)
	}
	if u.ID != 42 || u.Username != "Alice" {
		t.Errorf("FindMember() = %+v", u)
	}
	if _, err := s.Members.FindMember(ctx, 2, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindMember() other chat error = %v, want ErrNotFound", err)
	}
}

func TestPruner(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	now := time.Now()
	_ = s.Gags.SaveGag(ctx, store.GagEntry{UserID: 1, ExpiresAt: now.Add(-time.Hour)})
	_ = s.Gags.SaveGag(ctx, store.GagEntry{UserID: 2, ExpiresAt: now.Add(time.Hour)})

	p, err := NewPruner(s.Gags, "")
	if err != nil {
		t.Fatal(err)
	}
	n, err := p.RunOnce(ctx)
	if err != nil || n != 1 {
		t.Errorf("RunOnce() = %d, %v, want 1", n, err)
	}

	if _, err := NewPruner(s.Gags, "not a cron"); err == nil {
		t.Error("NewPruner(invalid) = nil error")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gagbot.db")
	for i := 0; i < 2; i++ {
		if err := Migrate(path); err != nil {
			t.Fatalf("Migrate() run %d error: %v", i+1, err)
		}
	}
}

func TestCheckSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.db")

	db, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	status, err := CheckSchema(db)
	if err != nil || !status.NeedsMigration || status.Compatible {
		t.Fatalf("fresh CheckSchema() = %+v, %v", status, err)
	}
	db.Close()

	s, err := NewStores(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	db, err = OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	status, err = CheckSchema(db)
	if err != nil || !status.Compatible || status.CurrentVersion != RequiredSchemaVersion {
		t.Fatalf("migrated CheckSchema() = %+v, %v", status, err)
	}

	if _, err := db.Exec(`UPDATE schema_migrations SET version = ?`, RequiredSchemaVersion+1); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStores(path); !errors.Is(err, ErrSchemaAhead) {
		t.Errorf("NewStores() on newer schema error = %v, want ErrSchemaAhead", err)
	}
}
