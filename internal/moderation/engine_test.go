package moderation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/config"
	"github.com/nextlevelbuilder/gagbot/internal/mention"
	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/platform/platformtest"
	"github.com/nextlevelbuilder/gagbot/internal/scheduler"
	"github.com/nextlevelbuilder/gagbot/internal/scheduler/schedulertest"
	"github.com/nextlevelbuilder/gagbot/internal/store"
	"github.com/nextlevelbuilder/gagbot/internal/store/memory"
)

const chatID = -100500

var (
	admin = platform.User{ID: 1, Username: "admin"}
	bob   = platform.User{ID: 2, Username: "bob"}
	alice = platform.User{ID: 3, Username: "alice"}
	carol = platform.User{ID: 4, FirstName: "Carol"}
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	engine  *Engine
	msgr    *platformtest.Messenger
	sched   *schedulertest.Manual
	cfg     *config.Config
	journal *memory.GagStore
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Admins = config.FlexibleInt64Slice{admin.ID}
	cfg.Mumbles = []string{"ммм!", "ыыы"}
	for _, m := range mutate {
		m(cfg)
	}

	h := &harness{
		msgr:    platformtest.New(),
		sched:   schedulertest.NewManual(),
		cfg:     cfg,
		journal: memory.NewGagStore(),
	}
	h.msgr.AddMember(alice)
	h.engine = NewEngine(config.NewStaticStore(cfg), h.msgr, h.sched, mention.NewResolver(h.msgr),
		WithJournal(h.journal),
		WithClock(func() time.Time { return fixedNow }),
		WithPicker(func(int) int { return 0 }),
	)
	return h
}

var nextMsgID = 100

func message(from platform.User, text string, replyTo *platform.User) *platform.Message {
	nextMsgID++
	return &platform.Message{ChatID: chatID, MessageID: nextMsgID, From: from, Text: text, ReplyTo: replyTo}
}

// handleMention builds a message whose text starts with "<prefix> @handle".
func handleMention(from platform.User, prefix, handle, rest string) *platform.Message {
	text := prefix + " @" + handle + rest
	msg := message(from, text, nil)
	msg.Entities = []platform.Entity{{
		Type:   platform.EntityMention,
		Offset: len([]rune(prefix)) + 1,
		Length: len(handle) + 1,
	}}
	return msg
}

func (h *harness) gag(t *testing.T, actor, target platform.User, text string) {
	t.Helper()
	if !h.engine.HandleMessage(context.Background(), message(actor, text, &target)) {
		t.Fatalf("gag command %q not consumed", text)
	}
}

func TestGag_ViaReply(t *testing.T) {
	h := newHarness(t)
	cmd := message(bob, "кляп 90с", &alice)

	if !h.engine.HandleMessage(context.Background(), cmd) {
		t.Fatal("gag command not consumed")
	}
	if !h.engine.IsGagged(alice.ID) {
		t.Fatal("alice not gagged")
	}

	calls := h.msgr.Calls()
	if len(calls) != 2 || calls[0].Kind != platformtest.KindDelete || calls[0].MessageID != cmd.MessageID {
		t.Fatalf("calls = %+v, want delete of command then announcement", calls)
	}
	if want := "@bob надел кляп на @alice на 1м30с"; calls[1].Text != want {
		t.Errorf("announcement = %q, want %q", calls[1].Text, want)
	}

	tasks := h.sched.PendingNamed(TaskGagExpire)
	if len(tasks) != 1 || tasks[0].Delay != 90*time.Second {
		t.Errorf("expiry tasks = %+v, want one 90s task", tasks)
	}

	active := h.engine.Active()
	if len(active) != 1 || !active[0].ExpiresAt.Equal(fixedNow.Add(90*time.Second)) {
		t.Errorf("Active() = %+v", active)
	}
	if gags, _ := h.journal.ListGags(context.Background()); len(gags) != 1 || gags[0].CreatedBy != bob.ID {
		t.Errorf("journal = %+v", gags)
	}
}

func TestGag_ViaHandleLookup(t *testing.T) {
	h := newHarness(t)
	msg := handleMention(bob, "Кляп", "alice", " 5 минут")

	h.engine.HandleMessage(context.Background(), msg)

	if !h.engine.IsGagged(alice.ID) {
		t.Fatal("alice not gagged via @handle")
	}
	if tasks := h.sched.PendingNamed(TaskGagExpire); len(tasks) != 1 || tasks[0].Delay != 5*time.Minute {
		t.Errorf("expiry tasks = %+v, want one 5m task", tasks)
	}
}

func TestGag_UntilTime(t *testing.T) {
	h := newHarness(t)
	h.gag(t, bob, alice, "кляп до 9:05")

	// 10:00 now, so 9:05 is tomorrow
	want := 23*time.Hour + 5*time.Minute
	if tasks := h.sched.PendingNamed(TaskGagExpire); len(tasks) != 1 || tasks[0].Delay != want {
		t.Errorf("expiry tasks = %+v, want delay %v", tasks, want)
	}
}

func TestGag_ReplaceCancelsPreviousExpiry(t *testing.T) {
	h := newHarness(t)
	h.gag(t, bob, alice, "кляп 1м")
	first := h.sched.PendingNamed(TaskGagExpire)[0]

	h.gag(t, bob, alice, "кляп 10м")
	if !first.Cancelled() {
		t.Error("first expiry task not cancelled on replace")
	}
	if n := len(h.engine.Active()); n != 1 {
		t.Fatalf("Active() = %d records, want 1", n)
	}

	// the old deadline passing must not release the new gag
	h.sched.Advance(2 * time.Minute)
	if !h.engine.IsGagged(alice.ID) {
		t.Fatal("stale expiry removed the replacement gag")
	}

	h.sched.Advance(10 * time.Minute)
	if h.engine.IsGagged(alice.ID) {
		t.Error("replacement gag did not expire")
	}
}

func TestExpire_IsSilent(t *testing.T) {
	h := newHarness(t)
	h.gag(t, bob, alice, "кляп 1м")
	h.msgr.Reset()

	h.sched.Advance(time.Minute)

	if h.engine.IsGagged(alice.ID) {
		t.Fatal("gag still active after expiry")
	}
	if calls := h.msgr.Calls(); len(calls) != 0 {
		t.Errorf("expiry produced chat traffic: %+v", calls)
	}
	if gags, _ := h.journal.ListGags(context.Background()); len(gags) != 0 {
		t.Errorf("journal not cleared on expiry: %+v", gags)
	}
}

func TestExpire_WithoutRecordIsNoop(t *testing.T) {
	h := newHarness(t)
	h.engine.Expire(context.Background(), alice.ID)

	h.gag(t, bob, alice, "кляп 1м")
	h.engine.Expire(context.Background(), alice.ID)
	h.engine.Expire(context.Background(), alice.ID)
	if h.engine.IsGagged(alice.ID) {
		t.Error("Expire() did not remove the gag")
	}
	if n := len(h.sched.PendingNamed(TaskGagExpire)); n != 0 {
		t.Errorf("%d expiry tasks still pending", n)
	}
}

func TestMumble(t *testing.T) {
	h := newHarness(t)
	h.gag(t, bob, alice, "кляп 5м")
	h.msgr.Reset()

	msg := message(alice, "let me speak", nil)
	if !h.engine.HandleMessage(context.Background(), msg) {
		t.Fatal("gagged user's message not consumed")
	}

	calls := h.msgr.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %+v, want delete then mumble", calls)
	}
	if calls[0].Kind != platformtest.KindDelete || calls[0].MessageID != msg.MessageID {
		t.Errorf("first call = %+v, want delete of %d", calls[0], msg.MessageID)
	}
	if calls[1].Kind != platformtest.KindSend || calls[1].Text != "@alice: ммм!" {
		t.Errorf("mumble = %+v", calls[1])
	}

	tasks := h.sched.PendingNamed(TaskMumbleDelete)
	if len(tasks) != 1 || tasks[0].Delay != 5*time.Second {
		t.Fatalf("mumble delete tasks = %+v", tasks)
	}
	h.sched.Advance(5 * time.Second)

	deletes := h.msgr.CallsOf(platformtest.KindDelete)
	if len(deletes) != 2 || deletes[1].MessageID != calls[1].MessageID {
		t.Errorf("mumble not deleted after delay: %+v", deletes)
	}
}

func TestMumble_SentEvenIfDeleteFails(t *testing.T) {
	h := newHarness(t)
	h.gag(t, bob, carol, "кляп 5м")
	h.msgr.Reset()
	h.msgr.FailDelete = true

	h.engine.HandleMessage(context.Background(), message(carol, "hello", nil))

	sends := h.msgr.CallsOf(platformtest.KindSend)
	if len(sends) != 1 || sends[0].Text != "Carol: ммм!" {
		t.Errorf("sends = %+v, want mumble with first-name mention", sends)
	}
}

func TestHandleMessage_PassThrough(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		msg  *platform.Message
	}{
		{"free user", message(bob, "hello", nil)},
		{"empty text", message(alice, "", nil)},
		{"gag word mid-sentence", message(bob, "дай кляп", &alice)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if h.engine.HandleMessage(context.Background(), tt.msg) {
				t.Error("message consumed")
			}
		})
	}
	if calls := h.msgr.Calls(); len(calls) != 0 {
		t.Errorf("calls = %+v, want none", calls)
	}
}

func TestGag_UserErrors(t *testing.T) {
	tests := []struct {
		name    string
		msg     func() *platform.Message
		mutate  func(*config.Config)
		wantMsg string
	}{
		{
			name:    "no target",
			msg:     func() *platform.Message { return message(bob, "кляп 5м", nil) },
			wantMsg: replyGagNoTarget,
		},
		{
			name:    "no duration",
			msg:     func() *platform.Message { return message(bob, "кляп навсегда", &alice) },
			wantMsg: replyNoDuration,
		},
		{
			name:    "zero duration",
			msg:     func() *platform.Message { return message(bob, "кляп 0м", &alice) },
			wantMsg: replyInvalidTime,
		},
		{
			name:    "unknown handle",
			msg:     func() *platform.Message { return handleMention(bob, "кляп", "nobody", " 5м") },
			wantMsg: replyGagNoTarget,
		},
		{
			name:    "admin only",
			msg:     func() *platform.Message { return message(bob, "кляп 5м", &alice) },
			mutate:  func(c *config.Config) { c.Gag.AdminOnly = true },
			wantMsg: replyGagAdminOnly,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mut []func(*config.Config)
			if tt.mutate != nil {
				mut = append(mut, tt.mutate)
			}
			h := newHarness(t, mut...)
			msg := tt.msg()
			if !h.engine.HandleMessage(context.Background(), msg) {
				t.Fatal("command not consumed")
			}

			calls := h.msgr.Calls()
			if len(calls) != 1 || calls[0].Kind != platformtest.KindReply || calls[0].MessageID != msg.MessageID {
				t.Fatalf("calls = %+v, want a single reply", calls)
			}
			if calls[0].Text != tt.wantMsg {
				t.Errorf("reply = %q, want %q", calls[0].Text, tt.wantMsg)
			}
			if len(h.engine.Active()) != 0 {
				t.Error("state changed on user error")
			}
		})
	}
}

func TestUngag(t *testing.T) {
	t.Run("non-admin on another user is rejected", func(t *testing.T) {
		h := newHarness(t)
		h.gag(t, bob, alice, "кляп 5м")
		h.msgr.Reset()

		h.engine.HandleMessage(context.Background(), message(bob, "снять кляп", &alice))

		if !h.engine.IsGagged(alice.ID) {
			t.Fatal("gag removed by non-admin")
		}
		replies := h.msgr.CallsOf(platformtest.KindReply)
		if len(replies) != 1 || replies[0].Text != replyUngagAdminOnly {
			t.Errorf("replies = %+v", replies)
		}
		if len(h.msgr.CallsOf(platformtest.KindDelete)) != 0 {
			t.Error("rejected command was deleted")
		}
	})

	t.Run("self release is allowed", func(t *testing.T) {
		h := newHarness(t)
		h.gag(t, bob, alice, "кляп 5м")
		task := h.sched.PendingNamed(TaskGagExpire)[0]
		h.msgr.Reset()

		// a gagged user's ungag command is handled, not mumbled
		h.engine.HandleMessage(context.Background(), message(alice, "Снять кляп", &alice))

		if h.engine.IsGagged(alice.ID) {
			t.Fatal("self ungag failed")
		}
		if !task.Cancelled() {
			t.Error("expiry task not cancelled on ungag")
		}
		sends := h.msgr.CallsOf(platformtest.KindSend)
		if len(sends) != 1 || sends[0].Text != "✅ @alice освобождён(а) от кляпа" {
			t.Errorf("sends = %+v", sends)
		}
	})

	t.Run("admin releases anyone", func(t *testing.T) {
		h := newHarness(t)
		h.gag(t, bob, alice, "кляп 5м")
		released, err := h.engine.Ungag(context.Background(), chatID, admin, mention.FromUser(alice))
		if err != nil || !released {
			t.Errorf("Ungag() = %v, %v", released, err)
		}
	})

	t.Run("not gagged is announced", func(t *testing.T) {
		h := newHarness(t)
		released, err := h.engine.Ungag(context.Background(), chatID, alice, mention.FromUser(alice))
		if err != nil || released {
			t.Errorf("Ungag() = %v, %v, want false, nil", released, err)
		}
		sends := h.msgr.CallsOf(platformtest.KindSend)
		if len(sends) != 1 || sends[0].Text != "⚠️ @alice не был(а) в кляпе" {
			t.Errorf("sends = %+v", sends)
		}
	})

	t.Run("api permission error", func(t *testing.T) {
		h := newHarness(t)
		h.gag(t, bob, alice, "кляп 5м")
		_, err := h.engine.Ungag(context.Background(), chatID, bob, mention.FromUser(alice))
		if !errors.Is(err, ErrPermission) {
			t.Errorf("Ungag() error = %v, want ErrPermission", err)
		}
	})
}

func TestUngagBeforeGagPrefix(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Gags = []string{"кляп"}
		c.Ungags = []string{"кляп снять"}
	})
	h.gag(t, bob, alice, "кляп 5м")

	h.engine.HandleMessage(context.Background(), message(admin, "кляп снять 5м", &alice))
	if h.engine.IsGagged(alice.ID) {
		t.Error("overlapping prefix resolved to gag instead of ungag")
	}
}

func TestGag_API(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no id", Request{ChatID: chatID, Actor: bob, Target: mention.FromHandle("@ghost"), Seconds: 60}, ErrNoTarget},
		{"zero seconds", Request{ChatID: chatID, Actor: bob, Target: mention.FromUser(alice), Seconds: 0}, ErrInvalidTime},
		{"ok", Request{ChatID: chatID, Actor: bob, Target: mention.FromUser(alice), Seconds: 60}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.engine.Gag(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Gag() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseSeconds(t *testing.T) {
	if _, err := ParseSeconds("кляп", fixedNow); !errors.Is(err, ErrNoDuration) {
		t.Errorf("ParseSeconds(no time) error = %v", err)
	}
	if _, err := ParseSeconds("кляп 0с", fixedNow); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("ParseSeconds(0с) error = %v", err)
	}
	if s, err := ParseSeconds("кляп 2 часа", fixedNow); err != nil || s != 7200 {
		t.Errorf("ParseSeconds(2 часа) = %d, %v", s, err)
	}
}

func TestRestore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.journal.SaveGag(ctx, store.GagEntry{UserID: alice.ID, ChatID: chatID, Username: "alice", ExpiresAt: fixedNow.Add(time.Minute)})
	_ = h.journal.SaveGag(ctx, store.GagEntry{UserID: bob.ID, ChatID: chatID, Username: "bob", ExpiresAt: fixedNow.Add(-time.Minute)})

	n, err := h.engine.Restore(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Restore() = %d, %v, want 1", n, err)
	}
	if !h.engine.IsGagged(alice.ID) || h.engine.IsGagged(bob.ID) {
		t.Errorf("Active() after restore = %+v", h.engine.Active())
	}
	if tasks := h.sched.PendingNamed(TaskGagExpire); len(tasks) != 1 || tasks[0].Delay != time.Minute {
		t.Errorf("restored expiry = %+v", tasks)
	}
	gags, _ := h.journal.ListGags(ctx)
	if len(gags) != 1 {
		t.Errorf("stale journal entry kept: %+v", gags)
	}
	if calls := h.msgr.Calls(); len(calls) != 0 {
		t.Errorf("restore produced chat traffic: %+v", calls)
	}
}

func TestGag_AnnouncementUsesFirstNameFallback(t *testing.T) {
	h := newHarness(t)
	h.gag(t, carol, alice, "кляп 2м")
	sends := h.msgr.CallsOf(platformtest.KindSend)
	if len(sends) != 1 || !strings.HasPrefix(sends[0].Text, "Carol надел кляп") {
		t.Errorf("sends = %+v", sends)
	}
}

// blockingJournal holds SaveGag until release is closed.
type blockingJournal struct {
	*memory.GagStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (j *blockingJournal) SaveGag(ctx context.Context, g store.GagEntry) error {
	j.once.Do(func() { close(j.entered) })
	<-j.release
	return j.GagStore.SaveGag(ctx, g)
}

func TestUngag_DuringJournalWriteLeavesNoRow(t *testing.T) {
	journal := &blockingJournal{
		GagStore: memory.NewGagStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	cfg := config.Default()
	cfg.Admins = config.FlexibleInt64Slice{admin.ID}
	sched := schedulertest.NewManual()
	msgr := platformtest.New()
	engine := NewEngine(config.NewStaticStore(cfg), msgr, sched, mention.NewResolver(msgr),
		WithJournal(journal),
		WithClock(func() time.Time { return fixedNow }),
	)
	ctx := context.Background()

	gagDone := make(chan error, 1)
	go func() {
		gagDone <- engine.Gag(ctx, Request{ChatID: chatID, Actor: bob, Target: mention.FromUser(alice), Seconds: 600})
	}()
	<-journal.entered

	type result struct {
		released bool
		err      error
	}
	ungagDone := make(chan result, 1)
	go func() {
		released, err := engine.Ungag(ctx, chatID, admin, mention.FromUser(alice))
		ungagDone <- result{released, err}
	}()

	// give the ungag time to reach the engine while the write is blocked
	time.Sleep(20 * time.Millisecond)
	close(journal.release)

	if err := <-gagDone; err != nil {
		t.Fatalf("Gag() error: %v", err)
	}
	res := <-ungagDone
	if res.err != nil || !res.released {
		t.Fatalf("Ungag() = %v, %v, want released", res.released, res.err)
	}
	if engine.IsGagged(alice.ID) {
		t.Error("alice still gagged in memory")
	}
	rows, _ := journal.ListGags(ctx)
	if len(rows) != 0 {
		t.Fatalf("journal rows = %+v, want none after ungag", rows)
	}

	restarted := NewEngine(config.NewStaticStore(cfg), platformtest.New(), schedulertest.NewManual(), mention.NewResolver(msgr),
		WithJournal(journal.GagStore),
		WithClock(func() time.Time { return fixedNow }),
	)
	if n, err := restarted.Restore(ctx); err != nil || n != 0 {
		t.Errorf("Restore() after ungag = %d, %v, want 0", n, err)
	}
}

func TestGag_ConcurrentOnSameUserKeepsOneTimer(t *testing.T) {
	cfg := config.Default()
	sched := scheduler.New()
	defer sched.Stop(context.Background())
	msgr := platformtest.New()
	journal := memory.NewGagStore()
	engine := NewEngine(config.NewStaticStore(cfg), msgr, sched, mention.NewResolver(msgr), WithJournal(journal))
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := Request{ChatID: chatID, Actor: bob, Target: mention.FromUser(alice), Seconds: 600 + i}
			if err := engine.Gag(ctx, req); err != nil {
				t.Errorf("Gag() error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if p := sched.Pending(); p != 1 {
		t.Errorf("Pending() = %d expiry timers, want 1", p)
	}
	active := engine.Active()
	if len(active) != 1 {
		t.Fatalf("Active() = %d records, want 1", len(active))
	}
	rows, _ := journal.ListGags(ctx)
	if len(rows) != 1 || !rows[0].ExpiresAt.Equal(active[0].ExpiresAt) {
		t.Errorf("journal = %+v, want the installed expiry %v", rows, active[0].ExpiresAt)
	}
}
