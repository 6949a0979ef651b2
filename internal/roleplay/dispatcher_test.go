package roleplay

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/platform/platformtest"
)

type staticTemplates struct {
	m     map[string]string
	err   error
	calls int
}

func (s *staticTemplates) Snapshot() (map[string]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out, nil
}

var (
	bob   = platform.User{ID: 2, Username: "bob"}
	alice = platform.User{ID: 3, Username: "alice"}
	carol = platform.User{ID: 4, FirstName: "Carol"}
)

func withMention(text string, offset, length int) *platform.Message {
	return &platform.Message{
		ChatID: 1, MessageID: 50, From: bob, Text: text,
		Entities: []platform.Entity{{Type: platform.EntityMention, Offset: offset, Length: length}},
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		msg         *platform.Message
		wantOK      bool
		wantTarget  string
		wantKeyword string
	}{
		{
			name:        "handle then action",
			msg:         withMention("@alice hugs", 0, 6),
			wantOK:      true,
			wantTarget:  "@alice",
			wantKeyword: "hugs",
		},
		{
			name:        "trailing punctuation and case",
			msg:         withMention("@alice Hugs!!", 0, 6),
			wantOK:      true,
			wantTarget:  "@alice",
			wantKeyword: "hugs",
		},
		{
			name: "text_mention beats handle",
			msg: &platform.Message{
				From: bob, Text: "@alice Carol обнять.",
				Entities: []platform.Entity{
					{Type: platform.EntityMention, Offset: 0, Length: 6},
					{Type: platform.EntityTextMention, Offset: 7, Length: 5, User: &carol},
				},
			},
			wantOK:      true,
			wantTarget:  "Carol",
			wantKeyword: "обнять",
		},
		{
			name: "mention beats reply",
			msg: &platform.Message{
				From: bob, Text: "@alice hugs", ReplyTo: &carol,
				Entities: []platform.Entity{{Type: platform.EntityMention, Offset: 0, Length: 6}},
			},
			wantOK:      true,
			wantTarget:  "@alice",
			wantKeyword: "hugs",
		},
		{
			name:        "reply uses whole text",
			msg:         &platform.Message{From: bob, Text: "  Обнять, ", ReplyTo: &alice},
			wantOK:      true,
			wantTarget:  "@alice",
			wantKeyword: "обнять",
		},
		{
			name:   "plain text",
			msg:    &platform.Message{From: bob, Text: "hugs"},
			wantOK: false,
		},
		{
			name:   "mention without action",
			msg:    withMention("hi @alice", 3, 6),
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig, ok := Resolve(tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("Resolve() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got := trig.Target.Display(); got != tt.wantTarget {
				t.Errorf("target = %q, want %q", got, tt.wantTarget)
			}
			if trig.Keyword != tt.wantKeyword {
				t.Errorf("keyword = %q, want %q", trig.Keyword, tt.wantKeyword)
			}
		})
	}
}

func TestDispatch_RendersAndReplaces(t *testing.T) {
	tmpl := &staticTemplates{m: map[string]string{"hugs": "{user1} hugs {user2}"}}
	msgr := platformtest.New()
	d := NewDispatcher(tmpl, msgr)

	if !d.Dispatch(context.Background(), withMention("@alice hugs", 0, 6)) {
		t.Fatal("Dispatch() = false for a known action")
	}

	calls := msgr.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %+v, want delete then send", calls)
	}
	if calls[0].Kind != platformtest.KindDelete || calls[0].MessageID != 50 {
		t.Errorf("first call = %+v, want delete of trigger", calls[0])
	}
	if calls[1].Kind != platformtest.KindSend || calls[1].Text != "@bob hugs @alice" {
		t.Errorf("second call = %+v, want plain send of rendered text", calls[1])
	}
}

func TestDispatch_PunctuationVariantsMatch(t *testing.T) {
	tmpl := &staticTemplates{m: map[string]string{"hugs": "{user1} hugs {user2}"}}
	for _, text := range []string{"@alice hugs", "@alice hugs!", "@alice HUGS."} {
		msgr := platformtest.New()
		d := NewDispatcher(tmpl, msgr)
		if !d.Dispatch(context.Background(), withMention(text, 0, 6)) {
			t.Errorf("Dispatch(%q) = false", text)
		}
		if sends := msgr.CallsOf(platformtest.KindSend); len(sends) != 1 || sends[0].Text != "@bob hugs @alice" {
			t.Errorf("Dispatch(%q) sends = %+v", text, sends)
		}
	}
}

func TestDispatch_NoOp(t *testing.T) {
	tests := []struct {
		name string
		tmpl *staticTemplates
		msg  *platform.Message
	}{
		{"unknown keyword", &staticTemplates{m: map[string]string{"hugs": "{user1} hugs {user2}"}}, withMention("@alice waves", 0, 6)},
		{"not a trigger", &staticTemplates{m: map[string]string{"hugs": "x"}}, &platform.Message{From: bob, Text: "hugs"}},
		{"catalog error", &staticTemplates{err: errors.New("boom")}, withMention("@alice hugs", 0, 6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgr := platformtest.New()
			if NewDispatcher(tt.tmpl, msgr).Dispatch(context.Background(), tt.msg) {
				t.Error("Dispatch() = true")
			}
			if calls := msgr.Calls(); len(calls) != 0 {
				t.Errorf("calls = %+v, want none", calls)
			}
		})
	}
}

func TestDispatch_BrokenTemplateSendsNothing(t *testing.T) {
	tmpl := &staticTemplates{m: map[string]string{"hugs": "{user1} hugs {victim}"}}
	msgr := platformtest.New()
	if NewDispatcher(tmpl, msgr).Dispatch(context.Background(), withMention("@alice hugs", 0, 6)) {
		t.Error("Dispatch() = true for a template that failed to render")
	}
	if calls := msgr.Calls(); len(calls) != 0 {
		t.Errorf("calls = %+v, want no partial output", calls)
	}
}

func TestDispatch_FreshSnapshotPerMessage(t *testing.T) {
	tmpl := &staticTemplates{m: map[string]string{}}
	msgr := platformtest.New()
	d := NewDispatcher(tmpl, msgr)

	d.Dispatch(context.Background(), withMention("@alice hugs", 0, 6))
	tmpl.m["hugs"] = "{user1} hugs {user2}"
	if !d.Dispatch(context.Background(), withMention("@alice hugs", 0, 6)) {
		t.Error("catalog edit not visible on the next message")
	}
	if tmpl.calls != 2 {
		t.Errorf("Snapshot() called %d times, want 2", tmpl.calls)
	}
}

func TestDispatch_SendAfterFailedDelete(t *testing.T) {
	tmpl := &staticTemplates{m: map[string]string{"hugs": "{user1} hugs {user2}"}}
	msgr := platformtest.New()
	msgr.FailDelete = true
	NewDispatcher(tmpl, msgr).Dispatch(context.Background(), withMention("@alice hugs", 0, 6))

	if sends := msgr.CallsOf(platformtest.KindSend); len(sends) != 1 {
		t.Errorf("sends = %+v, want the action despite failed delete", sends)
	}
}
