package dispatch

import (
	"context"
	"testing"

	logx "dailyrun/pkg/logx"
)

func TestFromCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Target
	}{
		{"[console] say hi", TargetConsole},
		{"[CONSOLE] say hi", TargetConsole},
		{"[op] whitelist add x", TargetOp},
		{"[Op] whitelist add x", TargetOp},
		{"[player] spawn", TargetPlayer},
		{"  [PLAYER] spawn", TargetPlayer},
		{"say hi", TargetConsole},
		{"", TargetConsole},
		{"[unknown] say hi", TargetConsole},
	}
	for _, tt := range tests {
		if got := FromCommand(tt.raw); got != tt.want {
			t.Fatalf("FromCommand(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestStripPrefix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
	}{
		{"[console] say hi", "say hi"},
		{"[CoNsOlE]say hi", "say hi"},
		{"[op]   broadcast hello", "broadcast hello"},
		{"[player] spawn", "spawn"},
		{"say hi", "say hi"},
		{"  say hi  ", "say hi"},
		{"[unknown] say hi", "[unknown] say hi"},
		// Exactly one tag is removed.
		{"[op] [op] twice", "[op] twice"},
		{"", ""},
		{"[console]", ""},
	}
	for _, tt := range tests {
		if got := StripPrefix(tt.raw); got != tt.want {
			t.Fatalf("StripPrefix(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

// Round-trip property: stripping removes the tag FromCommand recognized and
// nothing else.
func TestClassifyStripRoundTrip(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		target Target
		rest   string
	}{
		"[console] backup now": {TargetConsole, "backup now"},
		"[OP] stop":            {TargetOp, "stop"},
		"[player] home":        {TargetPlayer, "home"},
		"backup now":           {TargetConsole, "backup now"},
	}
	for raw, want := range cases {
		if got := FromCommand(raw); got != want.target {
			t.Fatalf("FromCommand(%q) = %v, want %v", raw, got, want.target)
		}
		if got := StripPrefix(raw); got != want.rest {
			t.Fatalf("StripPrefix(%q) = %q, want %q", raw, got, want.rest)
		}
	}
}

type fakeHost struct {
	users []string
	calls []struct {
		actor   Actor
		command string
	}
	ok bool
}

func (h *fakeHost) Dispatch(_ context.Context, as Actor, command string) bool {
	h.calls = append(h.calls, struct {
		actor   Actor
		command string
	}{as, command})
	return h.ok
}

func (h *fakeHost) ActiveUser(context.Context) (string, bool) {
	if len(h.users) == 0 {
		return "", false
	}
	return h.users[0], true
}

func TestDispatcherRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("console", func(t *testing.T) {
		h := &fakeHost{ok: true}
		d := New(h, logx.Nop())
		if !d.Run(ctx, "[console] say hi") {
			t.Fatal("expected success")
		}
		if len(h.calls) != 1 || !h.calls[0].actor.Console || h.calls[0].command != "say hi" {
			t.Fatalf("unexpected call: %+v", h.calls)
		}
	})

	t.Run("player with user connected", func(t *testing.T) {
		h := &fakeHost{ok: true, users: []string{"alice"}}
		d := New(h, logx.Nop())
		d.Run(ctx, "[player] home")
		if len(h.calls) != 1 || h.calls[0].actor.User != "alice" || h.calls[0].actor.Console {
			t.Fatalf("unexpected call: %+v", h.calls)
		}
	})

	t.Run("player fallback to console", func(t *testing.T) {
		h := &fakeHost{ok: true}
		d := New(h, logx.Nop())
		d.Run(ctx, "[player] home")
		if len(h.calls) != 1 || !h.calls[0].actor.Console {
			t.Fatalf("unexpected call: %+v", h.calls)
		}
	})

	t.Run("empty after strip", func(t *testing.T) {
		h := &fakeHost{ok: true}
		d := New(h, logx.Nop())
		if d.Run(ctx, "[op]   ") {
			t.Fatal("expected failure for empty remainder")
		}
		if len(h.calls) != 0 {
			t.Fatalf("host should not have been called: %+v", h.calls)
		}
	})
}
