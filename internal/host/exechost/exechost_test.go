package exechost

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dailyrun/internal/dispatch"
	logx "dailyrun/pkg/logx"
)

func TestDispatchSuccess(t *testing.T) {
	t.Parallel()
	h := New(Options{}, logx.Nop())

	marker := filepath.Join(t.TempDir(), "ran")
	if !h.Dispatch(context.Background(), dispatch.Actor{Console: true}, "touch "+marker) {
		t.Fatal("expected dispatch to succeed")
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("command did not run: %v", err)
	}
}

func TestDispatchFailure(t *testing.T) {
	t.Parallel()
	h := New(Options{}, logx.Nop())
	if h.Dispatch(context.Background(), dispatch.Actor{Console: true}, "exit 3") {
		t.Fatal("non-zero exit must report failure")
	}
}

func TestDispatchActorEnv(t *testing.T) {
	t.Parallel()
	h := New(Options{}, logx.Nop())

	out := filepath.Join(t.TempDir(), "actor")
	ok := h.Dispatch(context.Background(),
		dispatch.Actor{User: "steve"},
		`printf '%s' "$DAILYRUN_ACTOR" > `+out)
	if !ok {
		t.Fatal("expected dispatch to succeed")
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "steve" {
		t.Fatalf("DAILYRUN_ACTOR = %q, want %q", b, "steve")
	}
}

func TestDispatchCancelledContext(t *testing.T) {
	t.Parallel()
	h := New(Options{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if h.Dispatch(ctx, dispatch.Actor{Console: true}, "true") {
		t.Fatal("cancelled context must report failure")
	}
}

func TestActiveUser(t *testing.T) {
	t.Parallel()
	h := New(Options{}, logx.Nop())
	if user, ok := h.ActiveUser(context.Background()); ok || user != "" {
		t.Fatalf("ActiveUser = (%q, %v), want none", user, ok)
	}
}
