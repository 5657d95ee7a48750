package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreTheme(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	theme, err := store.Theme(ctx, "s1")
	if err != nil || theme != "" {
		t.Fatalf("expected empty theme, got %q err=%v", theme, err)
	}
	if err := store.SetTheme(ctx, "s1", "dark"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if theme, _ := store.Theme(ctx, "s1"); theme != "dark" {
		t.Fatalf("expected dark, got %q", theme)
	}
	if theme, _ := store.Theme(ctx, "s2"); theme != "" {
		t.Fatalf("sessions must not share themes, got %q", theme)
	}
}

func TestMemoryStoreThemeExpires(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.SetTheme(ctx, "s1", "dark")
	now = now.Add(2 * time.Minute)
	if theme, _ := store.Theme(ctx, "s1"); theme != "" {
		t.Fatalf("expected expired theme, got %q", theme)
	}
}

func TestMemoryStorePipelineGuard(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	ok, err := store.AcquirePipeline(ctx, "s1", "req-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	if ok, _ := store.AcquirePipeline(ctx, "s1", "req-2", time.Minute); ok {
		t.Fatal("expected second acquire on same session to fail")
	}
	if ok, _ := store.AcquirePipeline(ctx, "s2", "req-3", time.Minute); !ok {
		t.Fatal("other sessions must not be blocked")
	}

	// A stale token does not release the current holder.
	_ = store.ReleasePipeline(ctx, "s1", "req-2")
	if ok, _ := store.AcquirePipeline(ctx, "s1", "req-4", time.Minute); ok {
		t.Fatal("release with wrong token must not clear the guard")
	}

	_ = store.ReleasePipeline(ctx, "s1", "req-1")
	if ok, _ := store.AcquirePipeline(ctx, "s1", "req-5", time.Minute); !ok {
		t.Fatal("expected acquire after release to succeed")
	}
}

func TestMemoryStorePipelineGuardExpires(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = store.AcquirePipeline(ctx, "s1", "req-1", 30*time.Second)
	now = now.Add(31 * time.Second)
	if ok, _ := store.AcquirePipeline(ctx, "s1", "req-2", 30*time.Second); !ok {
		t.Fatal("expected expired guard to be replaced")
	}
}

func TestKeys(t *testing.T) {
	if got := themeKey("abc"); got != "session:abc:theme" {
		t.Fatalf("unexpected theme key %s", got)
	}
	if got := pipelineKey("abc"); got != "session:abc:pipeline" {
		t.Fatalf("unexpected pipeline key %s", got)
	}
}
