package usecase

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/traffic-sign/internal/session"
	"github.com/example/traffic-sign/internal/ui"
)

func TestPreferencesDefaultToLight(t *testing.T) {
	uc := NewPreferencesUseCase(session.NewMemoryStore(time.Hour), zap.NewNop())

	state, err := uc.State(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Theme != ui.ThemeLight {
		t.Fatalf("expected light theme, got %s", state.Theme)
	}
}

func TestToggleThemePersistsPerSession(t *testing.T) {
	uc := NewPreferencesUseCase(session.NewMemoryStore(time.Hour), zap.NewNop())
	ctx := context.Background()

	state, err := uc.ToggleTheme(ctx, "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Theme != ui.ThemeDark {
		t.Fatalf("expected dark after first toggle, got %s", state.Theme)
	}

	state, _ = uc.State(ctx, "session-1")
	if state.Theme != ui.ThemeDark {
		t.Fatalf("expected dark to persist, got %s", state.Theme)
	}
	other, _ := uc.State(ctx, "session-2")
	if other.Theme != ui.ThemeLight {
		t.Fatalf("other sessions must keep their own theme, got %s", other.Theme)
	}

	state, _ = uc.ToggleTheme(ctx, "session-1")
	if state.Theme != ui.ThemeLight {
		t.Fatalf("expected light after second toggle, got %s", state.Theme)
	}
}
