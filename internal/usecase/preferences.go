package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/traffic-sign/internal/session"
	"github.com/example/traffic-sign/internal/ui"
)

// PreferencesUseCase reads and updates the per-session page state.
type PreferencesUseCase struct {
	retrier
	store session.Store
}

// NewPreferencesUseCase constructs a preferences use case.
func NewPreferencesUseCase(store session.Store, logger *zap.Logger) *PreferencesUseCase {
	return &PreferencesUseCase{retrier: newRetrier(logger.Named("preferences_usecase")), store: store}
}

// State returns the session's page state. Sessions without a stored
// preference get the light theme.
func (uc *PreferencesUseCase) State(ctx context.Context, sessionID string) (ui.AppState, error) {
	var theme string
	err := uc.withRetry(ctx, uuid.NewString(), "session.theme", func() error {
		var err error
		theme, err = uc.store.Theme(ctx, sessionID)
		return err
	})
	if err != nil {
		return ui.AppState{}, err
	}
	return ui.AppState{Theme: ui.ParseTheme(theme)}, nil
}

// ToggleTheme flips the session between light and dark and returns the new state.
func (uc *PreferencesUseCase) ToggleTheme(ctx context.Context, sessionID string) (ui.AppState, error) {
	state, err := uc.State(ctx, sessionID)
	if err != nil {
		return ui.AppState{}, err
	}
	state.Theme = state.Theme.Toggle()
	if err := uc.withRetry(ctx, uuid.NewString(), "session.set_theme", func() error {
		return uc.store.SetTheme(ctx, sessionID, string(state.Theme))
	}); err != nil {
		return ui.AppState{}, err
	}
	return state, nil
}
