package infra

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

const killModeKey = "kill_mode"

// PrefsModeStore implements domain.ModeStore on top of domain.Preferences.
type PrefsModeStore struct {
	prefs  domain.Preferences
	logger *zap.Logger
}

// NewPrefsModeStore creates a mode store backed by prefs.
func NewPrefsModeStore(prefs domain.Preferences, logger *zap.Logger) *PrefsModeStore {
	return &PrefsModeStore{prefs: prefs, logger: logger}
}

// KillMode returns the stored mode, or Manual when unset or unreadable.
func (s *PrefsModeStore) KillMode() domain.KillMode {
	raw, ok, err := s.prefs.Get(killModeKey)
	if err != nil {
		s.logger.Warn("failed to read kill mode, using manual", zap.Error(err))
		return domain.KillModeManual
	}
	if !ok {
		return domain.KillModeManual
	}
	mode, valid := domain.ParseKillMode(raw)
	if !valid {
		s.logger.Warn("unknown kill mode, using manual", zap.String("value", raw))
		return domain.KillModeManual
	}
	return mode
}

// SetKillMode persists mode.
func (s *PrefsModeStore) SetKillMode(mode domain.KillMode) error {
	return s.prefs.Set(killModeKey, string(mode))
}

// Ensure PrefsModeStore implements domain.ModeStore.
var _ domain.ModeStore = (*PrefsModeStore)(nil)
