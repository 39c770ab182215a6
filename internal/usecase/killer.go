package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/monitoring"
)

// Killer performs the user-facing kill action in the configured mode.
type Killer struct {
	selfPackage string
	lister      *Lister
	modes       domain.ModeStore
	killLog     domain.KillLog
	terminator  domain.Terminator
	settings    domain.SettingsOpener
	metrics     *monitoring.Metrics
	logger      *zap.Logger
}

// NewKiller wires the kill action. settings may be nil when the platform
// cannot open per-app settings.
func NewKiller(
	selfPackage string,
	lister *Lister,
	modes domain.ModeStore,
	killLog domain.KillLog,
	terminator domain.Terminator,
	settings domain.SettingsOpener,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Killer {
	return &Killer{
		selfPackage: selfPackage,
		lister:      lister,
		modes:       modes,
		killLog:     killLog,
		terminator:  terminator,
		settings:    settings,
		metrics:     metrics,
		logger:      logger,
	}
}

// Kill records a kill log entry and then either terminates the package (Auto)
// or opens its settings page (Manual). Self-targets are rejected before
// anything is recorded.
func (k *Killer) Kill(ctx context.Context, packageID string) (domain.KillOutcome, error) {
	return k.KillWithMode(ctx, packageID, k.modes.KillMode())
}

// KillWithMode is Kill with an explicit mode instead of the stored one.
func (k *Killer) KillWithMode(ctx context.Context, packageID string, mode domain.KillMode) (domain.KillOutcome, error) {
	outcome := domain.KillOutcome{
		PackageID:  packageID,
		Mode:       mode,
		ExecutedAt: time.Now(),
	}

	if packageID == "" || packageID == k.selfPackage {
		return outcome, domain.ErrSelfTarget
	}

	outcome.AppName = k.lister.DisplayName(ctx, packageID)

	k.killLog.Record(outcome.AppName, mode)
	outcome.Logged = true
	k.metrics.SetKillLogSize(len(k.killLog.List()))

	switch mode {
	case domain.KillModeAuto:
		outcome.Requested = k.terminator.Terminate(ctx, packageID)
	default:
		outcome.Requested = k.openSettings(ctx, packageID)
	}

	k.logger.Info("kill action",
		zap.String("package", packageID),
		zap.String("app", outcome.AppName),
		zap.String("mode", string(mode)),
		zap.Bool("requested", outcome.Requested))

	return outcome, nil
}

func (k *Killer) openSettings(ctx context.Context, packageID string) bool {
	if k.settings == nil {
		k.logger.Warn("cannot open app settings",
			zap.String("package", packageID),
			zap.Error(domain.ErrUnavailable))
		return false
	}
	if err := k.settings.OpenAppSettings(ctx, packageID); err != nil {
		k.logger.Warn("failed to open app settings",
			zap.String("package", packageID),
			zap.Error(err))
		return false
	}
	return true
}
