package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// Strategy names, in the order they are attempted.
const (
	StrategyBackground    = "background"
	StrategyForceStop     = "force-stop"
	StrategyNameMatch     = "name-match"
	StrategyRecentTask    = "recent-task"
	StrategySignalCmdline = "signal-cmdline"
)

// BackgroundStrategy asks processes named exactly like the package to exit (SIGTERM).
type BackgroundStrategy struct {
	source  ProcessSource
	geteuid func() int
}

// NewBackgroundStrategy creates the polite termination strategy.
func NewBackgroundStrategy(source ProcessSource) *BackgroundStrategy {
	return &BackgroundStrategy{source: source, geteuid: unix.Geteuid}
}

func (b *BackgroundStrategy) Name() string      { return StrategyBackground }
func (b *BackgroundStrategy) IsAvailable() bool { return true }

func (b *BackgroundStrategy) Stop(ctx context.Context, packageID string) error {
	return signalMatching(ctx, b.source, b.geteuid(), unix.SIGTERM, func(s ProcessSnapshot) bool {
		return ProcessName(s) == packageID || s.Name == packageID
	})
}

// ForceStopStrategy kills by exact process name via pkill.
type ForceStopStrategy struct {
	runner CommandRunner
}

// NewForceStopStrategy creates the shell force-stop strategy.
func NewForceStopStrategy(runner CommandRunner) *ForceStopStrategy {
	return &ForceStopStrategy{runner: runner}
}

func (f *ForceStopStrategy) Name() string { return StrategyForceStop }

func (f *ForceStopStrategy) IsAvailable() bool {
	_, err := f.runner.LookPath("pkill")
	return err == nil
}

func (f *ForceStopStrategy) Stop(ctx context.Context, packageID string) error {
	err := f.runner.Run(ctx, "pkill", "-KILL", "-x", packageID)
	if err == nil {
		return nil
	}
	// pkill exits 1 when nothing matched.
	if exitCode(err) == 1 {
		return domain.ErrNoMatch
	}
	return fmt.Errorf("pkill failed: %w", err)
}

// NameMatchStrategy kills every process whose name or command line starts
// with the package id, covering ":qualifier" helper processes.
type NameMatchStrategy struct {
	source  ProcessSource
	geteuid func() int
}

// NewNameMatchStrategy creates the prefix-kill strategy.
func NewNameMatchStrategy(source ProcessSource) *NameMatchStrategy {
	return &NameMatchStrategy{source: source, geteuid: unix.Geteuid}
}

func (n *NameMatchStrategy) Name() string      { return StrategyNameMatch }
func (n *NameMatchStrategy) IsAvailable() bool { return true }

func (n *NameMatchStrategy) Stop(ctx context.Context, packageID string) error {
	return signalMatching(ctx, n.source, n.geteuid(), unix.SIGKILL, func(s ProcessSnapshot) bool {
		return strings.HasPrefix(ProcessName(s), packageID) ||
			strings.HasPrefix(s.Name, packageID) ||
			strings.HasPrefix(s.Cmdline, packageID)
	})
}

// RecentTaskStrategy closes the package's windows, the desktop counterpart of
// evicting it from the recent-tasks list. Needs wmctrl and a display.
type RecentTaskStrategy struct {
	runner CommandRunner
	getenv func(string) string
}

// NewRecentTaskStrategy creates the window-close strategy.
func NewRecentTaskStrategy(runner CommandRunner) *RecentTaskStrategy {
	return &RecentTaskStrategy{runner: runner, getenv: os.Getenv}
}

func (r *RecentTaskStrategy) Name() string { return StrategyRecentTask }

func (r *RecentTaskStrategy) IsAvailable() bool {
	if r.getenv("DISPLAY") == "" && r.getenv("WAYLAND_DISPLAY") == "" {
		return false
	}
	_, err := r.runner.LookPath("wmctrl")
	return err == nil
}

func (r *RecentTaskStrategy) Stop(ctx context.Context, packageID string) error {
	// -x matches WM_CLASS, which desktop apps usually set to their binary name.
	if err := r.runner.Run(ctx, "wmctrl", "-x", "-c", packageID); err != nil {
		if exitCode(err) == 1 {
			return domain.ErrNoMatch
		}
		return fmt.Errorf("wmctrl failed: %w", err)
	}
	return nil
}

// SignalCmdlineStrategy kills every process whose command line mentions the
// package id. Our own process and its parent are never signalled.
type SignalCmdlineStrategy struct {
	source  ProcessSource
	geteuid func() int
}

// NewSignalCmdlineStrategy creates the command-line match strategy.
func NewSignalCmdlineStrategy(source ProcessSource) *SignalCmdlineStrategy {
	return &SignalCmdlineStrategy{source: source, geteuid: unix.Geteuid}
}

func (c *SignalCmdlineStrategy) Name() string      { return StrategySignalCmdline }
func (c *SignalCmdlineStrategy) IsAvailable() bool { return true }

func (c *SignalCmdlineStrategy) Stop(ctx context.Context, packageID string) error {
	return signalMatching(ctx, c.source, c.geteuid(), unix.SIGKILL, func(s ProcessSnapshot) bool {
		return strings.Contains(s.Cmdline, packageID)
	})
}

// signalMatching sends sig to every matching process except ourselves and our
// parent. Unless euid is root, only processes owned by euid are considered.
// It returns nil if at least one signal was delivered.
func signalMatching(ctx context.Context, source ProcessSource, euid int, sig syscall.Signal, match func(ProcessSnapshot) bool) error {
	snaps, err := source.Snapshot(ctx)
	if err != nil {
		return err
	}

	self, parent := int32(os.Getpid()), int32(os.Getppid())
	var errs []error
	delivered := 0
	for _, s := range snaps {
		if s.PID == self || s.PID == parent || !ownedBy(s, euid) || !match(s) {
			continue
		}
		if err := source.Signal(ctx, s.PID, sig); err != nil {
			errs = append(errs, fmt.Errorf("pid %d: %w", s.PID, err))
			continue
		}
		delivered++
	}

	if delivered > 0 {
		return nil
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return domain.ErrNoMatch
}

func ownedBy(s ProcessSnapshot, euid int) bool {
	return euid == 0 || (s.UID >= 0 && int(s.UID) == euid)
}

// DefaultStrategies returns the host strategies in attempt order.
func DefaultStrategies(source ProcessSource, runner CommandRunner, logger *zap.Logger) []domain.TerminationStrategy {
	strategies := []domain.TerminationStrategy{
		NewBackgroundStrategy(source),
		NewForceStopStrategy(runner),
		NewNameMatchStrategy(source),
		NewRecentTaskStrategy(runner),
		NewSignalCmdlineStrategy(source),
	}
	for _, s := range strategies {
		logger.Debug("termination strategy registered",
			zap.String("strategy", s.Name()),
			zap.Bool("available", s.IsAvailable()))
	}
	return strategies
}

// Ensure implementations satisfy domain.TerminationStrategy
var (
	_ domain.TerminationStrategy = (*BackgroundStrategy)(nil)
	_ domain.TerminationStrategy = (*ForceStopStrategy)(nil)
	_ domain.TerminationStrategy = (*NameMatchStrategy)(nil)
	_ domain.TerminationStrategy = (*RecentTaskStrategy)(nil)
	_ domain.TerminationStrategy = (*SignalCmdlineStrategy)(nil)
)
