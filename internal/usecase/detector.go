// Package usecase contains application business logic.
package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/monitoring"
)

// Detection tiers, in evaluation order.
const (
	TierProcessTable = "process-table"
	TierUsageStats   = "usage-stats"
	TierNone         = "none"
)

// DetectorConfig holds liveness detection tuning.
type DetectorConfig struct {
	// Window is the trailing usage-stats window.
	Window time.Duration

	// MinProcessPackages is how many distinct packages the process table must
	// yield before it is trusted. The platform commonly under-reports.
	MinProcessPackages int
}

// DefaultDetectorConfig returns default detection configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Window:             30 * time.Second,
		MinProcessPackages: 3,
	}
}

// Detector implements domain.LivenessDetector with a tiered, short-circuit
// policy: process table, then usage stats, then nothing.
type Detector struct {
	config       DetectorConfig
	processes    domain.ProcessTable
	usage        domain.UsageStatsProvider
	capabilities domain.Capabilities
	metrics      *monitoring.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewDetector creates a new liveness detector.
func NewDetector(
	config DetectorConfig,
	processes domain.ProcessTable,
	usage domain.UsageStatsProvider,
	capabilities domain.Capabilities,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Detector {
	if config.MinProcessPackages < 1 {
		config.MinProcessPackages = DefaultDetectorConfig().MinProcessPackages
	}
	if config.Window <= 0 {
		config.Window = DefaultDetectorConfig().Window
	}
	return &Detector{
		config:       config,
		processes:    processes,
		usage:        usage,
		capabilities: capabilities,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// Detect returns the set of package ids believed to be active.
// An empty set means "unknown or not running"; callers cannot tell them apart.
func (d *Detector) Detect(ctx context.Context) map[string]struct{} {
	live, tier := d.detect(ctx)
	d.metrics.ObserveDetection(tier, len(live))
	d.logger.Debug("liveness detected",
		zap.String("tier", tier),
		zap.Int("packages", len(live)))
	return live
}

func (d *Detector) detect(ctx context.Context) (map[string]struct{}, string) {
	if live := d.fromProcessTable(ctx); live != nil {
		return live, TierProcessTable
	}

	if d.usage != nil && d.capabilities != nil && d.capabilities.HasUsageAccess() {
		return d.fromUsageStats(ctx), TierUsageStats
	}

	return map[string]struct{}{}, TierNone
}

// fromProcessTable returns nil when the tier is insufficient.
func (d *Detector) fromProcessTable(ctx context.Context) map[string]struct{} {
	if d.processes == nil {
		return nil
	}

	procs, err := d.processes.EnumerateProcesses(ctx)
	if err != nil {
		d.logger.Warn("failed to enumerate processes", zap.Error(err))
		return nil
	}

	live := make(map[string]struct{})
	for _, p := range procs {
		if p.Importance > domain.ImportanceVisible {
			continue
		}
		if pkg := PackageFromProcessName(p.Name); pkg != "" {
			live[pkg] = struct{}{}
		}
	}

	if len(live) < d.config.MinProcessPackages {
		d.logger.Debug("process table too sparse, falling through",
			zap.Int("packages", len(live)),
			zap.Int("threshold", d.config.MinProcessPackages))
		return nil
	}
	return live
}

func (d *Detector) fromUsageStats(ctx context.Context) map[string]struct{} {
	end := d.now()
	start := end.Add(-d.config.Window)

	live := make(map[string]struct{})
	stats, err := d.usage.QueryUsageStats(ctx, start, end)
	if err != nil {
		d.logger.Warn("failed to query usage stats", zap.Error(err))
		return live
	}

	for _, s := range stats {
		if s.PackageID == "" {
			continue
		}
		if inWindow(s.LastUsed, start, end) || inWindow(s.LastVisible, start, end) {
			live[s.PackageID] = struct{}{}
		}
	}
	return live
}

func inWindow(t, start, end time.Time) bool {
	return !t.IsZero() && t.After(start) && !t.After(end)
}

// PackageFromProcessName strips a ":qualifier" process suffix.
func PackageFromProcessName(name string) string {
	pkg, _, _ := strings.Cut(name, ":")
	return strings.TrimSpace(pkg)
}

// Ensure Detector implements domain.LivenessDetector.
var _ domain.LivenessDetector = (*Detector)(nil)
