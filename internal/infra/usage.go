package infra

import (
	"context"
	"time"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// HostUsageStats implements domain.UsageStatsProvider from the process table.
// A runnable process counts as used at the end of the query; its start time
// counts as last visible.
type HostUsageStats struct {
	source ProcessSource
	now    func() time.Time
}

// NewHostUsageStats creates a usage stats adapter.
func NewHostUsageStats(source ProcessSource) *HostUsageStats {
	return &HostUsageStats{source: source, now: time.Now}
}

// QueryUsageStats returns one record per package seen in the process table.
// Records whose timestamps fall outside [start, end] are still returned;
// window filtering is the caller's job.
func (u *HostUsageStats) QueryUsageStats(ctx context.Context, start, end time.Time) ([]domain.UsageStat, error) {
	snaps, err := u.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	// A runnable process was in use at the end of the queried range. Reading the
	// clock here would land after end and fall outside the window.
	usedAt := u.now()
	if usedAt.After(end) {
		usedAt = end
	}
	byPackage := make(map[string]*domain.UsageStat)
	order := make([]string, 0)
	for _, s := range snaps {
		pkg := ProcessName(s)
		if pkg == "" {
			continue
		}
		stat, ok := byPackage[pkg]
		if !ok {
			stat = &domain.UsageStat{PackageID: pkg}
			byPackage[pkg] = stat
			order = append(order, pkg)
		}
		if s.Running {
			stat.LastUsed = usedAt
		}
		if s.CreateTime.After(stat.LastVisible) {
			stat.LastVisible = s.CreateTime
		}
	}

	stats := make([]domain.UsageStat, 0, len(order))
	for _, pkg := range order {
		stats = append(stats, *byPackage[pkg])
	}
	return stats, nil
}

// Ensure HostUsageStats implements domain.UsageStatsProvider.
var _ domain.UsageStatsProvider = (*HostUsageStats)(nil)
