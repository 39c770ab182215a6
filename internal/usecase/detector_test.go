package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

func newTestDetector(pt *mockProcessTable, us *mockUsageStats, caps *mockCapabilities, now time.Time) *Detector {
	d := NewDetector(DefaultDetectorConfig(), pt, us, caps, nil, zap.NewNop())
	d.now = func() time.Time { return now }
	return d
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// TestDetect_ProcessTableSufficient verifies the first tier short-circuits
func TestDetect_ProcessTableSufficient(t *testing.T) {
	pt := &mockProcessTable{procs: []domain.ProcessInfo{
		{PID: 1, Name: "com.a", Importance: domain.ImportanceForeground},
		{PID: 2, Name: "com.b:remote", Importance: domain.ImportanceVisible},
		{PID: 3, Name: "com.c", Importance: domain.ImportanceVisible},
		{PID: 4, Name: "com.d", Importance: domain.ImportanceCached},
	}}
	us := &mockUsageStats{stats: []domain.UsageStat{{PackageID: "com.z", LastUsed: time.Now()}}}
	caps := &mockCapabilities{usageAccess: true}

	live := newTestDetector(pt, us, caps, time.Now()).Detect(context.Background())

	assert.ElementsMatch(t, []string{"com.a", "com.b", "com.c"}, keys(live))
	assert.Equal(t, 0, us.calls, "usage stats must not be consulted")
}

// TestDetect_QualifierCollapses verifies ":qualifier" processes count once
func TestDetect_QualifierCollapses(t *testing.T) {
	pt := &mockProcessTable{procs: []domain.ProcessInfo{
		{Name: "com.a", Importance: domain.ImportanceForeground},
		{Name: "com.a:push", Importance: domain.ImportanceVisible},
		{Name: "com.a:sync", Importance: domain.ImportanceVisible},
	}}
	caps := &mockCapabilities{}

	live := newTestDetector(pt, &mockUsageStats{}, caps, time.Now()).Detect(context.Background())

	// Only one distinct package, below threshold, and no usage access.
	assert.Empty(t, live)
}

// TestDetect_FallsBackToUsageStats verifies the second tier when the first is sparse
func TestDetect_FallsBackToUsageStats(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	pt := &mockProcessTable{procs: []domain.ProcessInfo{
		{Name: "com.a", Importance: domain.ImportanceForeground},
		{Name: "com.b", Importance: domain.ImportanceVisible},
	}}
	us := &mockUsageStats{stats: []domain.UsageStat{
		{PackageID: "com.recent", LastUsed: now.Add(-10 * time.Second)},
		{PackageID: "com.visible", LastVisible: now.Add(-5 * time.Second)},
		{PackageID: "com.stale", LastUsed: now.Add(-2 * time.Minute)},
		{PackageID: "com.never"},
	}}
	caps := &mockCapabilities{usageAccess: true}

	live := newTestDetector(pt, us, caps, now).Detect(context.Background())

	assert.ElementsMatch(t, []string{"com.recent", "com.visible"}, keys(live))
	assert.Equal(t, 1, us.calls)
	assert.Equal(t, now, us.end)
	assert.Equal(t, now.Add(-30*time.Second), us.start)
}

// TestDetect_SparseWithoutUsageAccess verifies an empty answer
func TestDetect_SparseWithoutUsageAccess(t *testing.T) {
	pt := &mockProcessTable{procs: []domain.ProcessInfo{
		{Name: "com.a", Importance: domain.ImportanceForeground},
		{Name: "com.b", Importance: domain.ImportanceVisible},
	}}
	us := &mockUsageStats{stats: []domain.UsageStat{{PackageID: "com.x", LastUsed: time.Now()}}}
	caps := &mockCapabilities{usageAccess: false}

	live := newTestDetector(pt, us, caps, time.Now()).Detect(context.Background())

	assert.Empty(t, live, "two packages is not enough to trust the process table")
	assert.Equal(t, 0, us.calls)
}

// TestDetect_EnumerationErrorFallsThrough verifies an error counts as insufficient
func TestDetect_EnumerationErrorFallsThrough(t *testing.T) {
	now := time.Now()
	pt := &mockProcessTable{err: errBoom}
	us := &mockUsageStats{stats: []domain.UsageStat{{PackageID: "com.x", LastUsed: now.Add(-time.Second)}}}
	caps := &mockCapabilities{usageAccess: true}

	live := newTestDetector(pt, us, caps, now).Detect(context.Background())

	assert.ElementsMatch(t, []string{"com.x"}, keys(live))
}

// TestDetect_UsageErrorIsEmpty verifies usage query failures give an empty set
func TestDetect_UsageErrorIsEmpty(t *testing.T) {
	pt := &mockProcessTable{}
	us := &mockUsageStats{err: errBoom}
	caps := &mockCapabilities{usageAccess: true}

	live := newTestDetector(pt, us, caps, time.Now()).Detect(context.Background())

	assert.NotNil(t, live)
	assert.Empty(t, live)
}

// TestDetect_ConfigurableThreshold verifies a lower threshold trusts the process table
func TestDetect_ConfigurableThreshold(t *testing.T) {
	pt := &mockProcessTable{procs: []domain.ProcessInfo{
		{Name: "com.a", Importance: domain.ImportanceForeground},
	}}
	d := NewDetector(DetectorConfig{Window: time.Minute, MinProcessPackages: 1},
		pt, nil, nil, nil, zap.NewNop())

	live := d.Detect(context.Background())

	assert.ElementsMatch(t, []string{"com.a"}, keys(live))
}

// TestNewDetector_Defaults verifies zero config values fall back to defaults
func TestNewDetector_Defaults(t *testing.T) {
	d := NewDetector(DetectorConfig{}, nil, nil, nil, nil, zap.NewNop())

	assert.Equal(t, DefaultDetectorConfig(), d.config)
	assert.Empty(t, d.Detect(context.Background()))
}

func TestPackageFromProcessName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"com.example", "com.example"},
		{"com.example:remote", "com.example"},
		{"com.example:a:b", "com.example"},
		{":orphan", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PackageFromProcessName(tt.name))
		})
	}
}
