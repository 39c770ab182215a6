package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// mockProcessTable implements domain.ProcessTable for testing
type mockProcessTable struct {
	procs []domain.ProcessInfo
	err   error
	calls int
}

func (m *mockProcessTable) EnumerateProcesses(ctx context.Context) ([]domain.ProcessInfo, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.procs, nil
}

// mockUsageStats implements domain.UsageStatsProvider for testing
type mockUsageStats struct {
	stats      []domain.UsageStat
	err        error
	calls      int
	start, end time.Time
}

func (m *mockUsageStats) QueryUsageStats(ctx context.Context, start, end time.Time) ([]domain.UsageStat, error) {
	m.calls++
	m.start, m.end = start, end
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

// mockCapabilities implements domain.Capabilities for testing
type mockCapabilities struct {
	usageAccess bool
	admin       bool
}

func (m *mockCapabilities) HasUsageAccess() bool   { return m.usageAccess }
func (m *mockCapabilities) HasElevatedAdmin() bool { return m.admin }
func (m *mockCapabilities) Remediation(c domain.Capability) domain.Remediation {
	return domain.Remediation{Capability: c}
}

// mockStrategy implements domain.TerminationStrategy for testing
type mockStrategy struct {
	name        string
	unavailable bool
	err         error
	panics      bool
	stopped     []string
}

func (m *mockStrategy) Name() string      { return m.name }
func (m *mockStrategy) IsAvailable() bool { return !m.unavailable }
func (m *mockStrategy) Stop(ctx context.Context, packageID string) error {
	m.stopped = append(m.stopped, packageID)
	if m.panics {
		panic("strategy exploded")
	}
	return m.err
}

// mockCatalog implements domain.AppCatalog for testing
type mockCatalog struct {
	apps []domain.InstalledApp
	err  error
}

func (m *mockCatalog) InstalledApps(ctx context.Context) ([]domain.InstalledApp, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.apps, nil
}

// mockDetector implements domain.LivenessDetector for testing
type mockDetector struct {
	live []string
}

func (m *mockDetector) Detect(ctx context.Context) map[string]struct{} {
	set := make(map[string]struct{}, len(m.live))
	for _, pkg := range m.live {
		set[pkg] = struct{}{}
	}
	return set
}

// mockTerminator implements domain.Terminator for testing
type mockTerminator struct {
	result    bool
	requested []string
}

func (m *mockTerminator) Terminate(ctx context.Context, packageID string) bool {
	m.requested = append(m.requested, packageID)
	return m.result
}

// mockSettings implements domain.SettingsOpener for testing
type mockSettings struct {
	err    error
	opened []string
}

func (m *mockSettings) OpenAppSettings(ctx context.Context, packageID string) error {
	m.opened = append(m.opened, packageID)
	return m.err
}

// mockModeStore implements domain.ModeStore for testing
type mockModeStore struct {
	mode domain.KillMode
}

func (m *mockModeStore) KillMode() domain.KillMode {
	if m.mode == "" {
		return domain.KillModeManual
	}
	return m.mode
}

func (m *mockModeStore) SetKillMode(mode domain.KillMode) error {
	m.mode = mode
	return nil
}

// mockKillLog implements domain.KillLog for testing
type mockKillLog struct {
	mu      sync.Mutex
	entries []domain.KillLogEntry
}

func (m *mockKillLog) Record(appName string, mode domain.KillMode) domain.KillLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := domain.KillLogEntry{ID: int64(len(m.entries) + 1), AppName: appName, Mode: mode}
	m.entries = append([]domain.KillLogEntry{e}, m.entries...)
	return e
}

func (m *mockKillLog) List() []domain.KillLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.KillLogEntry(nil), m.entries...)
}

func (m *mockKillLog) Compact() {}

var errBoom = errors.New("boom")
