package domain

import (
	"context"
	"time"
)

// ProcessTable enumerates running processes.
// Implementation: uses gopsutil for cross-platform support.
type ProcessTable interface {
	// EnumerateProcesses returns the current process table with importance levels.
	EnumerateProcesses(ctx context.Context) ([]ProcessInfo, error)
}

// UsageStatsProvider answers "what was used recently".
type UsageStatsProvider interface {
	// QueryUsageStats returns usage records for the [start, end] window.
	QueryUsageStats(ctx context.Context, start, end time.Time) ([]UsageStat, error)
}

// Capabilities reports which platform permissions are granted.
// Missing capabilities are flags, never errors.
type Capabilities interface {
	HasUsageAccess() bool
	HasElevatedAdmin() bool

	// Remediation describes how to grant a capability.
	Remediation(c Capability) Remediation
}

// TerminationStrategy is one independent way of stopping a package.
// Implementations: SIGTERM, shell force-stop, name-prefix kill, recent-task eviction.
type TerminationStrategy interface {
	// Name returns the strategy name (e.g., "background", "force-stop")
	Name() string

	// IsAvailable returns true if this strategy can be used on this system
	IsAvailable() bool

	// Stop asks the platform to stop the package. A nil error is a reported success.
	Stop(ctx context.Context, packageID string) error
}

// AppCatalog lists launchable applications.
type AppCatalog interface {
	InstalledApps(ctx context.Context) ([]InstalledApp, error)
}

// SettingsOpener hands the user over to the platform's per-app settings
// so the app can be stopped by hand (manual kill mode).
type SettingsOpener interface {
	OpenAppSettings(ctx context.Context, packageID string) error
}

// ResourceSampler reads current system resource usage.
type ResourceSampler interface {
	// Sample returns a reading with both percentages clamped to [0, 100].
	Sample(ctx context.Context) (MetricSample, error)
}

// Preferences is a small persistent key/value store.
// Implementations: JSON file, SQLCipher database.
type Preferences interface {
	// Get returns the stored value and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores a value, replacing any previous one.
	Set(key, value string) error

	// Update replaces key with fn's result while holding exclusive access, so
	// concurrent writers (including other processes) cannot interleave. fn gets
	// the current value and whether it was present; an error from fn aborts
	// the write.
	Update(key string, fn func(current string, ok bool) (string, error)) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// LivenessDetector estimates which packages are currently active.
type LivenessDetector interface {
	Detect(ctx context.Context) map[string]struct{}
}

// Terminator makes a best-effort attempt at stopping a package.
type Terminator interface {
	Terminate(ctx context.Context, packageID string) bool
}

// KillLog is the bounded, newest-first history of kill actions.
type KillLog interface {
	Record(appName string, mode KillMode) KillLogEntry
	List() []KillLogEntry
	Compact()
}

// MetricsTrace is the bounded on-disk trace of resource samples.
type MetricsTrace interface {
	Append(sample MetricSample)
	ReadAll() []MetricSample
	ReadSince(window time.Duration) []MetricSample
}

// ModeStore persists the user's kill mode. An unset or unreadable mode is Manual.
type ModeStore interface {
	KillMode() KillMode
	SetKillMode(mode KillMode) error
}
