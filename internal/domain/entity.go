// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrSelfTarget is returned when a caller asks to stop appkiller itself.
	ErrSelfTarget = errors.New("refusing to target own package")

	// ErrNoMatch means a strategy found nothing to act on.
	ErrNoMatch = errors.New("no matching process")

	// ErrUnavailable means the platform does not offer the capability.
	ErrUnavailable = errors.New("capability unavailable")
)

// KillMode is the user's kill behavior setting.
type KillMode string

const (
	KillModeAuto   KillMode = "Auto"
	KillModeManual KillMode = "Manual"
)

// ParseKillMode accepts "auto"/"manual" in any case.
func ParseKillMode(s string) (KillMode, bool) {
	switch {
	case strings.EqualFold(s, string(KillModeAuto)):
		return KillModeAuto, true
	case strings.EqualFold(s, string(KillModeManual)):
		return KillModeManual, true
	}
	return "", false
}

// Importance mirrors the platform's process importance ladder.
// Lower values are closer to the user.
type Importance int

const (
	ImportanceForeground Importance = 100
	ImportanceVisible    Importance = 200
	ImportanceService    Importance = 300
	ImportanceCached     Importance = 400
	ImportanceGone       Importance = 1000
)

// String returns a short label for logs and CLI output.
func (i Importance) String() string {
	switch {
	case i <= ImportanceForeground:
		return "foreground"
	case i <= ImportanceVisible:
		return "visible"
	case i <= ImportanceService:
		return "service"
	case i <= ImportanceCached:
		return "cached"
	default:
		return "gone"
	}
}

// ProcessInfo is one row of the running process table.
type ProcessInfo struct {
	PID        int
	Name       string // may carry a ":qualifier" suffix
	Importance Importance
}

// UsageStat is a per-package usage record over a query window.
type UsageStat struct {
	PackageID   string
	LastUsed    time.Time
	LastVisible time.Time
}

// InstalledApp is a launchable application known to the platform.
type InstalledApp struct {
	PackageID   string
	DisplayName string
	IconRef     string
}

// ApplicationRecord is one row of the roster shown to the user.
// Built per listing request and never persisted.
type ApplicationRecord struct {
	PackageID   string
	DisplayName string
	IconRef     string
	IsLive      bool
}

// KillLogEntry records a single kill action. Immutable once created.
type KillLogEntry struct {
	ID      int64    `json:"id"` // creation time, epoch ms
	Date    string   `json:"date"`
	Time    string   `json:"time"`
	AppName string   `json:"appName"`
	Mode    KillMode `json:"killMode"`
}

// MetricSample is one periodic resource reading.
type MetricSample struct {
	Timestamp         int64   `json:"timestamp"` // epoch ms
	MemoryUsedPercent float64 `json:"memoryUsagePercent"`
	CPUUsedPercent    float64 `json:"cpuUsagePercent"`
}

// SeriesPoint is a (timestamp, value) pair of a time series.
type SeriesPoint struct {
	Timestamp int64
	Value     float64
}

// MetricsHistoryView is a read-only pair of series derived from stored samples.
type MetricsHistoryView struct {
	Memory []SeriesPoint
	CPU    []SeriesPoint
}

// NewMetricsHistoryView splits samples into memory and CPU series.
func NewMetricsHistoryView(samples []MetricSample) MetricsHistoryView {
	view := MetricsHistoryView{
		Memory: make([]SeriesPoint, 0, len(samples)),
		CPU:    make([]SeriesPoint, 0, len(samples)),
	}
	for _, s := range samples {
		view.Memory = append(view.Memory, SeriesPoint{Timestamp: s.Timestamp, Value: s.MemoryUsedPercent})
		view.CPU = append(view.CPU, SeriesPoint{Timestamp: s.Timestamp, Value: s.CPUUsedPercent})
	}
	return view
}

// ClampPercent pins v into [0, 100].
func ClampPercent(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Capability names a platform permission the core may ask about.
type Capability string

const (
	CapabilityUsageAccess   Capability = "usage-access"
	CapabilityElevatedAdmin Capability = "elevated-admin"
)

// Remediation describes how a user could grant a missing capability.
// Opaque to the core; the CLI only prints it.
type Remediation struct {
	Capability Capability
	Summary    string
	Action     string
}

// KillOutcome captures what happened during one kill action.
type KillOutcome struct {
	PackageID  string
	AppName    string
	Mode       KillMode
	Requested  bool // termination or settings request reported success
	Logged     bool
	ExecutedAt time.Time
}
