package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

const (
	killLogKey = "kill_logs"

	killLogDateLayout = "Jan 02, 2006"
	killLogTimeLayout = "03:04 PM"
)

// KillLogConfig bounds the kill log.
type KillLogConfig struct {
	// WriteCap is the most entries kept after a Record.
	WriteCap int

	// CompactCap is the most entries kept after a Compact.
	CompactCap int
}

// DefaultKillLogConfig returns the stock caps.
func DefaultKillLogConfig() KillLogConfig {
	return KillLogConfig{
		WriteCap:   100,
		CompactCap: 128,
	}
}

// PrefsKillLog implements domain.KillLog as a newest-first JSON array stored
// under a single preferences key. Every mutation rewrites the whole array.
type PrefsKillLog struct {
	mu     sync.Mutex
	config KillLogConfig
	prefs  domain.Preferences
	logger *zap.Logger
	now    func() time.Time
}

// NewPrefsKillLog creates a kill log backed by prefs.
func NewPrefsKillLog(config KillLogConfig, prefs domain.Preferences, logger *zap.Logger) *PrefsKillLog {
	defaults := DefaultKillLogConfig()
	if config.WriteCap < 1 {
		config.WriteCap = defaults.WriteCap
	}
	if config.CompactCap < 1 {
		config.CompactCap = defaults.CompactCap
	}
	return &PrefsKillLog{
		config: config,
		prefs:  prefs,
		logger: logger,
		now:    time.Now,
	}
}

// Record prepends a new entry stamped with the current local time and trims
// the log to WriteCap. A persistence failure is logged; the entry is still returned.
func (l *PrefsKillLog) Record(appName string, mode domain.KillMode) domain.KillLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry := domain.KillLogEntry{
		ID:      now.UnixMilli(),
		Date:    now.Format(killLogDateLayout),
		Time:    now.Format(killLogTimeLayout),
		AppName: appName,
		Mode:    mode,
	}

	err := l.prefs.Update(killLogKey, func(raw string, ok bool) (string, error) {
		entries := append([]domain.KillLogEntry{entry}, l.decode(raw, ok)...)
		if len(entries) > l.config.WriteCap {
			entries = entries[:l.config.WriteCap]
		}
		return encodeKillLog(entries)
	})
	if err != nil {
		l.logger.Warn("failed to write kill log", zap.Error(err))
	}
	return entry
}

// List returns entries newest first. Unreadable data reads as empty.
func (l *PrefsKillLog) List() []domain.KillLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, ok, err := l.prefs.Get(killLogKey)
	if err != nil {
		l.logger.Warn("failed to read kill log", zap.Error(err))
		return []domain.KillLogEntry{}
	}
	return l.decode(raw, ok)
}

// Compact trims the log to CompactCap, dropping the oldest entries.
func (l *PrefsKillLog) Compact() {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.prefs.Update(killLogKey, func(raw string, ok bool) (string, error) {
		entries := l.decode(raw, ok)
		if len(entries) <= l.config.CompactCap {
			return "", errKillLogUnchanged
		}
		l.logger.Info("compacting kill log",
			zap.Int("entries", len(entries)),
			zap.Int("cap", l.config.CompactCap))
		return encodeKillLog(entries[:l.config.CompactCap])
	})
	if err != nil && !errors.Is(err, errKillLogUnchanged) {
		l.logger.Warn("failed to compact kill log", zap.Error(err))
	}
}

// errKillLogUnchanged aborts an update that has nothing to write.
var errKillLogUnchanged = errors.New("kill log unchanged")

// decode parses a stored kill log; anything unreadable is an empty log.
func (l *PrefsKillLog) decode(raw string, ok bool) []domain.KillLogEntry {
	if !ok || raw == "" {
		return []domain.KillLogEntry{}
	}

	var entries []domain.KillLogEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		l.logger.Warn("failed to decode kill log, treating as empty", zap.Error(err))
		return []domain.KillLogEntry{}
	}
	if entries == nil {
		entries = []domain.KillLogEntry{}
	}
	return entries
}

func encodeKillLog(entries []domain.KillLogEntry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode kill log: %w", err)
	}
	return string(data), nil
}

// Ensure PrefsKillLog implements domain.KillLog.
var _ domain.KillLog = (*PrefsKillLog)(nil)
