package infra

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

const (
	statsFileName = "system_stats.json"

	// DefaultMaxTraceBytes is the trace file ceiling.
	DefaultMaxTraceBytes int64 = 1024 * 1024
)

// FileMetricsStore implements domain.MetricsTrace as a JSON-lines file.
// Whenever the file exceeds its ceiling the oldest half of the samples is dropped.
type FileMetricsStore struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	logger   *zap.Logger
	now      func() time.Time
}

// NewFileMetricsStore creates a metrics trace under dataDir.
func NewFileMetricsStore(dataDir string, maxBytes int64, logger *zap.Logger) (*FileMetricsStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return NewFileMetricsStoreWithPath(filepath.Join(dataDir, statsFileName), maxBytes, logger), nil
}

// NewFileMetricsStoreWithPath creates a metrics trace at a specific path (for testing).
func NewFileMetricsStoreWithPath(path string, maxBytes int64, logger *zap.Logger) *FileMetricsStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxTraceBytes
	}
	return &FileMetricsStore{
		path:     path,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
	}
}

// Path returns the trace file path.
func (s *FileMetricsStore) Path() string {
	return s.path
}

// Append writes one sample. The size ceiling is checked both before and after
// the write. The whole cycle holds an flock on a sidecar file so a CLI append
// cannot land on an inode the monitor is about to replace. Failures are
// logged and swallowed.
func (s *FileMetricsStore) Append(sample domain.MetricSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockPath(s.path + ".lock")
	if err != nil {
		s.logger.Warn("failed to lock metrics trace", zap.String("path", s.path), zap.Error(err))
		return
	}
	defer unlock()

	if s.oversized() {
		s.compact()
	}

	line, err := json.Marshal(sample)
	if err != nil {
		s.logger.Warn("failed to encode sample", zap.Error(err))
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		s.logger.Warn("failed to open metrics trace", zap.String("path", s.path), zap.Error(err))
		return
	}
	_, err = f.Write(line)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.logger.Warn("failed to append sample", zap.String("path", s.path), zap.Error(err))
		return
	}

	if s.oversized() {
		s.compact()
	}
}

// ReadAll returns every parseable sample in file order.
// Blank and malformed lines are skipped; a missing file reads as empty.
func (s *FileMetricsStore) ReadAll() []domain.MetricSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

// ReadSince returns samples no older than window, in file order.
func (s *FileMetricsStore) ReadSince(window time.Duration) []domain.MetricSample {
	cutoff := s.now().Add(-window).UnixMilli()

	all := s.ReadAll()
	recent := make([]domain.MetricSample, 0, len(all))
	for _, sample := range all {
		if sample.Timestamp >= cutoff {
			recent = append(recent, sample)
		}
	}
	return recent
}

// History returns the memory and CPU series over window.
func (s *FileMetricsStore) History(window time.Duration) domain.MetricsHistoryView {
	return domain.NewMetricsHistoryView(s.ReadSince(window))
}

func (s *FileMetricsStore) oversized() bool {
	info, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	return info.Size() > s.maxBytes
}

func (s *FileMetricsStore) readAll() []domain.MetricSample {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read metrics trace", zap.String("path", s.path), zap.Error(err))
		}
		return []domain.MetricSample{}
	}

	samples := make([]domain.MetricSample, 0, bytes.Count(data, []byte{'\n'}))
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var sample domain.MetricSample
		if err := json.Unmarshal(line, &sample); err != nil {
			continue
		}
		samples = append(samples, sample)
	}
	return samples
}

// compact keeps the newest half of the samples. If rewriting fails the trace
// is emptied instead.
func (s *FileMetricsStore) compact() {
	samples := s.readAll()
	keep := samples[len(samples)-len(samples)/2:]

	if err := s.rewrite(keep); err != nil {
		s.logger.Warn("failed to compact metrics trace, clearing it", zap.Error(err))
		if err := os.WriteFile(s.path, nil, 0600); err != nil {
			s.logger.Warn("failed to clear metrics trace", zap.Error(err))
		}
		return
	}

	s.logger.Debug("metrics trace compacted",
		zap.Int("before", len(samples)),
		zap.Int("after", len(keep)))
}

func (s *FileMetricsStore) rewrite(samples []domain.MetricSample) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, sample := range samples {
		if err := enc.Encode(sample); err != nil {
			return err
		}
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileMetricsStore implements domain.MetricsTrace.
var _ domain.MetricsTrace = (*FileMetricsStore)(nil)
