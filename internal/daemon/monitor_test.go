package daemon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/monitoring"
)

// countingKillLog implements domain.KillLog for testing
type countingKillLog struct {
	mu        sync.Mutex
	compacted int
}

func (c *countingKillLog) Record(appName string, mode domain.KillMode) domain.KillLogEntry {
	return domain.KillLogEntry{AppName: appName, Mode: mode}
}

func (c *countingKillLog) List() []domain.KillLogEntry { return nil }

func (c *countingKillLog) Compact() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compacted++
}

func newTestMonitor(t *testing.T, lockPath string) (*Monitor, *countingKillLog, *fakeResourceSampler) {
	t.Helper()
	killLog := &countingKillLog{}
	source := &fakeResourceSampler{}
	sampler := NewSampler(SamplerConfig{Interval: time.Hour}, source, &memTrace{}, nil, zap.NewNop())
	m := NewMonitor(MonitorConfig{LockPath: lockPath}, killLog, sampler, nil, zap.NewNop())
	return m, killLog, source
}

// TestMonitor_CompactsAndSamplesUntilCanceled verifies startup work and clean shutdown
func TestMonitor_CompactsAndSamplesUntilCanceled(t *testing.T) {
	m, killLog, source := newTestMonitor(t, filepath.Join(t.TempDir(), "monitor.lock"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	assert.Eventually(t, func() bool { return source.Calls() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Equal(t, 1, killLog.compacted)
}

// TestMonitor_SingleInstance verifies a second monitor cannot take the lock
func TestMonitor_SingleInstance(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "monitor.lock")
	first, _, source := newTestMonitor(t, lockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- first.Run(ctx) }()
	assert.Eventually(t, func() bool { return source.Calls() == 1 }, time.Second, time.Millisecond)

	pid, running := RunningPID(lockPath)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	second, secondLog, _ := newTestMonitor(t, lockPath)
	err := second.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Zero(t, secondLog.compacted)

	cancel()
	require.NoError(t, <-errCh)

	_, running = RunningPID(lockPath)
	assert.False(t, running)
}

// TestRunningPID_NoLockFile verifies a missing lock means not running
func TestRunningPID_NoLockFile(t *testing.T) {
	_, running := RunningPID(filepath.Join(t.TempDir(), "absent.lock"))
	assert.False(t, running)
}

// TestMonitor_Handler verifies the metrics and health endpoints
func TestMonitor_Handler(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	metrics.SetKillLogSize(7)
	m := NewMonitor(MonitorConfig{}, &countingKillLog{}, nil, metrics, zap.NewNop())

	server := httptest.NewServer(m.handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "appkiller_kill_log_entries 7")

	resp, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestMonitor_MetricsServerFailure verifies a bad listen address ends Run with an error
func TestMonitor_MetricsServerFailure(t *testing.T) {
	killLog := &countingKillLog{}
	sampler := NewSampler(SamplerConfig{Interval: time.Hour}, &fakeResourceSampler{}, &memTrace{}, nil, zap.NewNop())
	m := NewMonitor(MonitorConfig{MetricsAddr: "256.256.256.256:99999"}, killLog, sampler, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "metrics server failed")
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not fail")
	}
}

// TestStartDetachedWithPath_MissingBinary verifies spawn errors are reported
func TestStartDetachedWithPath_MissingBinary(t *testing.T) {
	_, err := StartDetachedWithPath(filepath.Join(t.TempDir(), "nope"), "monitor")
	assert.ErrorContains(t, err, "failed to start")
}

// TestStartDetachedWithPath_Spawns verifies a detached child is started
func TestStartDetachedWithPath_Spawns(t *testing.T) {
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}

	pid, err := StartDetachedWithPath(truePath)
	require.NoError(t, err)
	assert.Positive(t, pid)
}
