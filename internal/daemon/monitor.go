package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/monitoring"
)

// ErrAlreadyRunning is returned when another monitor holds the lock.
var ErrAlreadyRunning = errors.New("monitor already running")

// MonitorConfig holds monitor configuration.
type MonitorConfig struct {
	LockPath        string        // Single-instance lock file; also records the PID
	MetricsAddr     string        // Listen address for /metrics; empty disables it
	ShutdownTimeout time.Duration // Grace period for the HTTP server
}

// Monitor runs the long-lived parts of appkiller: kill log compaction at
// startup, the resource sampler, and an optional metrics endpoint.
type Monitor struct {
	config  MonitorConfig
	killLog domain.KillLog
	sampler *Sampler
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewMonitor creates a new monitor.
func NewMonitor(
	config MonitorConfig,
	killLog domain.KillLog,
	sampler *Sampler,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Monitor {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	return &Monitor{
		config:  config,
		killLog: killLog,
		sampler: sampler,
		metrics: metrics,
		logger:  logger,
	}
}

// Run blocks until ctx is canceled or a component fails.
// Cancellation is a clean shutdown and returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	release, err := m.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	m.killLog.Compact()
	m.metrics.SetKillLogSize(len(m.killLog.List()))

	m.logger.Info("monitor started",
		zap.Int("pid", os.Getpid()),
		zap.String("metrics_addr", m.config.MetricsAddr))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.sampler.Run(gCtx)
	})

	if m.config.MetricsAddr != "" {
		server := &http.Server{
			Addr:              m.config.MetricsAddr,
			Handler:           m.handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), m.config.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	m.logger.Info("monitor stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (m *Monitor) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// acquireLock takes a non-blocking exclusive flock and writes our PID into it.
func (m *Monitor) acquireLock() (func(), error) {
	if m.config.LockPath == "" {
		return func() {}, nil
	}

	lockFile, err := os.OpenFile(m.config.LockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		lockFile.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if err := lockFile.Truncate(0); err == nil {
		_, _ = lockFile.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return func() {
		_ = lockFile.Truncate(0)
		_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		lockFile.Close()
	}, nil
}

// RunningPID returns the PID recorded in lockPath if a monitor currently holds it.
func RunningPID(lockPath string) (int, bool) {
	lockFile, err := os.OpenFile(lockPath, os.O_RDWR, 0600)
	if err != nil {
		return 0, false
	}
	defer lockFile.Close()

	// If we can take the lock, nobody is running.
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		return 0, false
	}

	data := make([]byte, 32)
	n, _ := lockFile.ReadAt(data, 0)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data[:n])))
	if err != nil {
		return 0, false
	}
	return pid, true
}
