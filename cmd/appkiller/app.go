package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/appkiller/internal/config"
	"github.com/eliteGoblin/appkiller/internal/daemon"
	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/infra"
	"github.com/eliteGoblin/appkiller/internal/monitoring"
	"github.com/eliteGoblin/appkiller/internal/usecase"
)

const (
	monitorLogName   = "appkiller.log"
	monitorErrorName = "appkiller.error.log"
	monitorLockName  = "monitor.lock"
)

// app holds every wired component for one CLI invocation.
type app struct {
	config  *config.Config
	dataDir string
	logger  *zap.Logger
	metrics *monitoring.Metrics

	prefs        domain.Preferences
	capabilities *infra.HostCapabilities
	lister       *usecase.Lister
	killer       *usecase.Killer
	modes        *infra.PrefsModeStore
	killLog      *infra.PrefsKillLog
	trace        *infra.FileMetricsStore
	sampler      *daemon.Sampler
}

// newApp loads configuration and wires the core. toFile sends logs to the
// data directory instead of stderr, for the detached monitor.
func newApp(toFile bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dataDir := infra.ResolveDataDir(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logger := createLogger(cfg.Logging, dataDir, toFile)

	prefs, err := openPreferences(cfg.PrefsBackend, dataDir)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	source := infra.NewProcessSource()
	runner := &infra.RealCommandRunner{}
	capabilities := infra.NewHostCapabilities(source)

	detector := usecase.NewDetector(
		usecase.DetectorConfig{
			Window:             cfg.Detection.Window,
			MinProcessPackages: cfg.Detection.MinProcessPackages,
		},
		infra.NewHostProcessTable(source),
		infra.NewHostUsageStats(source),
		capabilities,
		metrics,
		logger,
	)

	lister := usecase.NewLister(infra.NewDesktopCatalog(logger), detector, logger)
	terminator := usecase.NewTerminator(cfg.SelfPackage, infra.DefaultStrategies(source, runner, logger), metrics, logger)
	modes := infra.NewPrefsModeStore(prefs, logger)
	killLog := infra.NewPrefsKillLog(infra.KillLogConfig{
		WriteCap:   cfg.KillLog.WriteCap,
		CompactCap: cfg.KillLog.CompactCap,
	}, prefs, logger)

	var settings domain.SettingsOpener
	if cfg.ManualOpenCommand != "" {
		settings = infra.NewCommandSettingsOpener(cfg.ManualOpenCommand, runner)
	}

	killer := usecase.NewKiller(cfg.SelfPackage, lister, modes, killLog, terminator, settings, metrics, logger)

	trace, err := infra.NewFileMetricsStore(dataDir, cfg.Sampling.MaxTraceBytes, logger)
	if err != nil {
		_ = prefs.Close()
		return nil, err
	}

	sampler := daemon.NewSampler(
		daemon.SamplerConfig{Interval: cfg.Sampling.Interval},
		infra.NewHostResourceSampler(logger),
		trace,
		metrics,
		logger,
	)

	return &app{
		config:       cfg,
		dataDir:      dataDir,
		logger:       logger,
		metrics:      metrics,
		prefs:        prefs,
		capabilities: capabilities,
		lister:       lister,
		killer:       killer,
		modes:        modes,
		killLog:      killLog,
		trace:        trace,
		sampler:      sampler,
	}, nil
}

func (a *app) Close() {
	_ = a.prefs.Close()
	_ = a.logger.Sync()
}

func (a *app) lockPath() string {
	return filepath.Join(a.dataDir, monitorLockName)
}

func (a *app) newMonitor(metricsAddr string) *daemon.Monitor {
	return daemon.NewMonitor(daemon.MonitorConfig{
		LockPath:    a.lockPath(),
		MetricsAddr: metricsAddr,
	}, a.killLog, a.sampler, a.metrics, a.logger)
}

func openPreferences(backend, dataDir string) (domain.Preferences, error) {
	switch backend {
	case config.PrefsBackendEncrypted:
		return infra.OpenEncryptedPreferences(dataDir)
	default:
		return infra.NewFilePreferences(dataDir)
	}
}

func createLogger(cfg config.LogConfig, dataDir string, toFile bool) *zap.Logger {
	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if level, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}

	if toFile {
		zapConfig.OutputPaths = []string{filepath.Join(dataDir, monitorLogName)}
		zapConfig.ErrorOutputPaths = []string{filepath.Join(dataDir, monitorErrorName)}
	} else {
		zapConfig.OutputPaths = []string{"stderr"}
		if isatty.IsTerminal(os.Stderr.Fd()) {
			zapConfig.Encoding = "console"
			zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
