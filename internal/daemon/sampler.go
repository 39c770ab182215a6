// Package daemon implements the long-running monitor: periodic resource
// sampling and the metrics endpoint.
package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/monitoring"
)

// SamplerConfig holds sampler configuration.
type SamplerConfig struct {
	Interval time.Duration // Time between samples (default 30s)
}

// DefaultSamplerConfig returns default sampler configuration.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Interval: 30 * time.Second,
	}
}

// Sampler periodically reads resource usage and appends it to the metrics trace.
// At most one sampling loop runs per Sampler.
type Sampler struct {
	config  SamplerConfig
	source  domain.ResourceSampler
	trace   domain.MetricsTrace
	metrics *monitoring.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler creates a new sampler.
func NewSampler(
	config SamplerConfig,
	source domain.ResourceSampler,
	trace domain.MetricsTrace,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Sampler {
	if config.Interval <= 0 {
		config.Interval = DefaultSamplerConfig().Interval
	}
	return &Sampler{
		config:  config,
		source:  source,
		trace:   trace,
		metrics: metrics,
		logger:  logger,
	}
}

// Start launches the sampling loop in the background. A loop already running
// is stopped first and waited for, so two loops never overlap.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		_ = s.Run(loopCtx)
	}()
}

// Stop cancels the background loop and waits for it to exit.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sampler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}

// Run samples immediately and then every Interval until ctx is canceled.
// This blocks; cancellation is observed before each sample and while waiting.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Info("sampler started", zap.Duration("interval", s.config.Interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopping")
			return ctx.Err()
		case <-timer.C:
		}

		if ctx.Err() != nil {
			s.logger.Info("sampler stopping")
			return ctx.Err()
		}

		_, _ = s.SampleOnce(ctx)
		timer.Reset(s.config.Interval)
	}
}

// SampleOnce takes one reading and appends it to the trace.
func (s *Sampler) SampleOnce(ctx context.Context) (domain.MetricSample, error) {
	sample, err := s.source.Sample(ctx)
	if err != nil {
		s.metrics.ObserveSampleError()
		s.logger.Warn("resource sample failed", zap.Error(err))
		return domain.MetricSample{}, err
	}

	s.trace.Append(sample)
	s.metrics.ObserveSample(sample.MemoryUsedPercent, sample.CPUUsedPercent)
	s.logger.Debug("resource sampled",
		zap.Float64("memory_percent", sample.MemoryUsedPercent),
		zap.Float64("cpu_percent", sample.CPUUsedPercent))
	return sample, nil
}
