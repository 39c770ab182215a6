// Package monitoring exposes appkiller's own Prometheus metrics.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Termination metrics
	TerminationRequests *prometheus.CounterVec
	StrategyAttempts    *prometheus.CounterVec

	// Detection metrics
	DetectionTier *prometheus.CounterVec
	LivePackages  prometheus.Gauge

	// Sampler metrics
	MemoryUsed   prometheus.Gauge
	CPUUsed      prometheus.Gauge
	SamplesTotal prometheus.Counter
	SampleErrors prometheus.Counter

	// Kill log metrics
	KillLogEntries prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers all collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		TerminationRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appkiller_termination_requests_total",
				Help: "Termination requests by aggregate result",
			},
			[]string{"result"},
		),
		StrategyAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appkiller_termination_attempts_total",
				Help: "Termination strategy attempts by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		DetectionTier: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appkiller_detection_tier_total",
				Help: "Liveness detections by the tier that produced the answer",
			},
			[]string{"tier"},
		),
		LivePackages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appkiller_live_packages",
				Help: "Packages reported live by the last detection",
			},
		),
		MemoryUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appkiller_memory_used_percent",
				Help: "Last sampled memory usage percentage",
			},
		),
		CPUUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appkiller_cpu_used_percent",
				Help: "Last sampled CPU usage percentage",
			},
		),
		SamplesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appkiller_samples_total",
				Help: "Resource samples appended to the metrics trace",
			},
		),
		SampleErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appkiller_sample_errors_total",
				Help: "Resource sampling failures",
			},
		),
		KillLogEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appkiller_kill_log_entries",
				Help: "Entries currently held by the kill log",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveTermination records the aggregate result of one termination request.
func (m *Metrics) ObserveTermination(success bool) {
	if m == nil {
		return
	}
	m.TerminationRequests.WithLabelValues(resultLabel(success)).Inc()
}

// ObserveStrategy records one strategy attempt.
func (m *Metrics) ObserveStrategy(strategy string, success bool) {
	if m == nil {
		return
	}
	m.StrategyAttempts.WithLabelValues(strategy, resultLabel(success)).Inc()
}

// ObserveDetection records which tier answered and how many packages it found.
func (m *Metrics) ObserveDetection(tier string, live int) {
	if m == nil {
		return
	}
	m.DetectionTier.WithLabelValues(tier).Inc()
	m.LivePackages.Set(float64(live))
}

// ObserveSample records a successful resource sample.
func (m *Metrics) ObserveSample(memory, cpu float64) {
	if m == nil {
		return
	}
	m.SamplesTotal.Inc()
	m.MemoryUsed.Set(memory)
	m.CPUUsed.Set(cpu)
}

// ObserveSampleError records a failed resource sample.
func (m *Metrics) ObserveSampleError() {
	if m == nil {
		return
	}
	m.SampleErrors.Inc()
}

// SetKillLogSize records the current kill log length.
func (m *Metrics) SetKillLogSize(n int) {
	if m == nil {
		return
	}
	m.KillLogEntries.Set(float64(n))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
