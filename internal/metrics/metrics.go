// Package metrics exposes Prometheus instrumentation for the classification
// pipeline and the serving process.
package metrics

import (
	"context"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Outcomes recorded per classification request.
const (
	OutcomeOK                = "ok"
	OutcomeUnsupportedFormat = "unsupported_format"
	OutcomeInvalidImage      = "invalid_image"
	OutcomeTooLarge          = "too_large"
	OutcomeShapeMismatch     = "shape_mismatch"
	OutcomeLabelMismatch     = "label_mismatch"
	OutcomeBusy              = "session_busy"
	OutcomeError             = "error"
)

// Metrics owns a private registry so tests and multiple servers never clash
// on the global one.
type Metrics struct {
	registry        *prometheus.Registry
	classifications *prometheus.CounterVec
	stageLatency    *prometheus.HistogramVec
	topConfidence   prometheus.Histogram
	memoryMB        prometheus.Gauge
	cpuPercent      prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traffic_sign_classifications_total",
			Help: "Classification requests by outcome.",
		}, []string{"outcome"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "traffic_sign_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"stage"}),
		topConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "traffic_sign_top_confidence",
			Help:    "Probability of the top label of successful classifications.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		memoryMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_megabytes",
			Help: "Resident memory of the server process in megabytes.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage of the server process in percent.",
		}),
	}
	m.registry.MustRegister(
		m.classifications,
		m.stageLatency,
		m.topConfidence,
		m.memoryMB,
		m.cpuPercent,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOutcome counts one finished classification request.
func (m *Metrics) ObserveOutcome(outcome string) {
	m.classifications.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	m.stageLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveConfidence records the top probability of a result.
func (m *Metrics) ObserveConfidence(p float64) {
	m.topConfidence.Observe(p)
}

// RunProcessSampler refreshes the memory and CPU gauges every interval until
// ctx is done. A non-positive interval disables sampling.
func (m *Metrics) RunProcessSampler(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("process metrics disabled", zap.Error(err))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(proc, logger)
		}
	}
}

func (m *Metrics) sample(proc *process.Process, logger *zap.Logger) {
	if mem, err := proc.MemoryInfo(); err == nil {
		m.memoryMB.Set(float64(mem.RSS) / 1024 / 1024)
	} else {
		logger.Debug("read memory info", zap.Error(err))
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		m.cpuPercent.Set(math.Round(cpu*100) / 100)
	} else {
		logger.Debug("read cpu percent", zap.Error(err))
	}
}
