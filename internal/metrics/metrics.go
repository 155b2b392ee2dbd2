// Package metrics holds the Prometheus collectors of one pipeline run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector is threaded through the orchestrator and the frame runner.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	FramesTotal        *prometheus.CounterVec
	FrameDuration      *prometheus.HistogramVec
	FindingsTotal      *prometheus.CounterVec
	ChunkTimeoutsTotal *prometheus.CounterVec
	PhaseDuration      *prometheus.HistogramVec
	AuditCallsTotal    *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
}

// New creates a collector with its own registry so that concurrent runs and
// tests never collide on global registration.
//
// Metrics:
//   - warden_frames_total{frame,status}
//   - warden_frame_duration_seconds{frame}
//   - warden_findings_total{frame,severity}
//   - warden_chunk_timeouts_total{frame}
//   - warden_phase_duration_seconds{phase}
//   - warden_audit_calls_total{operation,outcome}
//   - warden_cache_hits_total, warden_cache_misses_total
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		FramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "warden_frames_total", Help: "Frames executed by final status"},
			[]string{"frame", "status"},
		),
		FrameDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_frame_duration_seconds",
				Help:    "Frame execution time in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~5min
			},
			[]string{"frame"},
		),
		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "warden_findings_total", Help: "Findings produced by frame and severity"},
			[]string{"frame", "severity"},
		),
		ChunkTimeoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "warden_chunk_timeouts_total", Help: "Batch chunks that exceeded the frame timeout"},
			[]string{"frame"},
		),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_phase_duration_seconds",
				Help:    "Phase execution time in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
			},
			[]string{"phase"},
		),
		AuditCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "warden_audit_calls_total", Help: "External audit service calls by outcome"},
			[]string{"operation", "outcome"},
		),
		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{Name: "warden_cache_hits_total", Help: "Findings cache hits"},
		),
		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{Name: "warden_cache_misses_total", Help: "Findings cache misses"},
		),
	}
}

// Registry exposes the underlying registry for gathering.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordFrame(frameID, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.FramesTotal.WithLabelValues(frameID, status).Inc()
	c.FrameDuration.WithLabelValues(frameID).Observe(d.Seconds())
}

func (c *Collector) RecordFindings(frameID string, bySeverity map[string]int) {
	if c == nil {
		return
	}
	for severity, n := range bySeverity {
		c.FindingsTotal.WithLabelValues(frameID, severity).Add(float64(n))
	}
}

func (c *Collector) RecordChunkTimeout(frameID string) {
	if c == nil {
		return
	}
	c.ChunkTimeoutsTotal.WithLabelValues(frameID).Inc()
}

func (c *Collector) RecordPhase(phase string, d time.Duration) {
	if c == nil {
		return
	}
	c.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (c *Collector) RecordAuditCall(operation, outcome string) {
	if c == nil {
		return
	}
	c.AuditCallsTotal.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) RecordCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.CacheHitsTotal.Inc()
		return
	}
	c.CacheMissesTotal.Inc()
}

// WriteTextfile exports the collected metrics in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %q: %w", path, err)
	}
	return nil
}
