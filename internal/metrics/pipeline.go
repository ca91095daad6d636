package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/filegate/internal/archive"
	"github.com/koustreak/filegate/internal/convert"
)

// ExportMetrics implements archive.Observer.
type ExportMetrics struct {
	archives *prometheus.CounterVec
	entries  prometheus.Counter
	bytes    prometheus.Counter
	duration prometheus.Histogram
}

// NewExportMetrics registers archive export metrics on reg.
func NewExportMetrics(reg *prometheus.Registry) *ExportMetrics {
	m := &ExportMetrics{
		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "archives_total",
			Help:      "Archive exports by outcome.",
		}, []string{"outcome"}),
		entries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "entries_total",
			Help:      "Archive entries written.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "bytes_total",
			Help:      "Uncompressed object bytes written into archives.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "duration_seconds",
			Help:      "Histogram of archive export durations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	reg.MustRegister(m.archives, m.entries, m.bytes, m.duration)
	return m
}

func (m *ExportMetrics) ObserveExport(outcome archive.Outcome, entries int, bytes int64, dur time.Duration) {
	m.archives.WithLabelValues(string(outcome)).Inc()
	m.entries.Add(float64(entries))
	m.bytes.Add(float64(bytes))
	m.duration.Observe(dur.Seconds())
}

// ConversionMetrics implements convert.Observer.
type ConversionMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewConversionMetrics registers conversion metrics on reg.
func NewConversionMetrics(reg *prometheus.Registry) *ConversionMetrics {
	m := &ConversionMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "convert",
			Name:      "requests_total",
			Help:      "Rendition requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "convert",
			Name:      "duration_seconds",
			Help:      "Histogram of rendition request durations, fetch to cleanup.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *ConversionMetrics) ObserveConversion(outcome convert.Outcome, dur time.Duration) {
	m.requests.WithLabelValues(string(outcome)).Inc()
	m.duration.WithLabelValues(string(outcome)).Observe(dur.Seconds())
}

var (
	_ archive.Observer = (*ExportMetrics)(nil)
	_ convert.Observer = (*ConversionMetrics)(nil)
)
