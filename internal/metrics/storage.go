package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
)

var _ filestore.Observer = (*StorageMetrics)(nil)

// StorageMetrics holds Prometheus collectors for object store calls. It
// implements filestore.Observer.
type StorageMetrics struct {
	bytes   *prometheus.CounterVec
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewStorageMetrics registers storage metrics on the provided registry.
func NewStorageMetrics(reg *prometheus.Registry) *StorageMetrics {
	bytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "bytes_total",
		Help:      "Total bytes moved by object store operations.",
	}, []string{"op"})
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "ops_total",
		Help:      "Total number of object store operations by result.",
	}, []string{"op", "result"}) // result = ok | not_found | timeout | error
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "op_duration_seconds",
		Help:      "Histogram of object store operation durations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	reg.MustRegister(bytes, ops, latency)

	return &StorageMetrics{
		bytes:   bytes,
		ops:     ops,
		latency: latency,
	}
}

// Observe records a store operation. dur must be the total time spent in
// the operation; for reads that is open until close.
func (m *StorageMetrics) Observe(op string, bytes int64, err error, dur time.Duration) {
	if bytes > 0 {
		m.bytes.WithLabelValues(op).Add(float64(bytes))
	}
	m.ops.WithLabelValues(op, result(err)).Inc()
	m.latency.WithLabelValues(op).Observe(dur.Seconds())
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errs.IsNotFound(err):
		return "not_found"
	case errs.IsTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}
