// Package metrics holds the Prometheus collectors for the relay.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pushrelay"

// Metrics holds Prometheus metrics for the relay. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	UpstreamDuration *prometheus.HistogramVec
	StoredBytes      prometheus.Counter
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of inbound requests",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Inbound request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Duration of calls to the push API in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"encoding", "status"},
		),
		StoredBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stored_bytes_total",
				Help:      "Bytes of decrypted uploads written to the file store",
			},
		),
	}
}

// ObserveRequest records one inbound request.
func (m *Metrics) ObserveRequest(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveUpstream records one call to the push API. status is 0 when no
// response was received.
func (m *Metrics) ObserveUpstream(compressed bool, status int, d time.Duration) {
	if m == nil {
		return
	}
	encoding := "identity"
	if compressed {
		encoding = "gzip"
	}
	m.UpstreamDuration.WithLabelValues(encoding, strconv.Itoa(status)).Observe(d.Seconds())
}

// AddStoredBytes records the size of a persisted upload.
func (m *Metrics) AddStoredBytes(n int) {
	if m == nil {
		return
	}
	m.StoredBytes.Add(float64(n))
}
