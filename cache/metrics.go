package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
	resultOK    = "ok"
)

// Metrics holds the collectors a KeyedCache reports to.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	writes   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates the cache collectors and registers them on reg.
// A nil reg yields nil metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projcache_requests_total",
			Help: "Cache reads by key namespace and result.",
		}, []string{"namespace", "result"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projcache_writes_total",
			Help: "Cache writes by operation and result.",
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "projcache_backend_seconds",
			Help:    "Backend round trip latency by operation.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
	}

	for _, collector := range []prometheus.Collector{m.requests, m.writes, m.latency} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) request(namespace, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(namespace, result).Inc()
}

func (m *Metrics) write(op, result string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observe(op string, start time.Time) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
