package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Connection metrics
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	// Request metrics
	requestsTotal *prometheus.CounterVec

	// Publisher metrics
	publishesTotal *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailstatsd_connections_total",
			Help: "Total number of agent connections accepted.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailstatsd_connections_active",
			Help: "Number of currently open agent connections.",
		}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailstatsd_requests_total",
			Help: "Total number of item requests answered, by key and result.",
		}, []string{"key", "result"}),

		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailstatsd_publishes_total",
			Help: "Total number of statistics snapshots published to Redis.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.requestsTotal,
		c.publishesTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// RequestProcessed increments the request counter.
func (c *PrometheusCollector) RequestProcessed(key string, result string) {
	c.requestsTotal.WithLabelValues(key, result).Inc()
}

// SnapshotPublished increments the publish counter.
func (c *PrometheusCollector) SnapshotPublished(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.publishesTotal.WithLabelValues(result).Inc()
}
