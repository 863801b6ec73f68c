package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the prometheus instruments for the relay and directory
// services.
type Collector struct {
	connectedClients prometheus.Gauge
	messagesTotal    *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec

	directoryRequests *prometheus.CounterVec
	directoryDuration *prometheus.HistogramVec
	registeredTotal   prometheus.Gauge
}

// NewCollector registers all instruments on the default registry.
func NewCollector() *Collector {
	return &Collector{
		connectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wonder_relay_connected_clients",
			Help: "Number of identities currently connected to the relay",
		}),
		messagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wonder_relay_messages_total",
			Help: "Signaling messages routed through the relay",
		}, []string{"type"}),
		rateLimitedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wonder_relay_rate_limited_total",
			Help: "Messages dropped by the per-connection rate limiter",
		}, []string{"identity"}),
		directoryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wonder_directory_requests_total",
			Help: "Directory HTTP requests",
		}, []string{"method", "path", "status"}),
		directoryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wonder_directory_request_duration_seconds",
			Help:    "Directory HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		registeredTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wonder_directory_registered_identities",
			Help: "Identities currently registered in the directory",
		}),
	}
}

func (c *Collector) SetConnectedClients(n int) {
	c.connectedClients.Set(float64(n))
}

func (c *Collector) RecordMessage(messageType string) {
	c.messagesTotal.WithLabelValues(messageType).Inc()
}

func (c *Collector) RecordRateLimited(identity string) {
	c.rateLimitedTotal.WithLabelValues(identity).Inc()
}

func (c *Collector) RecordDirectoryRequest(method, path, status string, elapsed time.Duration) {
	c.directoryRequests.WithLabelValues(method, path, status).Inc()
	c.directoryDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (c *Collector) SetRegisteredIdentities(n int) {
	c.registeredTotal.Set(float64(n))
}

// Handler exposes the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}
