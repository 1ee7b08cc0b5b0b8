// Package metrics exposes broker activity as Prometheus collectors, served
// over plain HTTP for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements dispatcher.MetricsSink.
type Metrics struct {
	subscribersConnected prometheus.Gauge
	publicationsForward  prometheus.Counter
	publicationsDropped  *prometheus.CounterVec
	duplicateIdentities  prometheus.Counter
}

// New registers the broker's collectors on the default Prometheus registry
// and returns the sink.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg instead of the default registry; tests
// use this with a throwaway prometheus.NewRegistry() to avoid colliding
// with other tests' metric names.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		subscribersConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "topicbroker_subscribers_connected",
			Help: "Number of currently connected TCP subscribers.",
		}),
		publicationsForward: f.NewCounter(prometheus.CounterOpts{
			Name: "topicbroker_publications_forwarded_total",
			Help: "Total number of publication deliveries written to subscribers.",
		}),
		publicationsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "topicbroker_publications_dropped_total",
			Help: "Total number of UDP datagrams dropped before forwarding, by reason.",
		}, []string{"reason"}),
		duplicateIdentities: f.NewCounter(prometheus.CounterOpts{
			Name: "topicbroker_duplicate_identity_rejections_total",
			Help: "Total number of TCP connections rejected for reusing a live identity.",
		}),
	}
}

// Handler returns an http.Handler serving the default Prometheus registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) SubscriberConnected()    { m.subscribersConnected.Inc() }
func (m *Metrics) SubscriberDisconnected() { m.subscribersConnected.Dec() }
func (m *Metrics) PublicationForwarded()   { m.publicationsForward.Inc() }
func (m *Metrics) PublicationDropped(reason string) {
	m.publicationsDropped.WithLabelValues(reason).Inc()
}
func (m *Metrics) DuplicateIdentityRejected() { m.duplicateIdentities.Inc() }
