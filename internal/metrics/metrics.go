// ABOUTME: Prometheus collectors for the DM sync engine
// ABOUTME: Registered on a package registry exposed by the gateway

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all dmgate collectors. The gateway serves it when metrics
// are enabled.
var Registry = prometheus.NewRegistry()

var (
	// SessionsActive tracks currently open conversation sessions.
	SessionsActive = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "dmgate_sessions_active",
		Help: "Number of currently open conversation sessions.",
	})

	// MessagesSent counts messages confirmed by the store.
	MessagesSent = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dmgate_messages_sent_total",
		Help: "Total messages successfully persisted via send.",
	})

	// SendFailures counts sends rejected by the store.
	SendFailures = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dmgate_send_failures_total",
		Help: "Total sends that failed validation or transport.",
	})

	// EventsDelivered counts insert events handed to sessions.
	EventsDelivered = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dmgate_events_delivered_total",
		Help: "Total insert events delivered to open sessions.",
	})

	// EventsDuplicate counts events the reconciler dropped as duplicates.
	EventsDuplicate = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dmgate_events_duplicate_total",
		Help: "Total insert events dropped as duplicates.",
	})

	// HistoryLoadSeconds observes conversation history load latency.
	HistoryLoadSeconds = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "dmgate_history_load_seconds",
		Help:    "Latency of conversation history loads.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler returns an HTTP handler serving the dmgate registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
