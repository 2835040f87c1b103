// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingest metrics
	IngestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statix_ingest_messages_total",
			Help: "Broker messages processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Roster metrics
	RosterClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "statix_roster_clients",
			Help: "Dashboard sockets currently connected to /ws/nodes",
		},
	)

	RosterBroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statix_roster_broadcasts_total",
			Help: "Coalesced roster snapshot broadcasts sent",
		},
	)

	RosterChangeSignalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statix_roster_change_signals_total",
			Help: "Change signals received by the roster hub before coalescing",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statix_http_requests_total",
			Help: "HTTP requests by method and status class",
		},
		[]string{"method", "status"},
	)
)

// Ingest outcome label values.
const (
	OutcomeOK            = "ok"
	OutcomeMalformed     = "malformed"
	OutcomeInvalid       = "invalid"
	OutcomeUnknownNode   = "unknown_node"
	OutcomeUnknownTopic  = "unknown_topic"
	OutcomeStorageFailed = "storage_failed"
)

// Register registers all collectors with the default registry. Call once at
// server start.
func Register() {
	prometheus.MustRegister(
		IngestMessagesTotal,
		RosterClients,
		RosterBroadcastsTotal,
		RosterChangeSignalsTotal,
		HTTPRequestsTotal,
	)
}

// Handler returns the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
