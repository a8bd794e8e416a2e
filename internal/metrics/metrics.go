// Package metrics exposes Prometheus counters for connections, navigation
// and transfers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xfer_connections_total",
			Help: "Total accepted connections",
		},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xfer_sessions_active",
			Help: "Number of connected sessions",
		},
	)

	navigationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xfer_navigations_total",
			Help: "Total directory changes made by users",
		},
	)

	listingErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xfer_listing_errors_total",
			Help: "Total directory listings that failed to read",
		},
	)

	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xfer_transfers_total",
			Help: "Total file transfers by result",
		},
		[]string{"result"},
	)

	transferBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xfer_transfer_bytes_total",
			Help: "Total bytes of successfully transferred files",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordConnection records an accepted TCP connection.
func RecordConnection() {
	connectionsTotal.Inc()
}

// SessionOpened records a session starting on a connection.
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionClosed records a disconnect.
func SessionClosed() {
	sessionsActive.Dec()
}

// RecordNavigation records a directory change.
func RecordNavigation() {
	navigationsTotal.Inc()
}

// RecordListingError records a failed directory read.
func RecordListingError() {
	listingErrorsTotal.Inc()
}

// RecordTransfer records a finished transfer.
func RecordTransfer(success bool, bytes int) {
	if success {
		transfersTotal.WithLabelValues("success").Inc()
		transferBytesTotal.Add(float64(bytes))
		return
	}
	transfersTotal.WithLabelValues("failed").Inc()
}
