// Package metrics defines the Prometheus instrumentation for the market
// engine. Metrics are registered via promauto and exposed on /metrics by the
// HTTP server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Order metrics
	OrdersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opined_orders_submitted_total",
			Help: "Total number of orders submitted",
		},
		[]string{"side", "status"}, // buy/sell, executed/failed
	)

	OrderExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opined_order_execution_duration_seconds",
			Help:    "Duration of order execution, including persistence",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"side"},
	)

	TradeVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opined_trade_volume_units_total",
			Help: "Total collateral volume traded, in base units",
		},
		[]string{"side"},
	)

	FeesCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opined_fees_collected_units_total",
			Help: "Total fees collected, in base units",
		},
	)

	// Market lifecycle metrics
	MarketsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opined_markets_created_total",
			Help: "Total number of markets created",
		},
	)

	MarketsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opined_markets_resolved_total",
			Help: "Total number of markets resolved",
		},
	)

	ClaimsPaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opined_claims_paid_total",
			Help: "Total number of winning positions claimed",
		},
	)

	ClaimPayouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opined_claim_payout_units_total",
			Help: "Total claim payouts, in base units",
		},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opined_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opined_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// WebSocket metrics
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opined_ws_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opined_ws_messages_sent_total",
			Help: "Total number of WebSocket messages fanned out to clients",
		},
	)

	// Archival metrics
	RecordsArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opined_records_archived_total",
			Help: "Total number of records exported to blob storage",
		},
		[]string{"kind"}, // orders, audit
	)
)

// RecordOrder records submission metrics for a single order.
func RecordOrder(side string, duration time.Duration, volume int64, fee int64, err error) {
	status := "executed"
	if err != nil {
		status = "failed"
	}
	OrdersSubmitted.WithLabelValues(side, status).Inc()
	OrderExecutionDuration.WithLabelValues(side).Observe(duration.Seconds())
	if err == nil {
		TradeVolume.WithLabelValues(side).Add(float64(volume))
		FeesCollected.Add(float64(fee))
	}
}

// RecordClaim records a successful claim and its payout.
func RecordClaim(payout int64) {
	ClaimsPaid.Inc()
	ClaimPayouts.Add(float64(payout))
}

// RecordHTTPRequest records request metrics for a handled HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordArchive records the number of rows exported in an archival run.
func RecordArchive(kind string, count int64) {
	RecordsArchived.WithLabelValues(kind).Add(float64(count))
}
