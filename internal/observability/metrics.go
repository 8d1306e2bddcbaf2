// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	FeedMessagesReceived prometheus.Counter
	FeedParseErrors      prometheus.Counter
	FeedReconnects       prometheus.Counter
	FeedConnectionState  prometheus.Gauge
	FeedBufferSize       prometheus.Gauge

	// Enrichment metrics
	EnrichmentResults    *prometheus.CounterVec
	MetadataFetchLatency prometheus.Histogram

	// Transfer metrics
	TransfersTotal *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Price oracle metrics
	PriceFetchErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tokenscope"
	}

	return &Metrics{
		// Feed metrics
		FeedMessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_received_total",
			Help:      "Total number of token events accepted into the feed buffer",
		}),
		FeedParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "parse_errors_total",
			Help:      "Total number of feed frames discarded as malformed",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_scheduled_total",
			Help:      "Total number of reconnect attempts scheduled",
		}),
		FeedConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connection_state",
			Help:      "Current feed connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
		}),
		FeedBufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "buffer_size",
			Help:      "Current number of entries in the feed buffer",
		}),

		// Enrichment metrics
		EnrichmentResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "enrichment_results_total",
			Help:      "Total number of enrichment results by outcome",
		}, []string{"result"}),
		MetadataFetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "fetch_latency_seconds",
			Help:      "Metadata document fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Transfer metrics
		TransfersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "submissions_total",
			Help:      "Total number of transfer submissions by outcome",
		}, []string{"outcome"}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		PriceFetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed price oracle lookups",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFeedMessage increments the accepted feed messages counter.
func RecordFeedMessage() {
	DefaultMetrics.FeedMessagesReceived.Inc()
}

// RecordFeedParseError increments the malformed frame counter.
func RecordFeedParseError() {
	DefaultMetrics.FeedParseErrors.Inc()
}

// RecordReconnectScheduled increments the reconnect counter.
func RecordReconnectScheduled() {
	DefaultMetrics.FeedReconnects.Inc()
}

// UpdateFeedState sets the connection state and buffer size gauges.
func UpdateFeedState(state, bufferSize int) {
	DefaultMetrics.FeedConnectionState.Set(float64(state))
	DefaultMetrics.FeedBufferSize.Set(float64(bufferSize))
}

// RecordEnrichment records an enrichment outcome (applied, stale, absent).
func RecordEnrichment(result string) {
	DefaultMetrics.EnrichmentResults.WithLabelValues(result).Inc()
}

// RecordMetadataFetch records metadata fetch latency.
func RecordMetadataFetch(seconds float64) {
	DefaultMetrics.MetadataFetchLatency.Observe(seconds)
}

// RecordTransfer records a transfer submission outcome.
func RecordTransfer(outcome string) {
	DefaultMetrics.TransfersTotal.WithLabelValues(outcome).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordPriceError increments the price oracle failure counter.
func RecordPriceError() {
	DefaultMetrics.PriceFetchErrors.Inc()
}
