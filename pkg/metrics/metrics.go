package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RelayEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Total number of inbound events handled by the relay pipeline (count)",
		},
		[]string{"status"},
	)

	RelayProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_processing_duration_ms",
			Help:    "Duration of the synchronous part of a relay operation in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	DedupChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_checks_total",
			Help: "Total number of deduplication lookups (count)",
		},
		[]string{"result"},
	)

	DocumentInsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_inserts_total",
			Help: "Total number of document sink insert attempts (count)",
		},
		[]string{"status"},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts (count)",
		},
		[]string{"status"},
	)

	WebhookDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_ms",
			Help:    "Duration of webhook deliveries in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"status"},
	)

	WebhookInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_in_flight",
			Help: "Number of webhook deliveries currently in flight (count)",
		},
	)

	MediaStagingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_staging_total",
			Help: "Total number of media staging attempts (count)",
		},
		[]string{"status"},
	)

	MediaStagedBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_staged_bytes",
			Help:    "Size of staged media files in bytes",
			Buckets: []float64{1024, 10240, 102400, 1048576, 5242880, 10485760, 52428800},
		},
	)

	MirrorPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_publish_total",
			Help: "Total number of stream mirror publish attempts (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"component", "strategy", "reason"},
	)
)

func RegisterRelayMetrics() {
	prometheus.MustRegister(RelayEventsTotal)
	prometheus.MustRegister(RelayProcessingDuration)
	prometheus.MustRegister(DedupChecksTotal)
	prometheus.MustRegister(DocumentInsertsTotal)
	prometheus.MustRegister(WebhookDeliveriesTotal)
	prometheus.MustRegister(WebhookDeliveryDuration)
	prometheus.MustRegister(WebhookInFlight)
	prometheus.MustRegister(MediaStagingTotal)
	prometheus.MustRegister(MediaStagedBytes)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterMirrorMetrics() {
	prometheus.MustRegister(MirrorPublishTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterRateLimitMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveRelayDuration(duration time.Duration, status string) {
	RelayProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveWebhookDuration(duration time.Duration, status string) {
	WebhookDeliveryDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveMediaStagedBytes(size int64) {
	MediaStagedBytes.Observe(float64(size))
}
