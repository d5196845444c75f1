package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "endpoint"},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service", "circuit_name"},
	)

	// CircuitBreakerFailures tracks circuit breaker failures
	CircuitBreakerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of circuit breaker failures",
		},
		[]string{"service", "circuit_name"},
	)

	// BulkheadActiveRequests tracks active requests in bulkhead
	BulkheadActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulkhead_active_requests",
			Help: "Number of active requests in bulkhead",
		},
		[]string{"service", "bulkhead_name"},
	)

	// BulkheadRejectedRequests tracks rejected requests by bulkhead
	BulkheadRejectedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkhead_rejected_requests_total",
			Help: "Total number of rejected requests by bulkhead",
		},
		[]string{"service", "bulkhead_name"},
	)

	// TokensIssuedTotal counts purchase tokens handed out
	TokensIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_tokens_issued_total",
			Help: "Total number of purchase tokens issued",
		},
	)

	// TokenRequestsRejected counts token requests refused, by reason
	TokenRequestsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_token_requests_rejected_total",
			Help: "Total number of rejected purchase token requests",
		},
		[]string{"reason"},
	)

	// TokensExpiredTotal counts tokens found past their expiry
	TokensExpiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_tokens_expired_total",
			Help: "Total number of purchase tokens invalidated by expiry",
		},
		[]string{"detected_by"},
	)

	// LiveTokens tracks the number of unconsumed tokens
	LiveTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "purchase_live_tokens",
			Help: "Number of live purchase tokens",
		},
	)

	// PaymentsTotal tracks confirmations by outcome
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_payments_total",
			Help: "Total number of payment confirmations",
		},
		[]string{"status"},
	)

	// PaymentAmount tracks completed payment amounts
	PaymentAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_amount_dollars",
			Help:    "Payment amounts in dollars",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000},
		},
	)

	// HeldFunds tracks the total amount held against open tokens
	HeldFunds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "purchase_held_funds_dollars",
			Help: "Funds held against live purchase tokens",
		},
	)

	// ChaosFailureRate tracks chaos engineering failure simulations
	ChaosFailureRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chaos_failure_enabled",
			Help: "Whether chaos failure mode is enabled (1=enabled, 0=disabled)",
		},
		[]string{"service"},
	)

	// ChaosSlowMode tracks slow response simulation
	ChaosSlowMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chaos_slow_mode_enabled",
			Help: "Whether chaos slow mode is enabled (1=enabled, 0=disabled)",
		},
		[]string{"service"},
	)
)

// PrometheusMiddleware creates a Gin middleware for automatic metrics collection
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()

		RequestDuration.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}
