package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_operations_total",
			Help: "Total number of dispatch operations (count)",
		},
		[]string{"operation", "strategy", "status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_ms",
			Help:    "End to end dispatch duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"operation", "strategy"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of requests to provider adapters (count)",
		},
		[]string{"provider", "operation", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_ms",
			Help:    "Duration of provider adapter requests in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"provider", "operation"},
	)

	ProviderLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_loads_total",
			Help: "Total number of lazy provider adapter constructions (count)",
		},
		[]string{"provider", "status"},
	)

	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Total number of events rejected by validation (count)",
		},
		[]string{"operation", "reason"},
	)

	SanitizerDroppedFieldsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sanitizer_dropped_fields_total",
			Help: "Total number of fields dropped during sanitization (count)",
		},
		[]string{"reason"},
	)

	RoutingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_decisions_total",
			Help: "Total number of routing decisions (count)",
		},
		[]string{"source"},
	)

	RoutingActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routing_active_rules",
			Help: "Number of active routing rules (count)",
		},
	)

	RoutingRuleMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_rule_matches_total",
			Help: "Total number of routing rule matches (count)",
		},
		[]string{"rule", "action"},
	)

	ConsentBlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consent_blocked_total",
			Help: "Total number of operations suppressed by the privacy filter (count)",
		},
		[]string{"provider", "operation", "reason"},
	)

	BatchQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_queue_size",
			Help: "Current number of buffered items per provider batcher (count)",
		},
		[]string{"provider"},
	)

	BatchFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_flushes_total",
			Help: "Total number of batch flushes (count)",
		},
		[]string{"provider", "trigger", "status"},
	)

	BatchDroppedItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_dropped_items_total",
			Help: "Total number of batch items dropped after exhausting requeues (count)",
		},
		[]string{"provider"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"provider", "operation"},
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

func RegisterDispatchMetrics() {
	prometheus.MustRegister(DispatchTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(ProviderLoadsTotal)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterValidationMetrics() {
	prometheus.MustRegister(ValidationFailuresTotal)
	prometheus.MustRegister(SanitizerDroppedFieldsTotal)
}

func RegisterRoutingMetrics() {
	prometheus.MustRegister(RoutingDecisionsTotal)
	prometheus.MustRegister(RoutingActiveRules)
	prometheus.MustRegister(RoutingRuleMatchesTotal)
}

func RegisterDecoratorMetrics() {
	prometheus.MustRegister(ConsentBlockedTotal)
	prometheus.MustRegister(BatchQueueSize)
	prometheus.MustRegister(BatchFlushesTotal)
	prometheus.MustRegister(BatchDroppedItemsTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterManagementMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveDispatchDuration(operation, strategy string, duration time.Duration) {
	DispatchDuration.WithLabelValues(operation, strategy).Observe(float64(duration.Milliseconds()))
}

func ObserveProviderRequestDuration(provider, operation string, duration time.Duration) {
	ProviderRequestDuration.WithLabelValues(provider, operation).Observe(float64(duration.Milliseconds()))
}

func SetRoutingActiveRules(count int) {
	RoutingActiveRules.Set(float64(count))
}

func SetBatchQueueSize(provider string, size int) {
	BatchQueueSize.WithLabelValues(provider).Set(float64(size))
}

func IncRoutingRuleMatch(rule, action string) {
	RoutingRuleMatchesTotal.WithLabelValues(rule, action).Inc()
}
