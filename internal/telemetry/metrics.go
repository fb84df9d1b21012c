package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks HTTP request latency for every route, including
// non-inference endpoints (health, schemas, admin).
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "nightowl",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// LLMRequestsTotal is the counter for inference requests by route, model, and
// outcome. It is registered by All(); no code in this module increments it.
var LLMRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "nightowl",
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "Total number of LLM inference requests.",
	},
	[]string{"route", "model_id", "status"},
)

// LLMTokensTotal is the counter for prompt and completion tokens processed.
// It is registered by All(); no code in this module increments it.
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "nightowl",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Total number of tokens processed, by kind.",
	},
	[]string{"model_id", "kind"},
)

// LLMRequestLatency is the histogram for backend call latency in
// milliseconds. It is registered by All(); no code in this module observes it.
var LLMRequestLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "nightowl",
		Subsystem: "llm",
		Name:      "request_latency_ms",
		Help:      "LLM backend call latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	},
	[]string{"model_id", "route"},
)

// CacheResultsTotal counts completion cache outcomes by tier and kind (hit/miss).
var CacheResultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "nightowl",
		Subsystem: "cache",
		Name:      "results_total",
		Help:      "Completion cache lookups, by tier and result.",
	},
	[]string{"tier", "result"},
)

// ConcurrencyWaitSeconds tracks how long requests waited for a concurrency permit.
var ConcurrencyWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "nightowl",
		Subsystem: "concurrency",
		Name:      "wait_seconds",
		Help:      "Time spent waiting for a concurrency gate permit.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 5},
	},
	[]string{"route"},
)

// RateLimitRejectionsTotal is the counter for requests rejected by the rate
// limiter. It is registered by All(); no code in this module increments it.
var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "nightowl",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total number of requests rejected for exceeding the rate limit.",
	},
	[]string{"role"},
)

// QuotaExhaustedTotal is the counter for requests rejected for exhausted
// monthly quota. It is registered by All(); no code in this module increments it.
var QuotaExhaustedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "nightowl",
		Subsystem: "quota",
		Name:      "exhausted_total",
		Help:      "Total number of requests rejected for exhausted monthly quota.",
	},
	[]string{"route"},
)

// All returns the gateway's domain-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		LLMRequestsTotal,
		LLMTokensTotal,
		LLMRequestLatency,
		CacheResultsTotal,
		ConcurrencyWaitSeconds,
		RateLimitRejectionsTotal,
		QuotaExhaustedTotal,
	}
}
