// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the claudepipe gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

const namespace = "claudepipe"

// LLMBuckets spans 100ms to the 300s upstream timeout.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// HTTP surface.
var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "HTTP requests by method, status class and route.",
	}, []string{"method", "status", "route"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration, including the full length of streams.",
		Buckets:   LLMBuckets,
	}, []string{"method", "route"})

	StreamingConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streaming_connections_active",
		Help:      "SSE responses currently open.",
	})

	RateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Requests rejected by the per-tier rate limiter.",
	}, []string{"tier"})

	MCPToolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mcp",
		Name:      "tool_calls_total",
		Help:      "MCP tool calls by tool and outcome.",
	}, []string{"tool_name", "status"})
)

// Upstream vendor.
var (
	// ProviderRequestsTotal has status "ok" or the APIError type.
	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Upstream calls by outcome.",
	}, []string{"provider", "model", "status"})

	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "latency_seconds",
		Help:      "Upstream call latency, retries included.",
		Buckets:   LLMBuckets,
	}, []string{"provider", "model"})

	// ProviderTokensTotal directions: input, output, cache_creation, cache_read.
	ProviderTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "tokens_total",
		Help:      "Tokens reported by the upstream.",
	}, []string{"provider", "model", "direction"})

	ProviderRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "retries_total",
		Help:      "Retries after an upstream HTTP 429.",
	}, []string{"provider", "model"})

	StreamSkippedLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "skipped_lines_total",
		Help:      "Malformed upstream SSE lines that were skipped.",
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		RateLimitRejectedTotal,
		MCPToolCallsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ProviderRetriesTotal,
		StreamSkippedLinesTotal,
	)
}
