// Package metrics provides Prometheus metrics for the security assistant console.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace prefix for all metrics
	namespace = "secassistant"

	// Subsystems
	subsystemMCP     = "mcp"
	subsystemIngest  = "ingest"
	subsystemBreaker = "breaker"
	subsystemLLM     = "llm"
)

var (
	// DurationBuckets for request durations
	DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

	// === MCP Client Metrics ===

	// MCPRequestsTotal counts JSON-RPC requests sent to MCP servers
	MCPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMCP,
			Name:      "requests_total",
			Help:      "Total number of JSON-RPC requests sent to MCP servers",
		},
		[]string{"server", "method"},
	)

	// MCPRequestDuration measures request round-trip latency
	MCPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemMCP,
			Name:      "request_duration_seconds",
			Help:      "MCP request round-trip latency in seconds",
			Buckets:   DurationBuckets,
		},
		[]string{"server", "method"},
	)

	// MCPRequestErrors counts failed MCP requests
	MCPRequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMCP,
			Name:      "request_errors_total",
			Help:      "Total number of failed MCP requests",
		},
		[]string{"server", "error_type"},
	)

	// MCPToolCallsTotal counts tools/call invocations per tool
	MCPToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMCP,
			Name:      "tool_calls_total",
			Help:      "Total number of tools/call invocations",
		},
		[]string{"server", "tool"},
	)

	// MCPDiscardedMessages counts inbound lines dropped by the correlator
	MCPDiscardedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemMCP,
			Name:      "discarded_messages_total",
			Help:      "Inbound messages dropped (malformed, unmatched or stale id)",
		},
		[]string{"server", "reason"},
	)

	// MCPServerUp reports whether an MCP server subprocess is running
	MCPServerUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemMCP,
			Name:      "server_up",
			Help:      "Whether the MCP server subprocess is running (1) or not (0)",
		},
		[]string{"server"},
	)

	// === Ingestion Metrics ===

	// IngestFilesTotal counts processed CSV files by outcome
	IngestFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "files_total",
			Help:      "Total number of CSV files handled by the ingester",
		},
		[]string{"status"},
	)

	// IngestRowsTotal counts log rows inserted into the store
	IngestRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "rows_total",
			Help:      "Total number of log rows inserted into the store",
		},
	)

	// IngestDuration measures per-file ingestion latency
	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "file_duration_seconds",
			Help:      "Per-file ingestion latency in seconds",
			Buckets:   DurationBuckets,
		},
	)

	// === Breaker Metrics ===

	// BreakerActive shows active tool calls per server
	BreakerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemBreaker,
			Name:      "active",
			Help:      "Number of active tool calls admitted by the breaker",
		},
		[]string{"server"},
	)

	// BreakerWaiting shows queued tool calls per server
	BreakerWaiting = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemBreaker,
			Name:      "waiting",
			Help:      "Number of tool calls waiting in the breaker queue",
		},
		[]string{"server"},
	)

	// BreakerRejections counts breaker rejections
	BreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemBreaker,
			Name:      "rejections_total",
			Help:      "Total number of tool calls rejected by the breaker",
		},
		[]string{"server", "reason"},
	)

	// === LLM Metrics ===

	// LLMRequestsTotal counts generation requests by outcome
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemLLM,
			Name:      "requests_total",
			Help:      "Total number of text generation requests",
		},
		[]string{"model", "status"},
	)

	// LLMRequestDuration measures generation latency
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemLLM,
			Name:      "request_duration_seconds",
			Help:      "Text generation latency in seconds",
			Buckets:   DurationBuckets,
		},
		[]string{"model"},
	)

	// registry holds all metrics
	registry = prometheus.NewRegistry()
)

func init() {
	// Register all metrics
	registry.MustRegister(
		// MCP metrics
		MCPRequestsTotal,
		MCPRequestDuration,
		MCPRequestErrors,
		MCPToolCallsTotal,
		MCPDiscardedMessages,
		MCPServerUp,
		// Ingestion metrics
		IngestFilesTotal,
		IngestRowsTotal,
		IngestDuration,
		// Breaker metrics
		BreakerActive,
		BreakerWaiting,
		BreakerRejections,
		// LLM metrics
		LLMRequestsTotal,
		LLMRequestDuration,
	)

	// Also register Go runtime and process collectors
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns an HTTP handler for metrics
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordMCPRequest records a completed MCP request round trip
func RecordMCPRequest(server, method string, duration float64) {
	MCPRequestsTotal.WithLabelValues(server, method).Inc()
	MCPRequestDuration.WithLabelValues(server, method).Observe(duration)
}

// RecordMCPRequestError records a failed MCP request
func RecordMCPRequestError(server, errorType string) {
	MCPRequestErrors.WithLabelValues(server, errorType).Inc()
}

// RecordMCPToolCall records a tools/call invocation
func RecordMCPToolCall(server, tool string) {
	MCPToolCallsTotal.WithLabelValues(server, tool).Inc()
}

// RecordMCPDiscardedMessage records an inbound message dropped by the client
func RecordMCPDiscardedMessage(server, reason string) {
	MCPDiscardedMessages.WithLabelValues(server, reason).Inc()
}

// SetMCPServerUp sets the subprocess liveness gauge
func SetMCPServerUp(server string, up bool) {
	val := 0.0
	if up {
		val = 1.0
	}
	MCPServerUp.WithLabelValues(server).Set(val)
}

// RecordIngestFile records one handled CSV file
func RecordIngestFile(status string, duration float64) {
	IngestFilesTotal.WithLabelValues(status).Inc()
	IngestDuration.Observe(duration)
}

// AddIngestRows adds inserted row count
func AddIngestRows(n int) {
	IngestRowsTotal.Add(float64(n))
}

// SetBreakerActive sets the active count for a breaker
func SetBreakerActive(server string, count int) {
	BreakerActive.WithLabelValues(server).Set(float64(count))
}

// SetBreakerWaiting sets the waiting count for a breaker
func SetBreakerWaiting(server string, count int) {
	BreakerWaiting.WithLabelValues(server).Set(float64(count))
}

// RecordBreakerRejection records a breaker rejection
func RecordBreakerRejection(server, reason string) {
	BreakerRejections.WithLabelValues(server, reason).Inc()
}

// RecordLLMRequest records a text generation request
func RecordLLMRequest(model, status string, duration float64) {
	LLMRequestsTotal.WithLabelValues(model, status).Inc()
	LLMRequestDuration.WithLabelValues(model).Observe(duration)
}
