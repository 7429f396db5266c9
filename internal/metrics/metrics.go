// Package metrics provides metrics collection and reporting for the MCP server.
package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Prometheus metric labels
const (
	labelTool       = "tool"
	labelStatus     = "status"
	labelDatasource = "datasource"
)

// Metrics tracks operational metrics with both internal counters and
// Prometheus metrics.
type Metrics struct {
	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64

	totalLatency atomic.Int64 // microseconds
	latencyCount atomic.Uint64
	maxLatency   atomic.Int64

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	errorsMu       sync.RWMutex
	errorsByStatus map[int]uint64

	toolsMu    sync.RWMutex
	toolUsage  map[string]uint64
	toolErrors map[string]uint64

	logger *zap.Logger

	promRequestsTotal  *prometheus.CounterVec
	promRequestsFailed *prometheus.CounterVec
	promRequestLatency *prometheus.HistogramVec
	promErrorsByStatus *prometheus.CounterVec
	promCacheHits      *prometheus.CounterVec
	promCacheMisses    *prometheus.CounterVec
	promToolCalls      *prometheus.CounterVec
	promToolErrors     *prometheus.CounterVec
	promToolLatency    *prometheus.HistogramVec
}

// New creates a metrics tracker. promauto registers everything with the
// default registry, so New must be called at most once per process.
func New(logger *zap.Logger) *Metrics {
	return &Metrics{
		errorsByStatus: make(map[int]uint64),
		toolUsage:      make(map[string]uint64),
		toolErrors:     make(map[string]uint64),
		logger:         logger,

		promRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overwatch_mcp",
			Name:      "backend_requests_total",
			Help:      "Total number of requests made to observability backends",
		}, []string{labelDatasource}),
		promRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overwatch_mcp",
			Name:      "backend_requests_failed_total",
			Help:      "Total number of failed backend requests",
		}, []string{labelDatasource}),
		promRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "overwatch_mcp",
			Name:      "backend_request_latency_seconds",
			Help:      "Backend request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{labelDatasource}),
		promErrorsByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overwatch_mcp",
			Name:      "backend_errors_by_status_total",
			Help:      "Backend errors by HTTP status code",
		}, []string{labelStatus}),
		promCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overwatch_mcp",
			Name:      "cache_hits_total",
			Help:      "Cache hits, labeled by tool name",
		}, []string{labelTool}),
		promCacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overwatch_mcp",
			Name:      "cache_misses_total",
			Help:      "Cache misses, labeled by tool name",
		}, []string{labelTool}),
		promToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overwatch_mcp",
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls, labeled by tool name (e.g., graylog_search, prometheus_query)",
		}, []string{labelTool}),
		promToolErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overwatch_mcp",
			Name:      "tool_errors_total",
			Help:      "Total number of tool errors, labeled by tool name",
		}, []string{labelTool}),
		promToolLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "overwatch_mcp",
			Name:      "tool_latency_seconds",
			Help:      "Tool execution latency in seconds, labeled by tool name",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{labelTool}),
	}
}

// RecordRequest records a backend request outcome.
func (m *Metrics) RecordRequest(datasource string, success bool, latency time.Duration, statusCode int) {
	m.totalRequests.Add(1)
	m.promRequestsTotal.WithLabelValues(datasource).Inc()
	m.promRequestLatency.WithLabelValues(datasource).Observe(latency.Seconds())

	if success {
		m.successfulRequests.Add(1)
	} else {
		m.failedRequests.Add(1)
		m.promRequestsFailed.WithLabelValues(datasource).Inc()
		m.recordErrorStatus(statusCode)
	}

	m.recordLatency(latency)
}

// RecordCacheAccess records a cache lookup outcome for a tool.
func (m *Metrics) RecordCacheAccess(toolName string, hit bool) {
	if hit {
		m.cacheHits.Add(1)
		m.promCacheHits.WithLabelValues(toolName).Inc()
	} else {
		m.cacheMisses.Add(1)
		m.promCacheMisses.WithLabelValues(toolName).Inc()
	}
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(toolName string, success bool, latency time.Duration) {
	m.toolsMu.Lock()
	m.toolUsage[toolName]++
	if !success {
		m.toolErrors[toolName]++
	}
	m.toolsMu.Unlock()

	m.promToolCalls.WithLabelValues(toolName).Inc()
	m.promToolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
	if !success {
		m.promToolErrors.WithLabelValues(toolName).Inc()
	}
}

func (m *Metrics) recordLatency(latency time.Duration) {
	latencyUs := latency.Microseconds()

	m.totalLatency.Add(latencyUs)
	m.latencyCount.Add(1)

	for {
		currentMax := m.maxLatency.Load()
		if latencyUs <= currentMax {
			break
		}
		if m.maxLatency.CompareAndSwap(currentMax, latencyUs) {
			break
		}
	}
}

func (m *Metrics) recordErrorStatus(statusCode int) {
	if statusCode == 0 {
		return
	}

	m.errorsMu.Lock()
	m.errorsByStatus[statusCode]++
	m.errorsMu.Unlock()

	m.promErrorsByStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Stats represents current metrics.
type Stats struct {
	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
	CacheHits          uint64
	CacheMisses        uint64
	AverageLatency     time.Duration
	MaxLatency         time.Duration
	ErrorsByStatus     map[int]uint64
	ToolUsage          map[string]uint64
	ToolErrors         map[string]uint64
}

// GetStats returns a snapshot of the internal counters.
func (m *Metrics) GetStats() Stats {
	m.errorsMu.RLock()
	errorsByStatus := make(map[int]uint64, len(m.errorsByStatus))
	for k, v := range m.errorsByStatus {
		errorsByStatus[k] = v
	}
	m.errorsMu.RUnlock()

	m.toolsMu.RLock()
	toolUsage := make(map[string]uint64, len(m.toolUsage))
	toolErrors := make(map[string]uint64, len(m.toolErrors))
	for k, v := range m.toolUsage {
		toolUsage[k] = v
	}
	for k, v := range m.toolErrors {
		toolErrors[k] = v
	}
	m.toolsMu.RUnlock()

	latencyCount := m.latencyCount.Load()
	var avgLatency time.Duration
	if latencyCount > 0 {
		avgLatencyMicros := float64(m.totalLatency.Load()) / float64(latencyCount)
		avgLatency = time.Duration(avgLatencyMicros) * time.Microsecond
	}

	return Stats{
		TotalRequests:      m.totalRequests.Load(),
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		CacheHits:          m.cacheHits.Load(),
		CacheMisses:        m.cacheMisses.Load(),
		AverageLatency:     avgLatency,
		MaxLatency:         time.Duration(m.maxLatency.Load()) * time.Microsecond,
		ErrorsByStatus:     errorsByStatus,
		ToolUsage:          toolUsage,
		ToolErrors:         toolErrors,
	}
}

// LogStats logs current statistics.
func (m *Metrics) LogStats() {
	stats := m.GetStats()

	var errorRate float64
	if stats.TotalRequests > 0 {
		errorRate = float64(stats.FailedRequests) / float64(stats.TotalRequests) * 100
	}

	m.logger.Info("Operational metrics",
		zap.Uint64("total_requests", stats.TotalRequests),
		zap.Uint64("successful_requests", stats.SuccessfulRequests),
		zap.Uint64("failed_requests", stats.FailedRequests),
		zap.Float64("error_rate_pct", errorRate),
		zap.Uint64("cache_hits", stats.CacheHits),
		zap.Uint64("cache_misses", stats.CacheMisses),
		zap.Duration("avg_latency", stats.AverageLatency),
		zap.Duration("max_latency", stats.MaxLatency),
		zap.Any("errors_by_status", stats.ErrorsByStatus),
		zap.Any("tool_usage", stats.ToolUsage),
	)
}
