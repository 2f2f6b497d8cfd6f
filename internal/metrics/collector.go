// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// maxErrorRecords 错误环形缓冲容量
const maxErrorRecords = 100

// maxLatencySamples 引擎请求延迟采样环容量
const maxLatencySamples = 100

// =============================================================================
// 📊 指标收集器
// =============================================================================

// ErrorRecord 最近错误记录
type ErrorRecord struct {
	Time    time.Time         `json:"time"`
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// Collector 指标收集器
type Collector struct {
	// Engine 传输指标
	engineRequestsTotal   *prometheus.CounterVec
	engineRequestDuration *prometheus.HistogramVec
	engineRetriesTotal    *prometheus.CounterVec

	// 令牌指标
	tokenRefreshesTotal *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 工具指标
	toolsCompiled          *prometheus.GaugeVec
	toolInvocationsTotal   *prometheus.CounterVec
	toolInvocationDuration *prometheus.HistogramVec

	// 包发现指标
	discoveryTotal *prometheus.CounterVec

	// 检查服务自身的 HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 最近错误环形缓冲与延迟采样
	mu           sync.RWMutex
	errors       []ErrorRecord
	latencies    []time.Duration
	requestCount int64
	startedAt    time.Time

	logger *zap.Logger
}

// Snapshot 收集器的运行状态快照，用于检查端点输出
type Snapshot struct {
	UptimeSeconds float64       `json:"uptime_seconds"`
	RequestCount  int64         `json:"request_count"`
	AvgLatencyMs  float64       `json:"avg_latency_ms"`
	MaxLatencyMs  float64       `json:"max_latency_ms"`
	ErrorCount    int           `json:"error_count"`
	RecentErrors  []ErrorRecord `json:"recent_errors,omitempty"`
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		startedAt: time.Now(),
		logger:    logger.With(zap.String("component", "metrics")),
	}

	// Engine 传输指标
	c.engineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Total number of NPL Engine requests",
		},
		[]string{"method", "status"},
	)

	c.engineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_request_duration_seconds",
			Help:      "NPL Engine request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	c.engineRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_retries_total",
			Help:      "Total number of retried NPL Engine requests",
		},
		[]string{"reason"},
	)

	// 令牌指标
	c.tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Total number of access token refreshes",
		},
		[]string{"outcome"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 工具指标
	c.toolsCompiled = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tools_compiled",
			Help:      "Number of tools compiled per NPL package",
		},
		[]string{"package"},
	)

	c.toolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	c.toolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// 包发现指标
	c.discoveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "package_discovery_total",
			Help:      "Total number of package discovery attempts",
		},
		[]string{"strategy", "status"},
	)

	// 检查服务自身的 HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🚚 Engine 传输指标记录
// =============================================================================

// RecordEngineRequest 记录 Engine 请求
func (c *Collector) RecordEngineRequest(method string, status int, duration time.Duration) {
	c.engineRequestsTotal.WithLabelValues(method, statusCode(status)).Inc()
	c.engineRequestDuration.WithLabelValues(method).Observe(duration.Seconds())

	c.mu.Lock()
	c.requestCount++
	c.latencies = append(c.latencies, duration)
	if len(c.latencies) > maxLatencySamples {
		c.latencies = c.latencies[len(c.latencies)-maxLatencySamples:]
	}
	c.mu.Unlock()
}

// RecordRetry 记录一次重试及其原因
func (c *Collector) RecordRetry(reason string) {
	c.engineRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordTokenRefresh 记录令牌刷新结果: success, failure, coalesced
func (c *Collector) RecordTokenRefresh(outcome string) {
	c.tokenRefreshesTotal.WithLabelValues(outcome).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔧 工具指标记录
// =============================================================================

// SetToolsCompiled 记录指定包编译出的工具数量
func (c *Collector) SetToolsCompiled(pkg string, count int) {
	c.toolsCompiled.WithLabelValues(pkg).Set(float64(count))
}

// RecordToolInvocation 记录工具调用
func (c *Collector) RecordToolInvocation(tool, status string, duration time.Duration) {
	c.toolInvocationsTotal.WithLabelValues(tool, status).Inc()
	c.toolInvocationDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordDiscovery 记录包发现尝试
func (c *Collector) RecordDiscovery(strategy, status string) {
	c.discoveryTotal.WithLabelValues(strategy, status).Inc()
}

// =============================================================================
// 🌐 HTTP 服务指标记录
// =============================================================================

// RecordHTTPRequest 记录检查服务处理的一次 HTTP 请求。
// path 应为归一化后的路由（如 /tools/:name），避免标签基数膨胀。
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🧾 最近错误缓冲
// =============================================================================

// RecordError 追加一条错误记录，超出容量时淘汰最旧记录
func (c *Collector) RecordError(errType, message string, context map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.errors = append(c.errors, ErrorRecord{
		Time:    time.Now(),
		Type:    errType,
		Message: message,
		Context: context,
	})
	if len(c.errors) > maxErrorRecords {
		c.errors = c.errors[len(c.errors)-maxErrorRecords:]
	}
}

// RecentErrors 返回最近错误记录的副本（从旧到新）
func (c *Collector) RecentErrors() []ErrorRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ErrorRecord, len(c.errors))
	copy(out, c.errors)
	return out
}

// Uptime 返回收集器启动以来的时长
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startedAt)
}

// Snapshot 返回运行状态快照：启动时长、请求计数、延迟采样
// 聚合与最近错误。延迟聚合基于最近 maxLatencySamples 次请求。
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		RequestCount:  c.requestCount,
		ErrorCount:    len(c.errors),
		RecentErrors:  make([]ErrorRecord, len(c.errors)),
	}
	copy(snap.RecentErrors, c.errors)

	if len(c.latencies) > 0 {
		var total, max time.Duration
		for _, d := range c.latencies {
			total += d
			if d > max {
				max = d
			}
		}
		avg := total / time.Duration(len(c.latencies))
		snap.AvgLatencyMs = float64(avg.Microseconds()) / 1000
		snap.MaxLatencyMs = float64(max.Microseconds()) / 1000
	}

	return snap
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
