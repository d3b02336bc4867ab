// File: internal/pkg/metrics/resource_metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResourceMetrics 角色存储连接池与会话存储 (Redis) 指标
type ResourceMetrics struct {
	DBConnections    *prometheus.GaugeVec
	DBMaxConnections *prometheus.GaugeVec
	// sql.DBStats 的等待次数与时长是累计值，按 gauge 上报
	DBWaitCount    *prometheus.GaugeVec
	DBWaitDuration *prometheus.GaugeVec

	RedisOperations        *prometheus.CounterVec
	RedisOperationDuration *prometheus.HistogramVec
	RedisConnectionPool    *prometheus.GaugeVec
	RedisErrors            *prometheus.CounterVec
}

// DefaultResourceMetrics 注册在默认注册表上的实例
var DefaultResourceMetrics = NewResourceMetricsWithRegistry(Namespace, prometheus.DefaultRegisterer)

// RedisOperationBuckets 会话脚本通常在毫秒内完成，单位秒
var RedisOperationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// NewResourceMetricsWithRegistry 使用指定注册表创建
func NewResourceMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *ResourceMetrics {
	factory := promauto.With(registerer)
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}

	return &ResourceMetrics{
		DBConnections: gauge("db", "connections",
			"Database connections by state (open/in_use/idle)", "service", "database", "state"),
		DBMaxConnections: gauge("db", "max_connections",
			"Configured connection pool limit", "service", "database"),
		DBWaitCount: gauge("db", "wait_count",
			"Cumulative number of connections waited for", "service", "database"),
		DBWaitDuration: gauge("db", "wait_duration_seconds",
			"Cumulative time blocked waiting for a connection", "service", "database"),

		RedisOperations: counter("redis", "operations_total",
			"Redis operations by command and result", "operation", "result", "service"),
		RedisOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Redis operation latency by command",
			Buckets:   RedisOperationBuckets,
		}, []string{"operation", "service"}),
		RedisConnectionPool: gauge("redis", "connection_pool",
			"Redis pool connections by state (total/idle/stale/active)", "state", "service"),
		RedisErrors: counter("redis", "errors_total",
			"Redis errors by type", "error_type", "service"),
	}
}

// RecordDBPoolStats 记录数据库连接池统计信息
func (m *ResourceMetrics) RecordDBPoolStats(
	service string,
	database string,
	openConnections, inUse, idle int,
	maxOpen int,
	waitCount int64,
	waitDuration time.Duration,
) {
	service = normalizeServiceName(service)
	m.DBConnections.WithLabelValues(service, database, "open").Set(float64(openConnections))
	m.DBConnections.WithLabelValues(service, database, "in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues(service, database, "idle").Set(float64(idle))
	m.DBMaxConnections.WithLabelValues(service, database).Set(float64(maxOpen))
	m.DBWaitCount.WithLabelValues(service, database).Set(float64(waitCount))
	m.DBWaitDuration.WithLabelValues(service, database).Set(waitDuration.Seconds())
}

// RecordRedisOperation 记录 Redis 操作指标, operation 如 "EVALSHA" / "HGET"
func (m *ResourceMetrics) RecordRedisOperation(operation string, success bool, duration time.Duration, service string) {
	service = normalizeServiceName(service)
	result := "success"
	if !success {
		result = "error"
	}

	m.RedisOperations.WithLabelValues(operation, result, service).Inc()
	m.RedisOperationDuration.WithLabelValues(operation, service).Observe(duration.Seconds())
}

// RecordRedisError 记录 Redis 错误, errorType 如 "timeout" / "connection_error"
func (m *ResourceMetrics) RecordRedisError(errorType, service string) {
	m.RedisErrors.WithLabelValues(errorType, normalizeServiceName(service)).Inc()
}

// RecordRedisPoolStats 记录 Redis 连接池统计信息
func (m *ResourceMetrics) RecordRedisPoolStats(totalConns, idleConns, staleConns int, service string) {
	service = normalizeServiceName(service)
	m.RedisConnectionPool.WithLabelValues("total", service).Set(float64(totalConns))
	m.RedisConnectionPool.WithLabelValues("idle", service).Set(float64(idleConns))
	m.RedisConnectionPool.WithLabelValues("stale", service).Set(float64(staleConns))
	m.RedisConnectionPool.WithLabelValues("active", service).Set(float64(totalConns - idleConns))
}
