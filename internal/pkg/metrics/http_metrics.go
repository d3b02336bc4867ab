// File: internal/pkg/metrics/http_metrics.go
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/ctxkey"
)

// HTTPMetrics 按路由模板统计的请求指标
type HTTPMetrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RequestsInProgress *prometheus.GaugeVec
}

// DefaultHTTPMetrics 注册在默认注册表上的实例
var DefaultHTTPMetrics = NewHTTPMetricsWithRegistry(Namespace, prometheus.DefaultRegisterer)

// HTTPBuckets p95 目标 200ms，完成提交包含一次结算事务，上限放宽到 5s
var HTTPBuckets = []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2, 5}

// 不计入请求指标的探活路径
var unmeteredPaths = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
}

// NewHTTPMetricsWithRegistry 使用指定注册表创建
func NewHTTPMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(registerer)
	return &HTTPMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by service, route template, method and status code",
		}, []string{"service", "route", "method", "status_code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by service and route template",
			Buckets:   HTTPBuckets,
		}, []string{"service", "route"}),
		RequestsInProgress: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_progress",
			Help:      "HTTP requests currently being served",
		}, []string{"service"}),
	}
}

// RecordRequest route 必须是路由模板（如 /characters/:character_id/chapters）
func (m *HTTPMetrics) RecordRequest(service, route, method string, statusCode int, duration time.Duration) {
	service = normalizeServiceName(service)
	if route == "" {
		route = "unknown"
	}
	m.RequestsTotal.WithLabelValues(service, route, method, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(service, route).Observe(duration.Seconds())
}

// Middleware 使用默认实例的请求指标中间件
func Middleware() echo.MiddlewareFunc {
	return MiddlewareWithMetrics(DefaultHTTPMetrics)
}

// MiddlewareWithMetrics 记录请求指标，并把 HTTP 方法写入 context
func MiddlewareWithMetrics(m *HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(ctxkey.WithValue(req.Context(), ctxkey.HTTPMethod, req.Method)))

			if _, skip := unmeteredPaths[req.URL.Path]; skip {
				return next(c)
			}

			service := GetServiceName()
			inProgress := m.RequestsInProgress.WithLabelValues(service)
			inProgress.Inc()
			defer inProgress.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) && !c.Response().Committed {
				status = he.Code
			}
			m.RecordRequest(service, c.Path(), req.Method, status, time.Since(start))
			return err
		}
	}
}

// EchoHandler /metrics 端点
func EchoHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
