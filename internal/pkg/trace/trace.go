// File: internal/pkg/trace/trace.go
package trace

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/ctxkey"
)

// HeaderTraceID 请求与响应中携带 trace ID 的头
const HeaderTraceID = "X-Trace-Id"

// 客户端传入的 trace ID 超过该长度时丢弃重新生成
const maxTraceIDLen = 64

// WithTraceID 在 context 中设置 trace ID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return ctxkey.WithValue(ctx, ctxkey.TraceID, traceID)
}

// GetTraceID 从 context 中获取 trace ID
func GetTraceID(ctx context.Context) string {
	return ctxkey.GetString(ctx, ctxkey.TraceID)
}

// GenerateTraceID 32 位十六进制
func GenerateTraceID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// FromHeader 依次尝试 X-Trace-Id / X-Request-Id / W3C traceparent，均无效时生成新的
func FromHeader(headers http.Header) string {
	for _, candidate := range []string{
		headers.Get(HeaderTraceID),
		headers.Get(echo.HeaderXRequestID),
		parseTraceparent(headers.Get("Traceparent")),
	} {
		if valid(candidate) {
			return candidate
		}
	}
	return GenerateTraceID()
}

func valid(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for _, r := range id {
		if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// parseTraceparent 格式: "00-<trace-id>-<parent-id>-<flags>"
func parseTraceparent(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return ""
	}
	return parts[1]
}

// Middleware 提取或生成 trace ID，写入 context 并回写响应头
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			traceID := FromHeader(c.Request().Header)
			c.SetRequest(c.Request().WithContext(WithTraceID(c.Request().Context(), traceID)))
			c.Response().Header().Set(HeaderTraceID, traceID)
			return next(c)
		}
	}
}
