// File: internal/pkg/ctxkey/ctxkey.go
package ctxkey

import "context"

// ContextKey 请求链路上共享的 context key，字符串值同时用作日志字段名
type ContextKey string

const (
	Language    ContextKey = "language"
	TraceID     ContextKey = "trace_id"
	HTTPMethod  ContextKey = "http_method"
	UserID      ContextKey = "user_id"      // 认证中间件写入
	CharacterID ContextKey = "character_id" // 关卡路由写入
)

// WithValue 在 context 中设置指定 key 的值
func WithValue(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// Get 按类型取值，不存在或类型不符时返回零值和 false
func Get[T any](ctx context.Context, key ContextKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// GetString 字符串值，不存在时返回空串
func GetString(ctx context.Context, key ContextKey) string {
	v, _ := Get[string](ctx, key)
	return v
}
