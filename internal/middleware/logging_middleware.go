package middleware

import (
	"bytes"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/ctxkey"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
)

// LoggingConfig 请求日志配置
type LoggingConfig struct {
	// SkipPaths 以这些前缀开头的路径不记录
	SkipPaths []string

	// DetailedLog 请求进入时额外输出一条 Debug 日志（查询串、请求头、请求体）
	DetailedLog bool

	// LogRequestBody 仅在 DetailedLog 下生效；路径以 BodySkipSuffixes 结尾的请求（战斗日志）始终不记录
	LogRequestBody   bool
	BodySkipSuffixes []string
	MaxBodySize      int64

	// SensitiveHeaders 输出时脱敏
	SensitiveHeaders []string
}

// DefaultLoggingConfig 默认日志配置
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths:        []string{"/health", "/metrics", "/favicon.ico"},
		BodySkipSuffixes: []string{"/stages/complete"},
		MaxBodySize:      10 * 1024,
		SensitiveHeaders: []string{"Authorization", "Cookie", "X-Api-Key"},
	}
}

// LoggingMiddleware 使用默认配置
func LoggingMiddleware(logger log.Logger) echo.MiddlewareFunc {
	return LoggingMiddlewareWithConfig(logger, DefaultLoggingConfig())
}

// LoggingMiddlewareWithConfig 基于 echo RequestLogger，按状态码选择日志级别
func LoggingMiddlewareWithConfig(logger log.Logger, config *LoggingConfig) echo.MiddlewareFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return hasAnyPrefix(c.Request().URL.Path, config.SkipPaths)
		},
		BeforeNextFunc: func(c echo.Context) {
			if config.DetailedLog {
				logger.DebugContext(c.Request().Context(), "请求开始", requestDetail(c, config)...)
			}
		},
		LogMethod:       true,
		LogURIPath:      true,
		LogStatus:       true,
		LogLatency:      true,
		LogRemoteIP:     true,
		LogResponseSize: true,
		LogError:        true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ctx := c.Request().Context()
			fields := []any{
				log.String("method", v.Method),
				log.String("path", v.URIPath),
				log.String("route", c.Path()),
				log.Int("status_code", v.Status),
				log.Duration("duration", v.Latency.Milliseconds()),
				log.Int64("response_size", v.ResponseSize),
				log.String("client_ip", v.RemoteIP),
			}
			if userID := ctxkey.GetString(ctx, ctxkey.UserID); userID != "" {
				fields = append(fields, log.String("user_id", userID))
			}

			switch {
			case v.Error != nil:
				fields = append(fields, log.Any("error", v.Error))
				logger.ErrorContext(ctx, "请求处理出错", fields...)
			case v.Status >= 500:
				logger.ErrorContext(ctx, "请求完成（服务器错误）", fields...)
			case v.Status >= 400:
				logger.WarnContext(ctx, "请求完成（客户端错误）", fields...)
			default:
				logger.InfoContext(ctx, "请求完成", fields...)
			}
			return nil
		},
	})
}

func requestDetail(c echo.Context, config *LoggingConfig) []any {
	req := c.Request()
	fields := []any{
		log.String("method", req.Method),
		log.String("path", req.URL.Path),
		log.String("user_agent", req.UserAgent()),
	}
	if req.URL.RawQuery != "" {
		fields = append(fields, log.String("query", req.URL.RawQuery))
	}
	if headers := sanitizeHeaders(req.Header, config.SensitiveHeaders); len(headers) > 0 {
		fields = append(fields, log.Any("headers", headers))
	}
	if config.LogRequestBody && !hasAnySuffix(req.URL.Path, config.BodySkipSuffixes) {
		if body := peekBody(c, config.MaxBodySize); body != "" {
			fields = append(fields, log.String("request_body", body))
		}
	}
	return fields
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func hasAnySuffix(path string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

func sanitizeHeaders(headers map[string][]string, sensitive []string) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) == 0 {
			continue
		}
		result[k] = v[0]
		for _, s := range sensitive {
			if strings.EqualFold(k, s) {
				result[k] = "***REDACTED***"
				break
			}
		}
	}
	return result
}

// peekBody 读取至多 maxSize 字节用于日志，后续处理器仍能读到完整请求体
func peekBody(c echo.Context, maxSize int64) string {
	req := c.Request()
	if req.Body == nil || maxSize <= 0 {
		return ""
	}

	head, err := io.ReadAll(io.LimitReader(req.Body, maxSize))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), req.Body), req.Body}
	if err != nil {
		return ""
	}

	body := string(head)
	if int64(len(head)) >= maxSize {
		body += "... (truncated)"
	}
	return body
}
