package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/trace"
)

// JSON API 没有页面内容，CSP 全部拒绝
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// CORSMiddleware CORS 中间件；allowOrigins 为空时允许所有来源
func CORSMiddleware(allowOrigins []string) echo.MiddlewareFunc {
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderXRequestID,
			UserIDHeader,
			trace.HeaderTraceID,
		},
		ExposeHeaders: []string{trace.HeaderTraceID},
		MaxAge:        600,
	})
}

// SecurityHeadersMiddleware 安全响应头，不再下发已废弃的 X-XSS-Protection
func SecurityHeadersMiddleware() echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            365 * 24 * 3600,
		ContentSecurityPolicy: apiContentSecurityPolicy,
		ReferrerPolicy:        "no-referrer",
	})
}
