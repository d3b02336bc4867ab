package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/response"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// RateLimitMiddleware 全局限流中间件，按客户端 IP 计数
func RateLimitMiddleware(perSecond float64) echo.MiddlewareFunc {
	config := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(perSecond)),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return xerrors.FromCode(xerrors.CodeInternalError).
				WithService("echo-middleware", "rate_limiter")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return xerrors.FromCode(xerrors.CodeRateLimitExceeded).
				WithService("echo-middleware", "rate_limiter").
				WithMetadata("client_ip", identifier)
		},
	}

	return middleware.RateLimiterWithConfig(config)
}

// CompletionRateLimit 战斗结算提交限流: 每个 IP 每分钟 limit 次
func CompletionRateLimit(limit int, respWriter response.Writer) echo.MiddlewareFunc {
	limiter := httprate.Limit(
		limit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP, keyByUserID),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			_ = respWriter.WriteError(r.Context(), w, xerrors.FromCode(xerrors.CodeRateLimitExceeded).
				WithService("echo-middleware", "completion_limiter"))
		}),
	)
	return echo.WrapMiddleware(limiter)
}

func keyByUserID(r *http.Request) (string, error) {
	return r.Header.Get(UserIDHeader), nil
}
