package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/ctxkey"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/response"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// UserIDHeader 网关认证通过后注入的用户标识
const UserIDHeader = "X-User-ID"

// AuthMiddleware 信任网关注入的 X-User-ID，缺失时返回 401
func AuthMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			userID := req.Header.Get(UserIDHeader)
			if userID == "" {
				logger.WarnContext(req.Context(), "认证失败: 缺少 X-User-ID header",
					log.String("path", req.URL.Path))
				return response.EchoError(c, respWriter,
					xerrors.NewAuthError("未授权访问: 缺少用户身份信息").WithService("middleware", "auth"))
			}

			c.SetRequest(req.WithContext(ctxkey.WithValue(req.Context(), ctxkey.UserID, userID)))
			c.Set(string(ctxkey.UserID), userID)
			return next(c)
		}
	}
}

// GetCurrentUserID 读取 AuthMiddleware 写入的用户 ID
func GetCurrentUserID(c echo.Context) (string, error) {
	if userID, ok := c.Get(string(ctxkey.UserID)).(string); ok && userID != "" {
		return userID, nil
	}
	return "", xerrors.NewAuthError("未找到用户信息")
}
