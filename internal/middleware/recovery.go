package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/response"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

const recoveryStackSize = 4 << 10

// RecoveryMiddleware 捕获 panic，记录堆栈后返回 CodeInternalError
func RecoveryMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize:       recoveryStackSize,
		DisableStackAll: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			ctx := c.Request().Context()
			logger.ErrorContext(ctx, "应用程序 panic",
				log.String("panic_value", err.Error()),
				log.String("path", c.Request().URL.Path),
				log.String("method", c.Request().Method),
				log.String("stack", string(stack)),
			)
			if c.Response().Committed {
				return nil
			}
			appErr := xerrors.FromCode(xerrors.CodeInternalError).
				WithService("echo-middleware", "recovery").
				WithMetadata("panic_value", fmt.Sprint(err))
			return respWriter.WriteError(ctx, c.Response(), appErr)
		},
	})
}
