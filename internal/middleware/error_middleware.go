package middleware

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/response"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// echo 框架错误状态码到业务码，未登记的按内部错误
var echoStatusCodes = map[int]xerrors.ErrorCode{
	400: xerrors.CodeInvalidParams,
	401: xerrors.CodeAuthenticationFailed,
	403: xerrors.CodePermissionDenied,
	404: xerrors.CodeResourceNotFound,
	405: xerrors.CodeResourceNotFound,
	409: xerrors.CodeDuplicateResource,
	413: xerrors.CodeInvalidRequest,
	429: xerrors.CodeRateLimitExceeded,
}

// ErrorMiddleware 把 handler 返回的错误统一写成响应信封
func ErrorMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil || c.Response().Committed {
				return err
			}
			ctx := c.Request().Context()
			return respWriter.WriteError(ctx, c.Response(), toAppError(err, func() {
				logger.ErrorContext(ctx, "未处理的错误",
					log.Any("original_error", err),
					log.String("error_type", fmt.Sprintf("%T", err)),
				)
			}))
		}
	}
}

func toAppError(err error, onUnknown func()) *xerrors.AppError {
	var appErr *xerrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return convertEchoError(httpErr)
	}
	onUnknown()
	return xerrors.NewWithError(xerrors.CodeInternalError, "系统内部错误", err).
		WithService("echo-middleware", "error_handler")
}

func convertEchoError(echoErr *echo.HTTPError) *xerrors.AppError {
	code, ok := echoStatusCodes[echoErr.Code]
	appErr := xerrors.FromCode(xerrors.CodeInternalError)
	if ok {
		appErr = xerrors.FromCode(code)
	} else {
		appErr.WithMetadata("echo_code", strconv.Itoa(echoErr.Code))
	}
	return appErr.WithMetadata("echo_message", fmt.Sprint(echoErr.Message))
}
