package response

import (
	"github.com/labstack/echo/v4"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// EchoOK 写入成功信封
func EchoOK[T any](c echo.Context, h Writer, data T) error {
	return h.WriteSuccess(c.Request().Context(), c.Response(), data)
}

// EchoError 写入错误信封，非 AppError 按内部错误处理
func EchoError(c echo.Context, h Writer, err error) error {
	return h.WriteError(c.Request().Context(), c.Response(), err)
}

// EchoBadRequest 参数绑定失败
func EchoBadRequest(c echo.Context, h Writer, message string) error {
	return EchoError(c, h, xerrors.NewValidationError("request", message))
}

// EchoBattleRejected 结算被拒，不向客户端透露具体原因
func EchoBattleRejected(c echo.Context, h Writer) error {
	return EchoError(c, h, xerrors.FromCode(xerrors.CodeBattleValidationFailed))
}
