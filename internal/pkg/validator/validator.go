package validator

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// CustomValidator 供 echo.Context.Validate 使用
type CustomValidator struct {
	validator *validator.Validate
}

// Validate 失败时返回 CodeInvalidParams，metadata 中带 field 与 validation_message
func (cv *CustomValidator) Validate(i any) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}

	field := "request"
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		field = fieldErrs[0].Field()
	}
	return xerrors.NewValidationError(field, TranslateValidationError(err))
}

// New 启用 required 对嵌套结构体的校验
func New() echo.Validator {
	return &CustomValidator{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}
