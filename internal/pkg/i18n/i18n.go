// File: internal/pkg/i18n/i18n.go
package i18n

import (
	"context"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/ctxkey"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"
)

// DefaultLanguage 未协商出语言时使用中文
var DefaultLanguage = language.Chinese

var matcher = language.NewMatcher([]language.Tag{
	language.Chinese,
	language.English,
})

// WithLanguage 在 context 中设置语言偏好
func WithLanguage(ctx context.Context, lang language.Tag) context.Context {
	return ctxkey.WithValue(ctx, ctxkey.Language, lang)
}

// GetLanguage 从 context 中获取语言偏好
func GetLanguage(ctx context.Context) language.Tag {
	if lang, ok := ctxkey.Get[language.Tag](ctx, ctxkey.Language); ok {
		return lang
	}
	return DefaultLanguage
}

// Negotiate ?lang= 优先，其次 Accept-Language（如 "en-US,en;q=0.9,zh;q=0.8"）
func Negotiate(queryLang, acceptLanguage string) language.Tag {
	if queryLang != "" {
		if tag, err := language.Parse(queryLang); err == nil {
			return match(tag)
		}
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	return match(tags...)
}

func match(tags ...language.Tag) language.Tag {
	_, index, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLanguage
	}
	if index == 1 {
		return language.English
	}
	return language.Chinese
}

// Middleware 把协商出的语言写入请求 context
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			lang := Negotiate(c.QueryParam("lang"), req.Header.Get("Accept-Language"))
			c.SetRequest(req.WithContext(WithLanguage(req.Context(), lang)))
			return next(c)
		}
	}
}
