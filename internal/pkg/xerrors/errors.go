// File: internal/pkg/xerrors/errors.go
package xerrors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
)

// ErrorLevel 决定错误被记录的日志级别
type ErrorLevel int

const (
	LevelInfo ErrorLevel = iota
	LevelWarn
	LevelError
	LevelCritical
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// AppError 领域错误，携带错误码与结构化元数据
type AppError struct {
	Code      ErrorCode
	Message   string
	Err       error
	Level     ErrorLevel
	Category  string
	Retryable bool

	// Source / Operation 标记错误的产生位置（如 "echo-middleware" / "recovery"）
	Source    string
	Operation string
	// Caller 只在包装底层错误时记录
	Caller string

	meta map[string]any
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// LogValue 实现 slog.LogValuer，元数据按 key 排序输出
func (e *AppError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("code", int(e.Code)),
		slog.String("message", e.Message),
		slog.String("level", e.Level.String()),
		slog.String("category", e.Category),
		slog.Bool("retryable", e.Retryable),
	}
	if e.Source != "" {
		attrs = append(attrs, slog.String("source", e.Source), slog.String("operation", e.Operation))
	}
	if e.Caller != "" {
		attrs = append(attrs, slog.String("caller", e.Caller))
	}

	keys := make([]string, 0, len(e.meta))
	for k := range e.meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any("meta."+k, e.meta[k]))
	}

	if e.Err != nil {
		attrs = append(attrs, slog.Any("underlying_error", e.Err))
	}
	return slog.GroupValue(attrs...)
}

// WithService 标记产生错误的组件和操作
func (e *AppError) WithService(source, operation string) *AppError {
	e.Source = source
	e.Operation = operation
	return e
}

// WithMetadata 添加元数据
func (e *AppError) WithMetadata(key string, value any) *AppError {
	if e.meta == nil {
		e.meta = make(map[string]any)
	}
	e.meta[key] = value
	return e
}

// Metadata 读取元数据，不存在时返回 nil
func (e *AppError) Metadata(key string) any {
	return e.meta[key]
}

// New 使用自定义消息创建 AppError
func New(code ErrorCode, message string) *AppError {
	s := specOf(code)
	return &AppError{
		Code:      code,
		Message:   message,
		Level:     s.level,
		Category:  s.category,
		Retryable: s.retryable,
	}
}

// FromCode 使用错误码的默认消息
func FromCode(code ErrorCode) *AppError {
	return New(code, code.Message())
}

// NewWithError 包装底层错误并记录调用位置
func NewWithError(code ErrorCode, message string, err error) *AppError {
	appErr := New(code, message)
	appErr.Err = err
	if _, file, line, ok := runtime.Caller(1); ok {
		appErr.Caller = fmt.Sprintf("%s:%d", file, line)
	}
	return appErr
}

// Wrap 已经是 AppError 时原样返回
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewWithError(code, message, err)
}

// IsCode 错误链上是否存在指定错误码的 AppError
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func NewValidationError(field, message string) *AppError {
	return FromCode(CodeInvalidParams).
		WithMetadata("field", field).
		WithMetadata("validation_message", message)
}

func NewAuthError(message string) *AppError {
	return FromCode(CodeAuthenticationFailed).
		WithMetadata("auth_message", message)
}

func NewPermissionError(resource, action string) *AppError {
	return FromCode(CodePermissionDenied).
		WithMetadata("resource", resource).
		WithMetadata("action", action)
}

func NewDatabaseError(operation, table string, err error) *AppError {
	appErr := FromCode(CodeDatabaseError).
		WithMetadata("db_operation", operation).
		WithMetadata("table", table)
	appErr.Err = err
	return appErr
}

func NewCacheError(operation string, err error) *AppError {
	appErr := FromCode(CodeCacheError).
		WithMetadata("cache_operation", operation)
	appErr.Err = err
	return appErr
}

func NewCharacterNotFoundError(characterID string) *AppError {
	return FromCode(CodeCharacterNotFound).
		WithMetadata("character_id", characterID)
}

// NewInvalidStageError reason 取值: out_of_range / locked
func NewInvalidStageError(chapter, stage int, reason string) *AppError {
	return FromCode(CodeInvalidStage).
		WithMetadata("chapter", chapter).
		WithMetadata("stage", stage).
		WithMetadata("reason", reason)
}

// NewBattleSessionError 会话类错误，token 只记录指纹
func NewBattleSessionError(code ErrorCode, tokenFingerprint string) *AppError {
	return FromCode(code).
		WithMetadata("session", tokenFingerprint)
}
