package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/ctxkey"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// Logger 业务代码使用的日志接口，Error 单独接收 err
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, err error, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
}

// StructuredLogger 嵌入 *slog.Logger，只覆盖 Error 与 With
type StructuredLogger struct {
	*slog.Logger
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// New 创建写入 w 的 logger；生产环境输出 JSON，其余环境输出带源码位置的文本
func New(w io.Writer, level slog.Level, environment string) Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if environment == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.AddSource = true
		handler = slog.NewTextHandler(w, opts)
	}
	return &StructuredLogger{Logger: slog.New(&ContextHandler{next: handler})}
}

// Init 初始化全局 logger 并接管 slog 默认输出
func Init(level slog.Level, environment string) {
	l := New(os.Stdout, level, environment).(*StructuredLogger)
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
	slog.SetDefault(l.Logger)
}

// ParseLevel 解析 LOG_LEVEL，无法识别时返回 Info
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// GetLogger 未 Init 时按开发环境默认值初始化
func GetLogger() Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	Init(slog.LevelInfo, "development")
	return GetLogger()
}

// Discard 丢弃所有输出，测试用
func Discard() Logger {
	return &StructuredLogger{Logger: slog.New(slog.DiscardHandler)}
}

// Error 把 err 作为 error 字段附加
func (l *StructuredLogger) Error(msg string, err error, args ...any) {
	l.Logger.Error(msg, append(args, slog.Any("error", err))...)
}

// With 返回带固定字段的子 logger
func (l *StructuredLogger) With(args ...any) Logger {
	return &StructuredLogger{Logger: l.Logger.With(args...)}
}

// ContextHandler 从 ctx 读取请求标识追加到每条记录
type ContextHandler struct {
	next slog.Handler
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		for _, key := range []ctxkey.ContextKey{ctxkey.TraceID, ctxkey.UserID, ctxkey.CharacterID} {
			if v := ctxkey.GetString(ctx, key); v != "" {
				r.AddAttrs(slog.String(string(key), v))
			}
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}

// LogAppError 按 AppError 级别记录，利用其 LogValue 方法
func LogAppError(ctx context.Context, logger Logger, msg string, appErr *xerrors.AppError) {
	switch appErr.Level {
	case xerrors.LevelCritical, xerrors.LevelError:
		logger.ErrorContext(ctx, msg, slog.Any("app_error", appErr))
	case xerrors.LevelWarn:
		logger.WarnContext(ctx, msg, slog.Any("app_error", appErr))
	default:
		logger.InfoContext(ctx, msg, slog.Any("app_error", appErr))
	}
}

// LogBattleEvent 记录战斗业务事件（发放、结算），event 作为独立字段便于检索
func LogBattleEvent(ctx context.Context, logger Logger, event, characterID string, args ...any) {
	args = append([]any{
		slog.String("event", event),
		slog.String("character_id", characterID),
	}, args...)
	logger.InfoContext(ctx, "battle event", args...)
}

// 以下属性构造函数让调用方不必直接引入 slog

func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

func Int(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

func Int64(key string, value int64) slog.Attr {
	return slog.Int64(key, value)
}

func Float64(key string, value float64) slog.Attr {
	return slog.Float64(key, value)
}

func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

func Any(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Duration 键名追加 _ms 后缀
func Duration(key string, durationMs int64) slog.Attr {
	return slog.Int64(key+"_ms", durationMs)
}
