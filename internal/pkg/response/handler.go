package response

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/i18n"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/trace"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// Writer 统一响应写入接口
type Writer interface {
	WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error
	WriteError(ctx context.Context, w http.ResponseWriter, err error) error
	WriteJSON(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error
}

// ResponseHandler Writer 的默认实现
//
// 错误消息按请求语言本地化。5xx 只返回通用消息；战斗结果被拒绝时不返回任何细节。
type ResponseHandler struct {
	logger      log.Logger
	environment string
}

// NewResponseHandler 创建响应处理器
func NewResponseHandler(logger log.Logger, environment string) *ResponseHandler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &ResponseHandler{logger: logger, environment: environment}
}

// WriteSuccess 写入成功响应
func (h *ResponseHandler) WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error {
	resp := Success(data)
	resp.TraceID = trace.GetTraceID(ctx)
	resp.Message = i18n.GetErrorMessage(xerrors.CodeSuccess, i18n.GetLanguage(ctx))
	return writeJSON(w, http.StatusOK, resp)
}

// WriteError 写入错误响应
func (h *ResponseHandler) WriteError(ctx context.Context, w http.ResponseWriter, err error) error {
	var appErr *xerrors.AppError
	if !errors.As(err, &appErr) {
		appErr = xerrors.NewWithError(xerrors.CodeInternalError, "未分类错误", err)
	}

	status := xerrors.GetHTTPStatus(appErr.Code)
	if status >= http.StatusInternalServerError {
		log.LogAppError(ctx, h.logger, "request failed", appErr)
	} else {
		h.logger.DebugContext(ctx, "request rejected",
			log.Int("code", appErr.Code.ToInt()),
			log.Int("status", status))
	}

	resp := Failure(appErr.Code, i18n.GetErrorMessage(appErr.Code, i18n.GetLanguage(ctx)), h.clientDetail(appErr, status))
	resp.TraceID = trace.GetTraceID(ctx)
	return writeJSON(w, status, resp)
}

// WriteJSON 不套信封，供 /health 这类探针使用
func (h *ResponseHandler) WriteJSON(_ context.Context, w http.ResponseWriter, data any, statusCode int) error {
	return writeJSON(w, statusCode, data)
}

// clientDetail 只有参数类错误会带回字段级提示
func (h *ResponseHandler) clientDetail(appErr *xerrors.AppError, status int) string {
	if status >= http.StatusInternalServerError || appErr.Code == xerrors.CodeBattleValidationFailed {
		return ""
	}
	if msg, ok := appErr.Metadata("validation_message").(string); ok && msg != "" {
		return msg
	}
	if h.environment == "production" {
		return ""
	}
	if reason, ok := appErr.Metadata("reason").(string); ok && reason != "" {
		return reason
	}
	if msg := appErr.Metadata("echo_message"); msg != nil {
		return fmt.Sprint(msg)
	}
	return ""
}
