package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// Response 所有 /api/v1 接口共用的信封
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"` // 仅客户端错误
	Timestamp int64  `json:"timestamp"`
	TraceID   string `json:"trace_id,omitempty"`
}

func envelope(code xerrors.ErrorCode, message string) *Response {
	return &Response{Code: code.ToInt(), Message: message, Timestamp: time.Now().Unix()}
}

// Success 成功信封
func Success(data any) *Response {
	resp := envelope(xerrors.CodeSuccess, xerrors.CodeSuccess.Message())
	resp.Data = data
	return resp
}

// Failure 错误信封，detail 为空时不输出 error 字段
func Failure(code xerrors.ErrorCode, message, detail string) *Response {
	resp := envelope(code, message)
	resp.Error = detail
	return resp
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(body)
}
