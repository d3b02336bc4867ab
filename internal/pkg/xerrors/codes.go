// File: internal/pkg/xerrors/codes.go
package xerrors

import "net/http"

// ErrorCode 业务错误码
type ErrorCode int

// 错误码按段划分:
// 1xxxxx 通用 / 2xxxxx 认证 / 3xxxxx 权限 / 6xxxxx 业务 / 7xxxxx 外部依赖 / 8xxxxx 游戏
const (
	CodeSuccess           ErrorCode = 100000
	CodeInternalError     ErrorCode = 100001
	CodeInvalidParams     ErrorCode = 100002
	CodeInvalidRequest    ErrorCode = 100003
	CodeResourceNotFound  ErrorCode = 100404
	CodeDuplicateResource ErrorCode = 100409
	CodeRateLimitExceeded ErrorCode = 100429

	CodeAuthenticationFailed ErrorCode = 200001

	CodePermissionDenied ErrorCode = 300001

	CodeDataIntegrityError ErrorCode = 600002

	CodeDatabaseError ErrorCode = 700003
	CodeCacheError    ErrorCode = 700004

	CodeCharacterNotFound ErrorCode = 800001

	// 关卡与战斗会话 (83xxxx)
	CodeInvalidStage           ErrorCode = 830001
	CodeBattleSessionNotFound  ErrorCode = 830002
	CodeBattleSessionConsumed  ErrorCode = 830003
	CodeBattleSessionExpired   ErrorCode = 830004
	CodeBattleSessionCollision ErrorCode = 830005
	CodeBattleValidationFailed ErrorCode = 830006
)

// codeSpec 单个错误码的全部属性
type codeSpec struct {
	message   string
	status    int
	level     ErrorLevel
	category  string
	retryable bool
}

var codeSpecs = map[ErrorCode]codeSpec{
	CodeSuccess:           {"操作成功", http.StatusOK, LevelInfo, "system", false},
	CodeInternalError:     {"内部服务错误", http.StatusInternalServerError, LevelError, "system", true},
	CodeInvalidParams:     {"参数错误", http.StatusBadRequest, LevelWarn, "system", false},
	CodeInvalidRequest:    {"请求格式错误", http.StatusBadRequest, LevelWarn, "system", false},
	CodeResourceNotFound:  {"资源不存在", http.StatusNotFound, LevelWarn, "system", false},
	CodeDuplicateResource: {"资源已存在", http.StatusConflict, LevelWarn, "system", false},
	CodeRateLimitExceeded: {"请求频率限制", http.StatusTooManyRequests, LevelWarn, "system", true},

	CodeAuthenticationFailed: {"认证失败", http.StatusUnauthorized, LevelWarn, "authentication", false},
	CodePermissionDenied:     {"权限不足", http.StatusForbidden, LevelWarn, "authorization", false},

	CodeDataIntegrityError: {"数据完整性错误", http.StatusInternalServerError, LevelError, "business", false},

	CodeDatabaseError: {"数据库错误", http.StatusServiceUnavailable, LevelCritical, "external", true},
	CodeCacheError:    {"缓存服务错误", http.StatusServiceUnavailable, LevelCritical, "external", true},

	CodeCharacterNotFound: {"角色不存在", http.StatusNotFound, LevelWarn, "game", false},

	CodeInvalidStage:           {"关卡无效或尚未解锁", http.StatusBadRequest, LevelWarn, "battle", false},
	CodeBattleSessionNotFound:  {"战斗会话不存在", http.StatusNotFound, LevelWarn, "battle", false},
	CodeBattleSessionConsumed:  {"战斗会话已结算", http.StatusConflict, LevelWarn, "battle", false},
	CodeBattleSessionExpired:   {"战斗会话已过期", http.StatusGone, LevelWarn, "battle", false},
	CodeBattleSessionCollision: {"战斗会话创建失败", http.StatusServiceUnavailable, LevelError, "battle", true},
	CodeBattleValidationFailed: {"战斗结果无效", http.StatusUnprocessableEntity, LevelWarn, "battle", false},
}

func specOf(code ErrorCode) codeSpec {
	if s, ok := codeSpecs[code]; ok {
		return s
	}
	return codeSpec{"未知错误", http.StatusInternalServerError, LevelError, "unknown", false}
}

// Message 默认（中文）消息
func (c ErrorCode) Message() string {
	return specOf(c).message
}

// ToInt 用于 JSON 响应
func (c ErrorCode) ToInt() int {
	return int(c)
}

// GetHTTPStatus 业务错误码对应的 HTTP 状态码
func GetHTTPStatus(code ErrorCode) int {
	return specOf(code).status
}
