// File: internal/pkg/i18n/error_messages.go
package i18n

import (
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// 以中文默认消息为 key 的英文翻译
var englishMessages = map[xerrors.ErrorCode]string{
	xerrors.CodeSuccess:           "Operation successful",
	xerrors.CodeInternalError:     "Internal server error",
	xerrors.CodeInvalidParams:     "Invalid parameters",
	xerrors.CodeInvalidRequest:    "Invalid request format",
	xerrors.CodeResourceNotFound:  "Resource not found",
	xerrors.CodeDuplicateResource: "Resource already exists",
	xerrors.CodeRateLimitExceeded: "Rate limit exceeded",

	xerrors.CodeAuthenticationFailed: "Authentication failed",
	xerrors.CodePermissionDenied:     "Permission denied",

	xerrors.CodeDataIntegrityError: "Data integrity error",
	xerrors.CodeDatabaseError:      "Database error",
	xerrors.CodeCacheError:         "Cache service error",

	xerrors.CodeCharacterNotFound:      "Character not found",
	xerrors.CodeInvalidStage:           "Stage is invalid or locked",
	xerrors.CodeBattleSessionNotFound:  "Battle session not found",
	xerrors.CodeBattleSessionConsumed:  "Battle session already completed",
	xerrors.CodeBattleSessionExpired:   "Battle session expired",
	xerrors.CodeBattleSessionCollision: "Could not start battle session",
	xerrors.CodeBattleValidationFailed: "Battle result rejected",
}

var messages = newCatalog()

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(DefaultLanguage))
	for code, en := range englishMessages {
		_ = b.SetString(language.Chinese, code.Message(), code.Message())
		_ = b.SetString(language.English, code.Message(), en)
	}
	return b
}

// GetErrorMessage 错误码在指定语言下的消息，缺少翻译时回退中文
func GetErrorMessage(code xerrors.ErrorCode, lang language.Tag) string {
	p := message.NewPrinter(lang, message.Catalog(messages))
	return p.Sprintf(code.Message())
}
