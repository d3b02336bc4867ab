package xerrors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeInvalidParams:          http.StatusBadRequest,
		CodeAuthenticationFailed:   http.StatusUnauthorized,
		CodePermissionDenied:       http.StatusForbidden,
		CodeCharacterNotFound:      http.StatusNotFound,
		CodeBattleSessionNotFound:  http.StatusNotFound,
		CodeBattleSessionConsumed:  http.StatusConflict,
		CodeBattleSessionExpired:   http.StatusGone,
		CodeBattleValidationFailed: http.StatusUnprocessableEntity,
		CodeDatabaseError:          http.StatusServiceUnavailable,
		CodeRateLimitExceeded:      http.StatusTooManyRequests,
		ErrorCode(999999):          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, GetHTTPStatus(code), "code %d", code)
	}
}

func TestFromCodeUsesDefaults(t *testing.T) {
	err := FromCode(CodeBattleSessionExpired)

	assert.Equal(t, "战斗会话已过期", err.Message)
	assert.Equal(t, LevelWarn, err.Level)
	assert.Equal(t, "battle", err.Category)
	assert.False(t, err.Retryable)

	unknown := FromCode(ErrorCode(42))
	assert.Equal(t, "未知错误", unknown.Message)
}

func TestWrapKeepsExistingAppError(t *testing.T) {
	inner := NewCharacterNotFoundError("c1")
	wrapped := fmt.Errorf("load: %w", inner)

	assert.Same(t, inner, Wrap(wrapped, CodeInternalError, "x"))
	assert.Nil(t, Wrap(nil, CodeInternalError, "x"))

	plain := Wrap(errors.New("boom"), CodeDatabaseError, "db")
	require.NotNil(t, plain)
	assert.Equal(t, CodeDatabaseError, plain.Code)
	assert.NotEmpty(t, plain.Caller)
	assert.EqualError(t, plain, "[700003] db: boom")
}

func TestIsCodeWalksChain(t *testing.T) {
	err := fmt.Errorf("claim: %w", NewBattleSessionError(CodeBattleSessionConsumed, "abcd"))

	assert.True(t, IsCode(err, CodeBattleSessionConsumed))
	assert.False(t, IsCode(err, CodeBattleSessionExpired))
	assert.False(t, IsCode(errors.New("plain"), CodeInternalError))
	assert.False(t, IsCode(nil, CodeInternalError))
}

func TestLogValueIncludesMetadata(t *testing.T) {
	err := NewInvalidStageError(2, 3, "locked").WithService("game", "issue_stage")

	attrs := map[string]slog.Value{}
	for _, a := range err.LogValue().Group() {
		attrs[a.Key] = a.Value
	}

	assert.Equal(t, int64(CodeInvalidStage), attrs["code"].Int64())
	assert.Equal(t, "locked", attrs["meta.reason"].String())
	assert.Equal(t, "issue_stage", attrs["operation"].String())
	assert.Equal(t, "locked", err.Metadata("reason"))
	assert.Nil(t, err.Metadata("missing"))
}
