package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

type stageQuery struct {
	CharacterID string `validate:"required"`
	Chapter     int    `validate:"min=1,max=20"`
	Stage       int    `validate:"min=1,max=10"`
}

func TestValidateReturnsInvalidParams(t *testing.T) {
	v := New()

	err := v.Validate(&stageQuery{CharacterID: "char-1", Chapter: 0, Stage: 3})
	require.Error(t, err)

	var appErr *xerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, xerrors.CodeInvalidParams, appErr.Code)
	assert.Equal(t, "Chapter", appErr.Metadata("field"))
	assert.Equal(t, "章节不能小于1", appErr.Metadata("validation_message"))
}

func TestValidatePasses(t *testing.T) {
	assert.NoError(t, New().Validate(&stageQuery{CharacterID: "char-1", Chapter: 20, Stage: 10}))
}

func TestTranslateValidationErrors(t *testing.T) {
	err := New().Validate(&stageQuery{})
	require.Error(t, err)

	raw := New().(*CustomValidator).validator.Struct(&stageQuery{Stage: 11})
	translated := TranslateValidationErrors(raw)
	require.Len(t, translated, 3)
	assert.Equal(t, "角色ID不能为空", translated[0].Message)
	assert.Equal(t, "关卡不能大于10", translated[2].Message)
	assert.Equal(t, "11", translated[2].Value)
}

func TestGetFieldNameSplitsUnknownCamelCase(t *testing.T) {
	assert.Equal(t, "Max Depth", getFieldName("MaxDepth"))
	assert.Equal(t, "伤害", getFieldName("DamageDealt"))
}

func TestStringLengthMessage(t *testing.T) {
	type tokenBody struct {
		SessionToken string `validate:"min=8"`
	}
	raw := New().(*CustomValidator).validator.Struct(&tokenBody{SessionToken: "abc"})
	assert.Equal(t, "会话令牌长度不能少于8个字符", TranslateValidationError(raw))
}

func TestNonValidatorError(t *testing.T) {
	translated := TranslateValidationErrors(assert.AnError)
	require.Len(t, translated, 1)
	assert.Equal(t, "unknown", translated[0].Tag)
	assert.Nil(t, TranslateValidationErrors(nil))
}
