package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/i18n"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/trace"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestWriteSuccess(t *testing.T) {
	h := NewResponseHandler(log.Discard(), "development")
	ctx := trace.WithTraceID(context.Background(), "trace-1")
	rec := httptest.NewRecorder()

	require.NoError(t, h.WriteSuccess(ctx, rec, map[string]int{"gold": 10}))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, xerrors.CodeSuccess.ToInt(), resp.Code)
	assert.Equal(t, "trace-1", resp.TraceID)
	assert.Equal(t, map[string]any{"gold": float64(10)}, resp.Data)
}

func TestWriteErrorLocalizesMessage(t *testing.T) {
	h := NewResponseHandler(log.Discard(), "development")
	ctx := i18n.WithLanguage(context.Background(), language.English)
	rec := httptest.NewRecorder()

	require.NoError(t, h.WriteError(ctx, rec, xerrors.NewBattleSessionError(xerrors.CodeBattleSessionExpired, "abc")))

	assert.Equal(t, http.StatusGone, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, xerrors.CodeBattleSessionExpired.ToInt(), resp.Code)
	assert.Equal(t, "Battle session expired", resp.Message)
}

func TestWriteErrorHidesServerDetail(t *testing.T) {
	h := NewResponseHandler(log.Discard(), "development")
	rec := httptest.NewRecorder()

	err := xerrors.NewDatabaseError("update", "characters", errors.New("pq: password authentication failed for user game"))
	require.NoError(t, h.WriteError(context.Background(), rec, err))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode(t, rec)
	assert.Empty(t, resp.Error)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestWriteErrorWrapsPlainErrors(t *testing.T) {
	h := NewResponseHandler(log.Discard(), "development")
	rec := httptest.NewRecorder()

	require.NoError(t, h.WriteError(context.Background(), rec, errors.New("boom")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, xerrors.CodeInternalError.ToInt(), resp.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestWriteErrorBattleRejectionIsGeneric(t *testing.T) {
	h := NewResponseHandler(log.Discard(), "development")
	rec := httptest.NewRecorder()

	err := xerrors.FromCode(xerrors.CodeBattleValidationFailed).WithMetadata("reason", "implausible_damage")
	require.NoError(t, h.WriteError(context.Background(), rec, err))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, decode(t, rec).Error)
	assert.NotContains(t, rec.Body.String(), "implausible")
}

func TestWriteErrorValidationDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	err := xerrors.NewValidationError("chapter", "章节不能小于1")

	require.NoError(t, NewResponseHandler(log.Discard(), "production").WriteError(context.Background(), rec, err))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "章节不能小于1", decode(t, rec).Error)
}

func TestWriteErrorReasonOnlyOutsideProduction(t *testing.T) {
	err := xerrors.NewInvalidStageError(1, 9, "locked")

	dev := httptest.NewRecorder()
	require.NoError(t, NewResponseHandler(log.Discard(), "development").WriteError(context.Background(), dev, err))
	assert.Equal(t, "locked", decode(t, dev).Error)

	prod := httptest.NewRecorder()
	require.NoError(t, NewResponseHandler(log.Discard(), "production").WriteError(context.Background(), prod, err))
	assert.Empty(t, decode(t, prod).Error)
}
