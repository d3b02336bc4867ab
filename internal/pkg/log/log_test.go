package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/ctxkey"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestContextFieldsAreAttached(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug, "production")

	ctx := ctxkey.WithValue(context.Background(), ctxkey.TraceID, "trace-9")
	ctx = ctxkey.WithValue(ctx, ctxkey.CharacterID, "char-1")
	logger.InfoContext(ctx, "hello", String("k", "v"))

	line := decodeLine(t, &buf)
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "trace-9", line["trace_id"])
	assert.Equal(t, "char-1", line["character_id"])
	assert.Equal(t, "v", line["k"])
	assert.NotContains(t, line, "user_id")
}

func TestLogAppErrorUsesErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug, "production")

	LogAppError(context.Background(), logger, "claim failed",
		xerrors.NewBattleSessionError(xerrors.CodeBattleSessionExpired, "abcd"))
	line := decodeLine(t, &buf)
	assert.Equal(t, "WARN", line["level"])

	buf.Reset()
	LogAppError(context.Background(), logger, "db down", xerrors.NewDatabaseError("select", "characters", nil))
	line = decodeLine(t, &buf)
	assert.Equal(t, "ERROR", line["level"])
	appErr, ok := line["app_error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "characters", appErr["meta.table"])
}

func TestLogBattleEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "production")

	LogBattleEvent(context.Background(), logger, "battle_settled", "char-2", Int64("xp", 40))

	line := decodeLine(t, &buf)
	assert.Equal(t, "battle_settled", line["event"])
	assert.Equal(t, "char-2", line["character_id"])
	assert.EqualValues(t, 40, line["xp"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}
