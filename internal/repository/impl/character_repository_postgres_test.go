package impl

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

// 需要 RUN_REPOSITORY_TESTS=1 和可访问的 TEST_DATABASE_URL
func setupPostgresRepo(t *testing.T) interfaces.CharacterRepository {
	t.Helper()
	if os.Getenv("RUN_REPOSITORY_TESTS") != "1" {
		t.Skip("[SKIP] Postgres 仓储测试需要 RUN_REPOSITORY_TESTS=1")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("[SKIP] 未设置 TEST_DATABASE_URL")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsurePostgresSchema(context.Background(), db))
	return NewCharacterRepository(db)
}

func TestPostgresCharacterRepository_ApplyRewards(t *testing.T) {
	ctx := context.Background()
	repo := setupPostgresRepo(t)

	id := uuid.NewString()
	require.NoError(t, repo.CreateCharacter(ctx, &battle.CharacterRecord{ID: id, UserID: "user-pg", Level: 1}))
	require.ErrorIs(t, repo.CreateCharacter(ctx, &battle.CharacterRecord{ID: id, UserID: "user-pg"}), interfaces.ErrCharacterExists)

	rec, err := repo.ApplyRewards(ctx, id, func(rec *battle.CharacterRecord) error {
		rec.Gems += 3
		rec.Progression.RecordClear(battle.StageKey{Chapter: 1, Stage: 1})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Gems)

	snap, err := repo.GetProgressionSnapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, snap.Progression.IsCompleted(battle.StageKey{Chapter: 1, Stage: 1}))

	_, err = repo.GetCharacterLevel(ctx, uuid.NewString())
	require.ErrorIs(t, err, interfaces.ErrCharacterNotFound)
}
