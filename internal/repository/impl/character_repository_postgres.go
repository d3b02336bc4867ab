package impl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/lib/pq"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

// PostgresCharacterSchema 角色表结构，启动时幂等执行
const PostgresCharacterSchema = `
CREATE SCHEMA IF NOT EXISTS game_runtime;
CREATE TABLE IF NOT EXISTS game_runtime.characters (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    name             TEXT NOT NULL DEFAULT '',
    level            INTEGER NOT NULL DEFAULT 1,
    xp               BIGINT NOT NULL DEFAULT 0,
    gold             BIGINT NOT NULL DEFAULT 0,
    gems             BIGINT NOT NULL DEFAULT 0,
    free_stat_points INTEGER NOT NULL DEFAULT 0,
    power            INTEGER NOT NULL DEFAULT 100,
    inventory        JSONB NOT NULL DEFAULT '[]',
    progression      JSONB NOT NULL DEFAULT '{}',
    last_cleared_at  TIMESTAMPTZ,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_characters_user_id ON game_runtime.characters (user_id);
`

const characterColumnsPostgres = `id, user_id, name, level, xp, gold, gems, free_stat_points, power, inventory, progression, last_cleared_at, updated_at`

type characterRepositoryPostgres struct {
	db *sql.DB
}

// NewCharacterRepository 创建 Postgres 角色仓储实例
func NewCharacterRepository(db *sql.DB) interfaces.CharacterRepository {
	return &characterRepositoryPostgres{db: db}
}

// EnsurePostgresSchema 创建角色表（已存在时不做任何事）
func EnsurePostgresSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, PostgresCharacterSchema); err != nil {
		return fmt.Errorf("初始化角色表失败: %w", err)
	}
	return nil
}

func (r *characterRepositoryPostgres) GetProgressionSnapshot(ctx context.Context, characterID string) (*battle.CharacterSnapshot, error) {
	rec, err := r.get(ctx, r.db, characterID, false)
	if err != nil {
		return nil, err
	}
	return rec.Snapshot(), nil
}

func (r *characterRepositoryPostgres) GetCharacterLevel(ctx context.Context, characterID string) (int, error) {
	if characterID == "" {
		return 0, fmt.Errorf("character_id 不能为空")
	}
	var level int
	err := r.db.QueryRowContext(ctx, `SELECT level FROM game_runtime.characters WHERE id = $1`, characterID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("查询角色等级失败: %w", interfaces.ErrCharacterNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("查询角色等级失败: %w", err)
	}
	return level, nil
}

func (r *characterRepositoryPostgres) CharacterExists(ctx context.Context, characterID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM game_runtime.characters WHERE id = $1)`, characterID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("检查角色是否存在失败: %w", err)
	}
	return exists, nil
}

func (r *characterRepositoryPostgres) CreateCharacter(ctx context.Context, rec *battle.CharacterRecord) error {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("角色 id 与 user_id 不能为空")
	}
	inventory, progression, err := encodeCharacterBlobs(rec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO game_runtime.characters (`+characterColumnsPostgres+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
`, rec.ID, rec.UserID, rec.Name, max(rec.Level, 1), rec.XP, rec.Gold, rec.Gems, rec.FreeStatPoints,
		battle.PowerFor(max(rec.Level, 1), rec.FreeStatPoints), string(inventory), string(progression), null.TimeFromPtr(rec.LastClearedAt))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("创建角色失败: %w", interfaces.ErrCharacterExists)
	}
	if err != nil {
		return fmt.Errorf("创建角色失败: %w", err)
	}
	return nil
}

// ApplyRewards 在事务内 SELECT ... FOR UPDATE 锁住角色行，合并后写回
func (r *characterRepositoryPostgres) ApplyRewards(ctx context.Context, characterID string, merge interfaces.RewardMerger) (*battle.CharacterRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := r.get(ctx, tx, characterID, true)
	if err != nil {
		return nil, err
	}
	if err := merge(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now()
	if err := r.save(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}
	return rec, nil
}

func (r *characterRepositoryPostgres) get(ctx context.Context, exec boil.ContextExecutor, characterID string, forUpdate bool) (*battle.CharacterRecord, error) {
	if characterID == "" {
		return nil, fmt.Errorf("character_id 不能为空")
	}
	query := `SELECT ` + characterColumnsPostgres + ` FROM game_runtime.characters WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		rec                    battle.CharacterRecord
		inventory, progression []byte
		lastClearedAt          null.Time
	)
	err := exec.QueryRowContext(ctx, query, characterID).Scan(
		&rec.ID, &rec.UserID, &rec.Name, &rec.Level, &rec.XP, &rec.Gold, &rec.Gems,
		&rec.FreeStatPoints, &rec.Power, &inventory, &progression, &lastClearedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("查询角色失败: %w", interfaces.ErrCharacterNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("查询角色失败: %w", err)
	}
	if err := decodeCharacterBlobs(&rec, inventory, progression); err != nil {
		return nil, err
	}
	rec.LastClearedAt = lastClearedAt.Ptr()
	return &rec, nil
}

func (r *characterRepositoryPostgres) save(ctx context.Context, exec boil.ContextExecutor, rec *battle.CharacterRecord) error {
	inventory, progression, err := encodeCharacterBlobs(rec)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, `
UPDATE game_runtime.characters
SET level = $2, xp = $3, gold = $4, gems = $5, free_stat_points = $6, power = $7,
    inventory = $8, progression = $9, last_cleared_at = $10, updated_at = $11
WHERE id = $1
`, rec.ID, rec.Level, rec.XP, rec.Gold, rec.Gems, rec.FreeStatPoints, rec.Power,
		string(inventory), string(progression), null.TimeFromPtr(rec.LastClearedAt), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("更新角色失败: %w", err)
	}
	return nil
}
