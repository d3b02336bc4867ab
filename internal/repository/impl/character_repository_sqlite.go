package impl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/aarondl/sqlboiler/v4/boil"
	_ "modernc.org/sqlite"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

const sqliteCharacterSchemaVersion = 1

const characterColumnsSQLite = `id, user_id, name, level, xp, gold, gems, free_stat_points, power, inventory, progression, last_cleared_at_ms, updated_at_ms`

type characterRepositorySQLite struct {
	db *sql.DB
}

// OpenSQLite 打开嵌入式数据库并完成迁移
//
// 只保留一个连接，写事务天然串行，ApplyRewards 因此不会交错。
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := "file::memory:?_pragma=foreign_keys(ON)"
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("SQLite 连接失败: %w", err)
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("SQLite 迁移失败: %w", err)
	}
	return db, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= sqliteCharacterSchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		level INTEGER NOT NULL DEFAULT 1,
		xp INTEGER NOT NULL DEFAULT 0,
		gold INTEGER NOT NULL DEFAULT 0,
		gems INTEGER NOT NULL DEFAULT 0,
		free_stat_points INTEGER NOT NULL DEFAULT 0,
		power INTEGER NOT NULL DEFAULT 100,
		inventory TEXT NOT NULL DEFAULT '[]',
		progression TEXT NOT NULL DEFAULT '{}',
		last_cleared_at_ms INTEGER,
		updated_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_characters_user_id ON characters(user_id);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteCharacterSchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// NewSQLiteCharacterRepository 创建 SQLite 角色仓储实例，db 需由 OpenSQLite 打开
func NewSQLiteCharacterRepository(db *sql.DB) interfaces.CharacterRepository {
	return &characterRepositorySQLite{db: db}
}

func (r *characterRepositorySQLite) GetProgressionSnapshot(ctx context.Context, characterID string) (*battle.CharacterSnapshot, error) {
	rec, err := r.get(ctx, r.db, characterID)
	if err != nil {
		return nil, err
	}
	return rec.Snapshot(), nil
}

func (r *characterRepositorySQLite) GetCharacterLevel(ctx context.Context, characterID string) (int, error) {
	var level int
	err := r.db.QueryRowContext(ctx, `SELECT level FROM characters WHERE id = ?`, characterID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("查询角色等级失败: %w", interfaces.ErrCharacterNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("查询角色等级失败: %w", err)
	}
	return level, nil
}

func (r *characterRepositorySQLite) CharacterExists(ctx context.Context, characterID string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM characters WHERE id = ?`, characterID).Scan(&n); err != nil {
		return false, fmt.Errorf("检查角色是否存在失败: %w", err)
	}
	return n > 0, nil
}

func (r *characterRepositorySQLite) CreateCharacter(ctx context.Context, rec *battle.CharacterRecord) error {
	if rec == nil || rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("角色 id 与 user_id 不能为空")
	}
	inventory, progression, err := encodeCharacterBlobs(rec)
	if err != nil {
		return err
	}
	level := max(rec.Level, 1)
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO characters (`+characterColumnsSQLite+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.Name, level, rec.XP, rec.Gold, rec.Gems, rec.FreeStatPoints,
		battle.PowerFor(level, rec.FreeStatPoints), string(inventory), string(progression),
		millisFromPtr(rec.LastClearedAt), time.Now().UnixMilli())
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("创建角色失败: %w", interfaces.ErrCharacterExists)
	}
	if err != nil {
		return fmt.Errorf("创建角色失败: %w", err)
	}
	return nil
}

func (r *characterRepositorySQLite) ApplyRewards(ctx context.Context, characterID string, merge interfaces.RewardMerger) (*battle.CharacterRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := r.get(ctx, tx, characterID)
	if err != nil {
		return nil, err
	}
	if err := merge(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now()

	inventory, progression, err := encodeCharacterBlobs(rec)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
	UPDATE characters
	SET level = ?, xp = ?, gold = ?, gems = ?, free_stat_points = ?, power = ?,
		inventory = ?, progression = ?, last_cleared_at_ms = ?, updated_at_ms = ?
	WHERE id = ?
	`, rec.Level, rec.XP, rec.Gold, rec.Gems, rec.FreeStatPoints, rec.Power,
		string(inventory), string(progression), millisFromPtr(rec.LastClearedAt), rec.UpdatedAt.UnixMilli(), rec.ID)
	if err != nil {
		return nil, fmt.Errorf("更新角色失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}
	return rec, nil
}

func (r *characterRepositorySQLite) get(ctx context.Context, exec boil.ContextExecutor, characterID string) (*battle.CharacterRecord, error) {
	if characterID == "" {
		return nil, fmt.Errorf("character_id 不能为空")
	}
	var (
		rec                    battle.CharacterRecord
		inventory, progression string
		lastClearedAtMs        null.Int64
		updatedAtMs            int64
	)
	err := exec.QueryRowContext(ctx, `SELECT `+characterColumnsSQLite+` FROM characters WHERE id = ?`, characterID).Scan(
		&rec.ID, &rec.UserID, &rec.Name, &rec.Level, &rec.XP, &rec.Gold, &rec.Gems,
		&rec.FreeStatPoints, &rec.Power, &inventory, &progression, &lastClearedAtMs, &updatedAtMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("查询角色失败: %w", interfaces.ErrCharacterNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("查询角色失败: %w", err)
	}
	if err := decodeCharacterBlobs(&rec, []byte(inventory), []byte(progression)); err != nil {
		return nil, err
	}
	if lastClearedAtMs.Valid {
		t := time.UnixMilli(lastClearedAtMs.Int64)
		rec.LastClearedAt = &t
	}
	rec.UpdatedAt = time.UnixMilli(updatedAtMs)
	return &rec, nil
}

func millisFromPtr(t *time.Time) null.Int64 {
	if t == nil {
		return null.Int64{}
	}
	return null.Int64From(t.UnixMilli())
}
