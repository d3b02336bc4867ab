package interfaces

import (
	"context"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
)

// RewardMerger 在行锁内修改角色记录
type RewardMerger func(record *battle.CharacterRecord) error

// CharacterRepository 角色数据访问
type CharacterRepository interface {
	// GetProgressionSnapshot 读取角色等级与章节进度
	GetProgressionSnapshot(ctx context.Context, characterID string) (*battle.CharacterSnapshot, error)

	// GetCharacterLevel 读取角色等级
	GetCharacterLevel(ctx context.Context, characterID string) (int, error)

	// CharacterExists 角色是否存在
	CharacterExists(ctx context.Context, characterID string) (bool, error)

	// CreateCharacter 新建角色；ID 已存在时返回 ErrCharacterExists
	CreateCharacter(ctx context.Context, record *battle.CharacterRecord) error

	// ApplyRewards 锁定角色行，调用 merge 修改后写回，返回写回后的记录
	ApplyRewards(ctx context.Context, characterID string, merge RewardMerger) (*battle.CharacterRecord, error)
}
