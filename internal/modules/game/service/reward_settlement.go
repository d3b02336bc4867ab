package service

import (
	"context"
	"errors"
	"time"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

// RewardSettlement 把已校验的奖励写入角色
type RewardSettlement struct {
	repo  interfaces.CharacterRepository
	clock func() time.Time
}

// NewRewardSettlement 创建结算器
func NewRewardSettlement(repo interfaces.CharacterRepository) *RewardSettlement {
	return &RewardSettlement{repo: repo, clock: time.Now}
}

// VerifyOwner 提交结果前确认角色归属
func (s *RewardSettlement) VerifyOwner(ctx context.Context, userID, characterID string) error {
	_, err := ownedSnapshot(ctx, s.repo, userID, characterID, "complete_stage")
	return err
}

// CharacterLevel 查询角色当前等级，查不到时返回 0
func (s *RewardSettlement) CharacterLevel(ctx context.Context, characterID string) int {
	level, err := s.repo.GetCharacterLevel(ctx, characterID)
	if err != nil {
		return 0
	}
	return level
}

// Apply 在角色行锁内合并奖励并记录通关，返回结算后的角色摘要
func (s *RewardSettlement) Apply(ctx context.Context, characterID string, bundle battle.RewardBundle, cleared battle.StageKey) (*battle.CharacterSummary, error) {
	var (
		previousLevel int
		overflow      []battle.RewardItem
	)

	record, err := s.repo.ApplyRewards(ctx, characterID, func(rec *battle.CharacterRecord) error {
		previousLevel = rec.Level
		overflow = mergeRewards(rec, bundle)
		rec.Progression.RecordClear(cleared)
		now := s.clock()
		rec.LastClearedAt = &now
		return nil
	})
	if errors.Is(err, interfaces.ErrCharacterNotFound) {
		// 会话已被领取，角色却在此期间被删除，按内部错误处理
		return nil, xerrors.Wrap(err, xerrors.CodeInternalError, "结算时角色不存在").
			WithService("reward_settlement", "apply").
			WithMetadata("character_id", characterID)
	}
	if err != nil {
		return nil, xerrors.NewDatabaseError("apply_rewards", "characters", err)
	}

	return &battle.CharacterSummary{
		CharacterID:    record.ID,
		Level:          record.Level,
		PreviousLevel:  previousLevel,
		LeveledUp:      record.Level > previousLevel,
		XP:             record.XP,
		XPToNextLevel:  battle.XPForLevel(record.Level+1) - record.XP,
		Gold:           record.Gold,
		Gems:           record.Gems,
		FreeStatPoints: record.FreeStatPoints,
		Power:          record.Power,
		Progression:    record.Progression,
		InventoryCount: len(record.Inventory),
		OverflowItems:  overflow,
	}, nil
}

// mergeRewards 合并货币、经验与物品，返回放不下的物品
func mergeRewards(rec *battle.CharacterRecord, bundle battle.RewardBundle) []battle.RewardItem {
	rec.Gold += bundle.Gold
	rec.Gems += bundle.Gems
	rec.XP += bundle.XP

	level := max(rec.Level, battle.LevelForXP(rec.XP), 1)
	if gained := level - max(rec.Level, 1); gained > 0 {
		rec.FreeStatPoints += gained * battle.StatPointsPerLevel
	}
	rec.Level = level
	rec.Power = battle.PowerFor(rec.Level, rec.FreeStatPoints)

	var overflow []battle.RewardItem
	for _, item := range bundle.Items {
		if item.Quantity <= 0 {
			continue
		}
		idx := -1
		for i := range rec.Inventory {
			if rec.Inventory[i].ItemID == item.ItemID {
				idx = i
				break
			}
		}
		switch {
		case idx >= 0:
			rec.Inventory[idx].Quantity += item.Quantity
		case len(rec.Inventory) < battle.MaxInventorySlots:
			rec.Inventory = append(rec.Inventory, battle.InventoryItem{
				ItemID:   item.ItemID,
				Name:     item.Name,
				Rarity:   item.Rarity,
				Quantity: item.Quantity,
			})
		default:
			overflow = append(overflow, item)
		}
	}
	return overflow
}
