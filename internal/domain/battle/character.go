package battle

import (
	"slices"
	"time"
)

const (
	// StatPointsPerLevel 每升一级获得的自由属性点
	StatPointsPerLevel = 5
	// MaxInventorySlots 背包格数上限
	MaxInventorySlots = 50
	// MinPower 战力下限
	MinPower = 100
)

// Progression 章节进度
type Progression struct {
	HighestChapter  int      `json:"highest_chapter"`
	HighestStage    int      `json:"highest_stage"`
	CompletedStages []string `json:"completed_stages"`
}

// IsCompleted 是否已通关
func (p Progression) IsCompleted(k StageKey) bool {
	return slices.Contains(p.CompletedStages, k.String())
}

// IsStageUnlocked 1-1 永远解锁；其余关卡需要前一关已通关
func (p Progression) IsStageUnlocked(k StageKey) bool {
	if !k.InRange() {
		return false
	}
	prev, ok := k.Previous()
	if !ok {
		return true
	}
	return p.IsCompleted(prev)
}

// RecordClear 记录通关并推进最高进度，返回是否首次通关
func (p *Progression) RecordClear(k StageKey) bool {
	if p.IsCompleted(k) {
		return false
	}
	p.CompletedStages = append(p.CompletedStages, k.String())

	if k.Chapter > p.HighestChapter || (k.Chapter == p.HighestChapter && k.Stage > p.HighestStage) {
		p.HighestChapter = k.Chapter
		p.HighestStage = k.Stage
	}
	// 通关首领关后解锁下一章
	if k.IsBoss() && k.Chapter < MaxChapter && p.HighestChapter == k.Chapter {
		p.HighestChapter = k.Chapter + 1
		p.HighestStage = 1
	}
	return true
}

// CharacterSnapshot 发放关卡时需要的角色快照
type CharacterSnapshot struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Level       int         `json:"level"`
	XP          int64       `json:"xp"`
	Power       int         `json:"power"`
	Progression Progression `json:"progression"`
}

// InventoryItem 背包格
type InventoryItem struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name,omitempty"`
	Rarity   string `json:"rarity,omitempty"`
	Quantity int    `json:"quantity"`
}

// CharacterRecord 结算读写的角色记录
type CharacterRecord struct {
	ID             string
	UserID         string
	Name           string
	Level          int
	XP             int64
	Gold           int64
	Gems           int64
	FreeStatPoints int
	Power          int
	Inventory      []InventoryItem
	Progression    Progression
	LastClearedAt  *time.Time
	UpdatedAt      time.Time
}

// Snapshot 转为快照
func (r *CharacterRecord) Snapshot() *CharacterSnapshot {
	return &CharacterSnapshot{
		ID:          r.ID,
		UserID:      r.UserID,
		Level:       r.Level,
		XP:          r.XP,
		Power:       r.Power,
		Progression: r.Progression,
	}
}

// CharacterSummary 结算后返回给客户端的角色摘要
type CharacterSummary struct {
	CharacterID    string       `json:"character_id"`
	Level          int          `json:"level"`
	PreviousLevel  int          `json:"previous_level"`
	LeveledUp      bool         `json:"leveled_up"`
	XP             int64        `json:"xp"`
	XPToNextLevel  int64        `json:"xp_to_next_level"`
	Gold           int64        `json:"gold"`
	Gems           int64        `json:"gems"`
	FreeStatPoints int          `json:"free_stat_points"`
	Power          int          `json:"power"`
	Progression    Progression  `json:"progression"`
	InventoryCount int          `json:"inventory_count"`
	OverflowItems  []RewardItem `json:"overflow_items,omitempty"`
}

// XPForLevel 达到 level 所需的累计经验: 100 * L^2
func XPForLevel(level int) int64 {
	l := int64(level)
	return 100 * l * l
}

// LevelForXP 累计经验对应的等级，至少为 1
func LevelForXP(xp int64) int {
	level := 1
	for XPForLevel(level+1) <= xp {
		level++
	}
	return level
}

// PowerFor 服务端计算的战力
func PowerFor(level, freeStatPoints int) int {
	return max(MinPower, level*10+freeStatPoints*2)
}
