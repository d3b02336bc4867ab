package service

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

const (
	baseMobHP        = 80.0
	baseMobAttack    = 12.0
	baseMobDefense   = 5.0
	maxMobsPerStage  = 10
	eliteHPFactor    = 3.0
	bossHPFactor     = 6.0
	maxLevelXPScale  = 1.5
	baseTimeLimitSec = 180
)

type mobTemplate struct {
	id      string
	name    string
	kind    string
	attack  float64
	defense float64
}

var mobTemplates = map[string]mobTemplate{
	"orc_warrior":   {id: "orc_warrior", name: "Orc Warrior", kind: "melee", attack: 1.25, defense: 1.6},
	"goblin_archer": {id: "goblin_archer", name: "Goblin Archer", kind: "ranged", attack: 1.65, defense: 0.8},
	"skeleton":      {id: "skeleton", name: "Skeleton", kind: "melee", attack: 1.0, defense: 1.2},
	"dark_mage":     {id: "dark_mage", name: "Dark Mage", kind: "magic", attack: 2.5, defense: 0.6},
	"troll":         {id: "troll", name: "Troll", kind: "melee", attack: 2.1, defense: 3.0},
}

// 按章节轮换
var bossTemplates = []mobTemplate{
	{id: "orc_warlord", name: "Orc Warlord", kind: "melee", attack: 3.3, defense: 4.0},
	{id: "lich_king", name: "Lich King", kind: "magic", attack: 5.0, defense: 2.4},
	{id: "dragon", name: "Ancient Dragon", kind: "magic", attack: 6.6, defense: 5.0},
}

type chapterTheme struct {
	name string
	mobs []string
}

var chapterThemes = map[int]chapterTheme{
	1: {name: "Greenwood Outskirts", mobs: []string{"orc_warrior", "goblin_archer"}},
	2: {name: "Haunted Fields", mobs: []string{"orc_warrior", "goblin_archer", "skeleton"}},
	3: {name: "Cursed Crypts", mobs: []string{"skeleton", "dark_mage"}},
	4: {name: "Troll Highlands", mobs: []string{"skeleton", "dark_mage", "troll"}},
	5: {name: "Arcane Wastes", mobs: []string{"dark_mage", "troll"}},
}

var frontierTheme = chapterTheme{
	name: "Abyssal Frontier",
	mobs: []string{"orc_warrior", "goblin_archer", "skeleton", "dark_mage", "troll"},
}

func themeFor(chapter int) chapterTheme {
	if t, ok := chapterThemes[chapter]; ok {
		return t
	}
	return frontierTheme
}

var itemSlots = []string{"weapon", "armor", "helmet", "boots", "ring"}

var slotNames = map[string]string{
	"weapon": "Sword",
	"armor":  "Chestplate",
	"helmet": "Helm",
	"boots":  "Boots",
	"ring":   "Ring",
}

var rarityPrefixes = map[string][]string{
	"common":    {"Worn", "Simple", "Basic"},
	"uncommon":  {"Sturdy", "Refined", "Quality"},
	"rare":      {"Superior", "Exceptional", "Pristine"},
	"epic":      {"Heroic", "Valiant", "Glorious"},
	"legendary": {"Legendary", "Mythical", "Divine"},
}

// StagePlan 生成结果，发放时写入会话
type StagePlan struct {
	Key              battle.StageKey
	Name             string
	IsBoss           bool
	IsMiniBoss       bool
	Difficulty       float64
	TimeLimitSeconds int
	Mobs             []battle.MobEntry
	Rewards          battle.RewardBundle
}

// StageGenerator 关卡参数生成器
//
// 只读取章节、关卡、角色等级和进度。怪物血量与模板无关，
// 只由难度和定位决定，因此同章递增关卡、同关递增章节时怪物数量与总血量不减。
type StageGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewStageGenerator 以当前时间作为种子
func NewStageGenerator() *StageGenerator {
	now := uint64(time.Now().UnixNano())
	return NewStageGeneratorWithSeed(now, now>>17|1)
}

// NewStageGeneratorWithSeed 固定种子，测试用
func NewStageGeneratorWithSeed(seed1, seed2 uint64) *StageGenerator {
	return &StageGenerator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Generate 生成关卡怪物、奖励与元信息
func (g *StageGenerator) Generate(chapter, stage int, snapshot *battle.CharacterSnapshot) (*StagePlan, error) {
	key := battle.StageKey{Chapter: chapter, Stage: stage}
	if !key.InRange() {
		return nil, xerrors.NewInvalidStageError(chapter, stage, "out_of_range")
	}
	if snapshot == nil || !snapshot.Progression.IsStageUnlocked(key) {
		return nil, xerrors.NewInvalidStageError(chapter, stage, "locked")
	}

	difficulty := DifficultyFor(chapter, stage)

	g.mu.Lock()
	defer g.mu.Unlock()

	mobs := g.rollMobs(key, difficulty)
	plan := &StagePlan{
		Key:              key,
		Name:             stageName(key),
		IsBoss:           key.IsBoss(),
		IsMiniBoss:       key.IsMiniBoss(),
		Difficulty:       difficulty,
		TimeLimitSeconds: timeLimitFor(key),
		Mobs:             mobs,
		Rewards:          g.rollRewards(key, mobs, snapshot.Level),
	}
	return plan, nil
}

// DifficultyFor 难度系数 1 + (ch-1)*0.5 + (st-1)*0.1
func DifficultyFor(chapter, stage int) float64 {
	return 1 + float64(chapter-1)*0.5 + float64(stage-1)*0.1
}

// MobCountFor 怪物数量 min(3 + (ch-1)/2 + (st-1)/3, 10)
func MobCountFor(chapter, stage int) int {
	return min(3+(chapter-1)/2+(stage-1)/3, maxMobsPerStage)
}

func roleFor(key battle.StageKey, slot, count int) battle.MobRole {
	if slot != count-1 {
		return battle.MobRoleNormal
	}
	switch {
	case key.IsBoss():
		return battle.MobRoleBoss
	case key.Stage >= battle.MiniBossStage:
		return battle.MobRoleElite
	default:
		return battle.MobRoleNormal
	}
}

func roleFactor(role battle.MobRole) float64 {
	switch role {
	case battle.MobRoleBoss:
		return bossHPFactor
	case battle.MobRoleElite:
		return eliteHPFactor
	default:
		return 1
	}
}

func (g *StageGenerator) rollMobs(key battle.StageKey, difficulty float64) []battle.MobEntry {
	count := MobCountFor(key.Chapter, key.Stage)
	theme := themeFor(key.Chapter)
	boss := bossTemplates[(key.Chapter-1)%len(bossTemplates)]
	level := 1 + (key.Chapter-1)*5 + (key.Stage-1)/2

	mobs := make([]battle.MobEntry, 0, count)
	for slot := range count {
		role := roleFor(key, slot, count)
		factor := roleFactor(role)

		tpl := mobTemplates[theme.mobs[g.rng.IntN(len(theme.mobs))]]
		typeID, name, kind := tpl.id, tpl.name, tpl.kind
		attack, defense := tpl.attack, tpl.defense
		switch {
		case role == battle.MobRoleBoss:
			typeID, name, kind = boss.id, boss.name, boss.kind
			attack, defense = boss.attack, boss.defense
		case role == battle.MobRoleElite && key.IsMiniBoss():
			typeID, name, kind = boss.id+"_mini", boss.name+" (Mini-Boss)", boss.kind
			attack, defense = boss.attack*0.6, boss.defense*0.6
		case role == battle.MobRoleElite:
			typeID, name = "elite_"+tpl.id, "Elite "+tpl.name
			attack, defense = tpl.attack*1.5, tpl.defense*1.5
		}

		mobs = append(mobs, battle.MobEntry{
			MobTypeID: typeID,
			Name:      name,
			Kind:      kind,
			Role:      role,
			Level:     level,
			HP:        int64(math.Round(baseMobHP * difficulty * factor)),
			Attack:    int64(math.Round(baseMobAttack * difficulty * attack)),
			Defense:   int64(math.Round(baseMobDefense * difficulty * defense)),
			KillShare: battle.KillShare{
				XP:   int64(math.Round(float64(10+5*key.Chapter) * difficulty * factor)),
				Gold: int64(math.Round(float64(5+3*key.Chapter) * difficulty * factor)),
			},
		})
	}
	return mobs
}

func stageMultiplier(key battle.StageKey) float64 {
	switch {
	case key.IsBoss():
		return 3
	case key.IsMiniBoss():
		return 2
	default:
		return 1
	}
}

func (g *StageGenerator) rollRewards(key battle.StageKey, mobs []battle.MobEntry, level int) battle.RewardBundle {
	var mobXP, mobGold int64
	for _, m := range mobs {
		mobXP += m.KillShare.XP
		mobGold += m.KillShare.Gold
	}

	mult := stageMultiplier(key)
	levelScale := min(1+0.01*float64(max(level, 1)-1), maxLevelXPScale)

	return battle.RewardBundle{
		Gold:  int64(math.Round(float64(int64(100*key.Chapter+10*key.Stage)+mobGold) * mult)),
		Gems:  int64(math.Round(float64(key.Chapter+key.Stage/5) * mult)),
		XP:    int64(math.Round(float64(int64(50*key.Chapter+5*key.Stage)+mobXP) * mult * levelScale)),
		Items: g.rollDrops(key, mobs),
	}
}

func (g *StageGenerator) rollDrops(key battle.StageKey, mobs []battle.MobEntry) []battle.RewardItem {
	stacked := make(map[string]*battle.RewardItem)
	add := func() {
		item := g.rollItem(key.Chapter)
		if existing, ok := stacked[item.ItemID]; ok {
			existing.Quantity++
			return
		}
		stacked[item.ItemID] = &item
	}

	if key.IsBoss() {
		add()
	}
	base := 0.05 + 0.01*float64(key.Chapter)
	for _, m := range mobs {
		chance := base
		if m.Role != battle.MobRoleNormal {
			chance *= 2
		}
		if g.rng.Float64() < chance {
			add()
		}
	}

	items := make([]battle.RewardItem, 0, len(stacked))
	for _, item := range stacked {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items
}

func (g *StageGenerator) rollItem(chapter int) battle.RewardItem {
	var rarity string
	switch r := g.rng.Float64(); {
	case r < 0.02:
		rarity = "legendary"
	case r < 0.10:
		rarity = "epic"
	case r < 0.30:
		rarity = "rare"
	case r < 0.60:
		rarity = "uncommon"
	default:
		rarity = "common"
	}
	slot := itemSlots[g.rng.IntN(len(itemSlots))]
	prefixes := rarityPrefixes[rarity]

	return battle.RewardItem{
		ItemID:   fmt.Sprintf("gear_%s_%s_c%d", slot, rarity, chapter),
		Name:     prefixes[chapter%len(prefixes)] + " " + slotNames[slot],
		Rarity:   rarity,
		Quantity: 1,
	}
}

func stageName(key battle.StageKey) string {
	if key.IsBoss() {
		return "Boss: " + bossTemplates[(key.Chapter-1)%len(bossTemplates)].name
	}
	return fmt.Sprintf("%s - Stage %d", themeFor(key.Chapter).name, key.Stage)
}

func timeLimitFor(key battle.StageKey) int {
	switch {
	case key.IsBoss():
		return baseTimeLimitSec + 120
	case key.IsMiniBoss():
		return baseTimeLimitSec + 60
	default:
		return baseTimeLimitSec + 10*key.Stage
	}
}
