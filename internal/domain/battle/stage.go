package battle

import "fmt"

const (
	// MaxChapter 章节上限
	MaxChapter = 20
	// StagesPerChapter 每章关卡数
	StagesPerChapter = 10
	// MiniBossStage 精英关（每章第 5 关）
	MiniBossStage = 5
	// BossStage 首领关（每章最后一关）
	BossStage = 10
)

// StageRequest 关卡请求
type StageRequest struct {
	UserID      string
	CharacterID string
	Chapter     int
	Stage       int
}

// StageKey 章节-关卡坐标
type StageKey struct {
	Chapter int `json:"chapter"`
	Stage   int `json:"stage"`
}

// String 形如 "3-7"，与进度记录中的格式一致
func (k StageKey) String() string {
	return fmt.Sprintf("%d-%d", k.Chapter, k.Stage)
}

// InRange 章节/关卡是否在定义范围内
func (k StageKey) InRange() bool {
	return k.Chapter >= 1 && k.Chapter <= MaxChapter && k.Stage >= 1 && k.Stage <= StagesPerChapter
}

// Previous 解锁本关需要先通关的关卡；1-1 没有前置
func (k StageKey) Previous() (StageKey, bool) {
	switch {
	case k.Stage > 1:
		return StageKey{Chapter: k.Chapter, Stage: k.Stage - 1}, true
	case k.Chapter > 1:
		return StageKey{Chapter: k.Chapter - 1, Stage: StagesPerChapter}, true
	default:
		return StageKey{}, false
	}
}

// IsBoss 是否首领关
func (k StageKey) IsBoss() bool { return k.Stage == BossStage }

// IsMiniBoss 是否精英关
func (k StageKey) IsMiniBoss() bool { return k.Stage == MiniBossStage }

// MobRole 怪物定位
type MobRole string

const (
	MobRoleNormal MobRole = "normal"
	MobRoleElite  MobRole = "elite"
	MobRoleBoss   MobRole = "boss"
)

// KillShare 单个怪物在奖励中的份额
type KillShare struct {
	XP   int64 `json:"xp"`
	Gold int64 `json:"gold"`
}

// MobEntry 服务端生成的怪物条目，从不接受客户端数据
type MobEntry struct {
	MobTypeID string    `json:"mob_type_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Role      MobRole   `json:"role"`
	Level     int       `json:"level"`
	HP        int64     `json:"hp"`
	Attack    int64     `json:"attack"`
	Defense   int64     `json:"defense"`
	KillShare KillShare `json:"rewards_on_kill_share"`
}

// RewardItem 奖励物品
type RewardItem struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name,omitempty"`
	Rarity   string `json:"rarity,omitempty"`
	Quantity int    `json:"quantity"`
}

// RewardBundle 发放时预先确定的奖励，不会根据客户端数据重新计算
type RewardBundle struct {
	XP    int64        `json:"xp"`
	Gold  int64        `json:"gold"`
	Gems  int64        `json:"gems"`
	Items []RewardItem `json:"items"`
}

// Clone 深拷贝，调用方修改副本不影响会话中的原始奖励
func (b RewardBundle) Clone() RewardBundle {
	out := b
	if b.Items != nil {
		out.Items = make([]RewardItem, len(b.Items))
		copy(out.Items, b.Items)
	}
	return out
}

// TotalHP 怪物总血量
func TotalHP(mobs []MobEntry) int64 {
	var total int64
	for _, m := range mobs {
		total += m.HP
	}
	return total
}
