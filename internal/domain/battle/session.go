package battle

import "time"

// ConsumptionState 会话状态
type ConsumptionState string

const (
	SessionActive   ConsumptionState = "active"
	SessionConsumed ConsumptionState = "consumed"
	SessionExpired  ConsumptionState = "expired"
)

// BattleSession 战斗会话
//
// 创建时为 Active，仅允许一次 Active -> Consumed 的原子迁移；
// 过期是隐式状态 (now >= ExpiresAt)。除此之外会话不可变。
type BattleSession struct {
	Token            string           `json:"token"`
	CharacterID      string           `json:"character_id"`
	Chapter          int              `json:"chapter"`
	Stage            int              `json:"stage"`
	StageName        string           `json:"stage_name"`
	IsBoss           bool             `json:"is_boss"`
	IsMiniBoss       bool             `json:"is_mini_boss"`
	Difficulty       float64          `json:"difficulty"`
	TimeLimitSeconds int              `json:"time_limit_seconds"`
	Mobs             []MobEntry       `json:"mobs"`
	Rewards          RewardBundle     `json:"rewards"`
	CreatedAt        time.Time        `json:"created_at"`
	ExpiresAt        time.Time        `json:"expires_at"`
	State            ConsumptionState `json:"state"`
	ConsumedAt       *time.Time       `json:"consumed_at,omitempty"`
}

// Key 会话对应的关卡坐标
func (s *BattleSession) Key() StageKey {
	return StageKey{Chapter: s.Chapter, Stage: s.Stage}
}

// EffectiveState 结合当前时间得出的状态
func (s *BattleSession) EffectiveState(now time.Time) ConsumptionState {
	if s.State == SessionConsumed {
		return SessionConsumed
	}
	if !now.Before(s.ExpiresAt) {
		return SessionExpired
	}
	return s.State
}

// Elapsed 从创建到被领取经过的时间；未领取时返回 0
func (s *BattleSession) Elapsed() time.Duration {
	if s.ConsumedAt == nil {
		return 0
	}
	return s.ConsumedAt.Sub(s.CreatedAt)
}
