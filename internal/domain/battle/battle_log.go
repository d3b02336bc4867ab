package battle

// BattleStats 客户端上报的战斗统计
type BattleStats struct {
	TotalDamageDealt    int64 `json:"total_damage_dealt" validate:"min=0"`
	TotalDamageReceived int64 `json:"total_damage_received" validate:"min=0"`
	MobsKilled          int   `json:"mobs_killed" validate:"min=0"`
	DurationMs          int64 `json:"duration_ms" validate:"min=0"`
}

// MobKill 单次击杀记录
type MobKill struct {
	MobIndex    int   `json:"mob_index" validate:"min=0"`
	DamageDealt int64 `json:"damage_dealt" validate:"min=0"`
	TimestampMs int64 `json:"timestamp_ms,omitempty" validate:"min=0"`
}

// BattleLog 客户端提交的战斗日志，视为不可信输入
type BattleLog struct {
	SessionToken string      `json:"session_token"`
	Chapter      int         `json:"chapter"`
	Stage        int         `json:"stage"`
	Stats        BattleStats `json:"stats"`
	MobKills     []MobKill   `json:"mob_kills"`
}

// RejectReason 校验拒绝原因
type RejectReason string

const (
	RejectNone                RejectReason = ""
	RejectStageMismatch       RejectReason = "stage_mismatch"
	RejectKillCountMismatch   RejectReason = "kill_count_mismatch"
	RejectImplausibleDamage   RejectReason = "implausible_damage"
	RejectImplausibleDuration RejectReason = "implausible_duration"
)

// Verdict 校验结论。Detail 含阈值，只写日志，不返回给客户端
type Verdict struct {
	Accepted       bool
	Rewards        RewardBundle
	Reason         RejectReason
	Detail         string
	SuspicionScore float64
}
