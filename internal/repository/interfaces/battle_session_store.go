package interfaces

import (
	"context"
	"time"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
)

// SessionRecord 存储层的战斗会话记录
// Payload 为会话 JSON，写入后不再改变；状态字段单独存放以便原子迁移
type SessionRecord struct {
	Owner      string
	State      battle.ConsumptionState
	ExpiresAt  time.Time
	ConsumedAt time.Time
	Payload    []byte
}

// ClaimCondition 原子领取的前置条件
type ClaimCondition struct {
	Owner    string
	Expected battle.ConsumptionState
	Next     battle.ConsumptionState
	Now      time.Time
	// Retain 迁移成功后记录保留多久，便于重放请求得到明确的拒绝原因
	Retain time.Duration
}

// ClaimStatus 原子领取结果
type ClaimStatus int

const (
	ClaimNotFound ClaimStatus = iota
	ClaimStateMismatch
	ClaimExpired
	ClaimSucceeded
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimNotFound:
		return "not_found"
	case ClaimStateMismatch:
		return "state_mismatch"
	case ClaimExpired:
		return "expired"
	case ClaimSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// BattleSessionStore 带过期语义的会话存储
type BattleSessionStore interface {
	// SetWithExpiry key 不存在时写入并设置过期时间；key 已存在返回 false
	SetWithExpiry(ctx context.Context, key string, record SessionRecord, ttl time.Duration) (bool, error)

	// CompareAndSwap 单次原子操作：owner 匹配、状态为 Expected 且 Now < ExpiresAt 时迁移为 Next
	CompareAndSwap(ctx context.Context, key string, cond ClaimCondition) (ClaimStatus, *SessionRecord, error)
}
