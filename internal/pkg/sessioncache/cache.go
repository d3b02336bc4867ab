package sessioncache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

type entry struct {
	record   interfaces.SessionRecord
	deadline time.Time // 记录本身被回收的时间
}

// Store 进程内的战斗会话存储，单实例或开发环境使用。
// 多副本部署必须使用 Redis 实现，否则会话无法跨实例领取。
type Store struct {
	metrics *metrics.BattleMetrics
	logger  log.Logger
	clock   func() time.Time
	mu      sync.Mutex
	store   map[string]*entry
}

var _ interfaces.BattleSessionStore = (*Store)(nil)

// New 返回进程内会话存储
func New(m *metrics.BattleMetrics, logger log.Logger) *Store {
	if m == nil {
		m = metrics.DefaultBattleMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Store{
		metrics: m,
		logger:  logger.With("component", "session_cache"),
		clock:   time.Now,
		store:   make(map[string]*entry),
	}
}

// WithClock 替换时钟，测试用
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// SetWithExpiry key 不存在（或已被回收）时写入
func (s *Store) SetWithExpiry(ctx context.Context, key string, record interfaces.SessionRecord, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.store[key]; ok && now.Before(existing.deadline) {
		return false, nil
	}
	s.store[key] = &entry{
		record:   record,
		deadline: now.Add(ttl),
	}
	s.metrics.MemorySessions.Set(float64(len(s.store)))
	return true, nil
}

// CompareAndSwap 在同一把锁内完成检查与迁移
func (s *Store) CompareAndSwap(ctx context.Context, key string, cond interfaces.ClaimCondition) (interfaces.ClaimStatus, *interfaces.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.ClaimNotFound, nil, err
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store[key]
	if !ok || !now.Before(e.deadline) || e.record.Owner != cond.Owner {
		return interfaces.ClaimNotFound, nil, nil
	}

	current := e.record
	if current.State != cond.Expected {
		return interfaces.ClaimStateMismatch, &current, nil
	}
	if !cond.Now.Before(current.ExpiresAt) {
		return interfaces.ClaimExpired, &current, nil
	}

	e.record.State = cond.Next
	e.record.ConsumedAt = cond.Now
	if cond.Retain > 0 {
		e.deadline = now.Add(cond.Retain)
	}

	s.logger.DebugContext(ctx, "session claimed",
		log.String("token_hash", hashToken(key)))

	claimed := e.record
	return interfaces.ClaimSucceeded, &claimed, nil
}

// Purge 回收已过保留期的记录，返回回收数量
func (s *Store) Purge(ctx context.Context) int {
	now := s.clock()

	s.mu.Lock()
	removed := 0
	for key, e := range s.store {
		if !now.Before(e.deadline) {
			delete(s.store, key)
			removed++
		}
	}
	remaining := len(s.store)
	s.mu.Unlock()

	s.metrics.MemorySessions.Set(float64(remaining))
	if removed > 0 {
		s.logger.InfoContext(ctx, "session cache purged",
			log.Int("removed", removed),
			log.Int("remaining", remaining))
	}
	return removed
}

// Len 当前持有的记录数
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.store)
}

func hashToken(token string) string {
	if token == "" {
		return ""
	}
	h := sha1.Sum([]byte(token))
	return hex.EncodeToString(h[:])[:12]
}
