package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/config"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

// DefaultSessionTTL 会话有效期
const DefaultSessionTTL = 600 * time.Second

// SessionRegistry 战斗会话注册表
//
// 会话只能由这里写入；领取是存储层的一次原子 CAS，并发提交同一 token 时恰好一个成功。
type SessionRegistry struct {
	store     interfaces.BattleSessionStore
	ttl       time.Duration
	retention time.Duration
	keyPrefix string
	clock     func() time.Time
	newToken  func() string
	metrics   *metrics.BattleMetrics
	logger    log.Logger
}

// NewSessionRegistry 创建会话注册表
func NewSessionRegistry(store interfaces.BattleSessionStore, cfg config.SessionConfig, m *metrics.BattleMetrics, logger log.Logger) *SessionRegistry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if m == nil {
		m = metrics.DefaultBattleMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &SessionRegistry{
		store:     store,
		ttl:       cfg.TTL,
		retention: cfg.Retention,
		keyPrefix: cfg.KeyPrefix,
		clock:     time.Now,
		newToken:  uuid.NewString,
		metrics:   m,
		logger:    logger,
	}
}

// WithClock 替换时钟，测试用
func (r *SessionRegistry) WithClock(clock func() time.Time) *SessionRegistry {
	r.clock = clock
	return r
}

// WithTokenSource 替换 token 生成函数，测试用
func (r *SessionRegistry) WithTokenSource(next func() string) *SessionRegistry {
	r.newToken = next
	return r
}

// TTL 会话有效期
func (r *SessionRegistry) TTL() time.Duration { return r.ttl }

// Issue 写入一个新会话并返回 token；token 冲突时返回 CodeBattleSessionCollision
func (r *SessionRegistry) Issue(ctx context.Context, session *battle.BattleSession) (string, error) {
	now := r.clock()
	session.Token = r.newToken()
	session.CreatedAt = now
	session.ExpiresAt = now.Add(r.ttl)
	session.State = battle.SessionActive
	session.ConsumedAt = nil

	payload, err := json.Marshal(session)
	if err != nil {
		return "", xerrors.Wrap(err, xerrors.CodeInternalError, "序列化战斗会话失败")
	}

	ok, err := r.store.SetWithExpiry(ctx, r.key(session.Token), interfaces.SessionRecord{
		Owner:     session.CharacterID,
		State:     battle.SessionActive,
		ExpiresAt: session.ExpiresAt,
		Payload:   payload,
	}, r.ttl+r.retention)
	if err != nil {
		return "", xerrors.NewCacheError("battle_session_issue", err)
	}
	if !ok {
		return "", xerrors.NewBattleSessionError(xerrors.CodeBattleSessionCollision, TokenFingerprint(session.Token))
	}
	return session.Token, nil
}

// Claim 原子地把会话从 Active 迁移为 Consumed
//
// token 不存在或不属于该角色时返回 NotFound，且不会消耗会话。
func (r *SessionRegistry) Claim(ctx context.Context, token, characterID string) (*battle.BattleSession, error) {
	fingerprint := TokenFingerprint(token)
	if token == "" {
		r.metrics.RecordClaim("not_found")
		return nil, xerrors.NewBattleSessionError(xerrors.CodeBattleSessionNotFound, fingerprint)
	}

	status, record, err := r.store.CompareAndSwap(ctx, r.key(token), interfaces.ClaimCondition{
		Owner:    characterID,
		Expected: battle.SessionActive,
		Next:     battle.SessionConsumed,
		Now:      r.clock(),
		Retain:   r.retention,
	})
	if err != nil {
		r.metrics.RecordClaim("error")
		return nil, xerrors.NewCacheError("battle_session_claim", err).
			WithMetadata("session", fingerprint)
	}

	switch status {
	case interfaces.ClaimSucceeded:
	case interfaces.ClaimStateMismatch:
		r.metrics.RecordClaim("consumed")
		return nil, xerrors.NewBattleSessionError(xerrors.CodeBattleSessionConsumed, fingerprint)
	case interfaces.ClaimExpired:
		r.metrics.RecordClaim("expired")
		return nil, xerrors.NewBattleSessionError(xerrors.CodeBattleSessionExpired, fingerprint)
	default:
		r.metrics.RecordClaim("not_found")
		return nil, xerrors.NewBattleSessionError(xerrors.CodeBattleSessionNotFound, fingerprint)
	}

	var session battle.BattleSession
	if err := json.Unmarshal(record.Payload, &session); err != nil {
		r.metrics.RecordClaim("error")
		return nil, xerrors.Wrap(err, xerrors.CodeDataIntegrityError, "解析战斗会话失败").
			WithMetadata("session", fingerprint)
	}
	consumedAt := record.ConsumedAt
	session.State = battle.SessionConsumed
	session.ConsumedAt = &consumedAt

	r.metrics.RecordClaim("succeeded")
	r.logger.DebugContext(ctx, "battle session claimed",
		log.String("session", fingerprint),
		log.String("stage", session.Key().String()))
	return &session, nil
}

func (r *SessionRegistry) key(token string) string {
	return r.keyPrefix + token
}

// TokenFingerprint token 的短指纹，日志与错误元数据中只出现指纹
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha1.Sum([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}
