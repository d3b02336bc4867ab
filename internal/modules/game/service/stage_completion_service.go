package service

import (
	"context"
	"errors"
	"time"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/notify"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
)

// DefaultSettleTimeout 领取成功后校验与结算的时限
const DefaultSettleTimeout = 10 * time.Second

// CompletionRequest 关卡完成请求
type CompletionRequest struct {
	UserID      string
	CharacterID string
	Log         battle.BattleLog
}

// CompletionResult 关卡完成结果；Accepted 为 false 时只有 Reason 有效
type CompletionResult struct {
	Accepted  bool
	Reason    battle.RejectReason
	Stage     battle.StageKey
	Rewards   battle.RewardBundle
	Character *battle.CharacterSummary
}

// BattleEvent 发往 NATS 的战斗事件
type BattleEvent struct {
	CharacterID    string               `json:"character_id"`
	Chapter        int                  `json:"chapter"`
	Stage          int                  `json:"stage"`
	Session        string               `json:"session"`
	Reason         battle.RejectReason  `json:"reason,omitempty"`
	Detail         string               `json:"detail,omitempty"`
	CharacterLevel int                  `json:"character_level,omitempty"`
	SuspicionScore float64              `json:"suspicion_score"`
	Rewards        *battle.RewardBundle `json:"rewards,omitempty"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

// StageCompletionService 关卡完成服务: 领取 -> 校验 -> 结算
type StageCompletionService struct {
	registry      *SessionRegistry
	validator     *BattleValidator
	settlement    *RewardSettlement
	publisher     notify.Publisher
	subjectPrefix string
	settleTimeout time.Duration
	metrics       *metrics.BattleMetrics
	logger        log.Logger
}

// CompletionOptions 可选参数
type CompletionOptions struct {
	SubjectPrefix string
	SettleTimeout time.Duration
}

// NewStageCompletionService 创建关卡完成服务
func NewStageCompletionService(
	registry *SessionRegistry,
	validator *BattleValidator,
	settlement *RewardSettlement,
	publisher notify.Publisher,
	opts CompletionOptions,
	m *metrics.BattleMetrics,
	logger log.Logger,
) *StageCompletionService {
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}
	if publisher == nil {
		publisher = notify.NewPublisher()
	}
	if m == nil {
		m = metrics.DefaultBattleMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &StageCompletionService{
		registry:      registry,
		validator:     validator,
		settlement:    settlement,
		publisher:     publisher,
		subjectPrefix: opts.SubjectPrefix,
		settleTimeout: opts.SettleTimeout,
		metrics:       m,
		logger:        logger,
	}
}

// CompleteStage 处理一次战斗结果提交
//
// 请求取消只在领取之前生效。领取本身及之后的校验与结算都运行在脱离请求的上下文中，
// 客户端断开不会留下已消耗却未结算的会话。
func (s *StageCompletionService) CompleteStage(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, xerrors.NewWithError(xerrors.CodeInvalidRequest, "请求已取消", err)
	}

	if err := s.settlement.VerifyOwner(ctx, req.UserID, req.CharacterID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settleTimeout)
	defer cancel()

	session, err := s.registry.Claim(ctx, req.Log.SessionToken, req.CharacterID)
	if err != nil {
		return nil, err
	}

	fingerprint := TokenFingerprint(session.Token)
	verdict := s.validator.Validate(session, &req.Log)
	if !verdict.Accepted {
		s.metrics.RecordRejection(string(verdict.Reason), verdict.SuspicionScore)
		s.logger.WarnContext(ctx, "battle log rejected",
			log.String("character_id", req.CharacterID),
			log.String("session", fingerprint),
			log.String("stage", session.Key().String()),
			log.String("reason", string(verdict.Reason)),
			log.String("detail", verdict.Detail),
			log.Float64("suspicion_score", verdict.SuspicionScore))
		s.publish(ctx, notify.EventBattleRejected, BattleEvent{
			CharacterID:    req.CharacterID,
			Chapter:        session.Chapter,
			Stage:          session.Stage,
			Session:        fingerprint,
			Reason:         verdict.Reason,
			Detail:         verdict.Detail,
			CharacterLevel: s.settlement.CharacterLevel(ctx, req.CharacterID),
			SuspicionScore: verdict.SuspicionScore,
			OccurredAt:     time.Now(),
		})
		return &CompletionResult{
			Accepted: false,
			Reason:   verdict.Reason,
			Stage:    session.Key(),
		}, nil
	}
	s.metrics.RecordAccepted(req.Log.Stats.DurationMs, verdict.SuspicionScore)

	summary, err := s.settlement.Apply(ctx, req.CharacterID, verdict.Rewards, session.Key())
	if err != nil {
		s.metrics.RecordSettlement(false, 0, 0, 0)
		var appErr *xerrors.AppError
		if errors.As(err, &appErr) {
			log.LogAppError(ctx, s.logger, "battle settlement failed", appErr.WithMetadata("session", fingerprint))
		}
		return nil, err
	}
	s.metrics.RecordSettlement(true, verdict.Rewards.XP, verdict.Rewards.Gold, verdict.Rewards.Gems)

	log.LogBattleEvent(ctx, s.logger, "battle_settled", req.CharacterID,
		log.String("session", fingerprint),
		log.String("stage", session.Key().String()),
		log.Int64("xp", verdict.Rewards.XP),
		log.Int64("gold", verdict.Rewards.Gold),
		log.Int64("gems", verdict.Rewards.Gems),
		log.Int("items", len(verdict.Rewards.Items)),
		log.Bool("leveled_up", summary.LeveledUp))

	rewards := verdict.Rewards
	s.publish(ctx, notify.EventBattleSettled, BattleEvent{
		CharacterID:    req.CharacterID,
		Chapter:        session.Chapter,
		Stage:          session.Stage,
		Session:        fingerprint,
		SuspicionScore: verdict.SuspicionScore,
		Rewards:        &rewards,
		OccurredAt:     time.Now(),
	})

	return &CompletionResult{
		Accepted:  true,
		Stage:     session.Key(),
		Rewards:   verdict.Rewards,
		Character: summary,
	}, nil
}

func (s *StageCompletionService) publish(ctx context.Context, event string, payload BattleEvent) {
	subject := notify.Subject(s.subjectPrefix, event)
	if err := s.publisher.Publish(ctx, subject, payload); err != nil {
		s.logger.Error("publish battle event failed", err, log.String("subject", subject))
	}
}
