package service

import (
	"context"
	"errors"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

// maxIssueAttempts token 冲突时的最大尝试次数
const maxIssueAttempts = 3

// StageConfig 发放给客户端的关卡参数
type StageConfig struct {
	SessionToken     string              `json:"session_token"`
	ExpiresAt        int64               `json:"expires_at"`
	Chapter          int                 `json:"chapter"`
	Stage            int                 `json:"stage"`
	StageName        string              `json:"stage_name"`
	IsBoss           bool                `json:"is_boss"`
	IsMiniBoss       bool                `json:"is_mini_boss"`
	Difficulty       float64             `json:"difficulty"`
	TimeLimitSeconds int                 `json:"time_limit_seconds"`
	Mobs             []battle.MobEntry   `json:"mobs"`
	Rewards          battle.RewardBundle `json:"rewards"`
}

// ChapterStatus 章节进度
type ChapterStatus struct {
	Chapter       int    `json:"chapter"`
	Name          string `json:"name"`
	Unlocked      bool   `json:"unlocked"`
	Completed     bool   `json:"completed"`
	StagesCleared int    `json:"stages_cleared"`
	TotalStages   int    `json:"total_stages"`
}

// StageIssuanceService 关卡发放服务
type StageIssuanceService struct {
	characterRepo interfaces.CharacterRepository
	generator     *StageGenerator
	registry      *SessionRegistry
	metrics       *metrics.BattleMetrics
	logger        log.Logger
}

// NewStageIssuanceService 创建关卡发放服务
func NewStageIssuanceService(repo interfaces.CharacterRepository, generator *StageGenerator, registry *SessionRegistry, m *metrics.BattleMetrics, logger log.Logger) *StageIssuanceService {
	if m == nil {
		m = metrics.DefaultBattleMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &StageIssuanceService{
		characterRepo: repo,
		generator:     generator,
		registry:      registry,
		metrics:       m,
		logger:        logger,
	}
}

// IssueStage 校验关卡、生成参数并登记会话
func (s *StageIssuanceService) IssueStage(ctx context.Context, req battle.StageRequest) (*StageConfig, error) {
	key := battle.StageKey{Chapter: req.Chapter, Stage: req.Stage}
	if !key.InRange() {
		return nil, xerrors.NewInvalidStageError(req.Chapter, req.Stage, "out_of_range")
	}

	snapshot, err := s.loadOwnedSnapshot(ctx, req.UserID, req.CharacterID)
	if err != nil {
		return nil, err
	}

	plan, err := s.generator.Generate(req.Chapter, req.Stage, snapshot)
	if err != nil {
		return nil, err
	}

	session := &battle.BattleSession{
		CharacterID:      req.CharacterID,
		Chapter:          plan.Key.Chapter,
		Stage:            plan.Key.Stage,
		StageName:        plan.Name,
		IsBoss:           plan.IsBoss,
		IsMiniBoss:       plan.IsMiniBoss,
		Difficulty:       plan.Difficulty,
		TimeLimitSeconds: plan.TimeLimitSeconds,
		Mobs:             plan.Mobs,
		Rewards:          plan.Rewards,
	}

	var token string
	for attempt := 1; ; attempt++ {
		token, err = s.registry.Issue(ctx, session)
		if err == nil {
			break
		}
		if !xerrors.IsCode(err, xerrors.CodeBattleSessionCollision) || attempt >= maxIssueAttempts {
			return nil, err
		}
		s.logger.WarnContext(ctx, "battle session token collision, retrying",
			log.Int("attempt", attempt))
	}

	s.metrics.RecordIssued(stageKind(plan))
	log.LogBattleEvent(ctx, s.logger, "battle_session_issued", req.CharacterID,
		log.String("stage", key.String()),
		log.String("session", TokenFingerprint(token)),
		log.Int("mobs", len(plan.Mobs)),
		log.Int64("total_hp", battle.TotalHP(plan.Mobs)))

	return &StageConfig{
		SessionToken:     token,
		ExpiresAt:        session.ExpiresAt.Unix(),
		Chapter:          session.Chapter,
		Stage:            session.Stage,
		StageName:        session.StageName,
		IsBoss:           session.IsBoss,
		IsMiniBoss:       session.IsMiniBoss,
		Difficulty:       session.Difficulty,
		TimeLimitSeconds: session.TimeLimitSeconds,
		Mobs:             session.Mobs,
		Rewards:          session.Rewards,
	}, nil
}

// ChapterProgress 各章节解锁与通关情况
func (s *StageIssuanceService) ChapterProgress(ctx context.Context, userID, characterID string) ([]ChapterStatus, error) {
	snapshot, err := s.loadOwnedSnapshot(ctx, userID, characterID)
	if err != nil {
		return nil, err
	}

	progress := snapshot.Progression
	chapters := make([]ChapterStatus, 0, battle.MaxChapter)
	for ch := 1; ch <= battle.MaxChapter; ch++ {
		cleared := 0
		for st := 1; st <= battle.StagesPerChapter; st++ {
			if progress.IsCompleted(battle.StageKey{Chapter: ch, Stage: st}) {
				cleared++
			}
		}
		chapters = append(chapters, ChapterStatus{
			Chapter:       ch,
			Name:          themeFor(ch).name,
			Unlocked:      progress.IsStageUnlocked(battle.StageKey{Chapter: ch, Stage: 1}),
			Completed:     progress.IsCompleted(battle.StageKey{Chapter: ch, Stage: battle.BossStage}),
			StagesCleared: cleared,
			TotalStages:   battle.StagesPerChapter,
		})
	}
	return chapters, nil
}

func (s *StageIssuanceService) loadOwnedSnapshot(ctx context.Context, userID, characterID string) (*battle.CharacterSnapshot, error) {
	return ownedSnapshot(ctx, s.characterRepo, userID, characterID, "play_stage")
}

// ownedSnapshot 读取角色快照；userID 非空时要求角色归属该用户
func ownedSnapshot(ctx context.Context, repo interfaces.CharacterRepository, userID, characterID, action string) (*battle.CharacterSnapshot, error) {
	snapshot, err := repo.GetProgressionSnapshot(ctx, characterID)
	if errors.Is(err, interfaces.ErrCharacterNotFound) {
		return nil, xerrors.NewCharacterNotFoundError(characterID)
	}
	if err != nil {
		return nil, xerrors.NewDatabaseError("get_progression_snapshot", "characters", err)
	}
	if userID != "" && snapshot.UserID != userID {
		return nil, xerrors.NewPermissionError("character", action).
			WithMetadata("character_id", characterID)
	}
	return snapshot, nil
}

func stageKind(plan *StagePlan) string {
	switch {
	case plan.IsBoss:
		return "boss"
	case plan.IsMiniBoss:
		return "mini_boss"
	default:
		return "normal"
	}
}
