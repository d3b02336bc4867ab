package service

import (
	"github.com/Fishbowl37/RPG-Server/internal/pkg/config"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/notify"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

// Dependencies 服务容器的外部依赖
type Dependencies struct {
	CharacterRepo interfaces.CharacterRepository
	SessionStore  interfaces.BattleSessionStore
	Publisher     notify.Publisher
	Metrics       *metrics.BattleMetrics
	Logger        log.Logger
	Generator     *StageGenerator // 可选，测试时注入固定种子
}

// ServiceContainer 游戏服务容器 - 统一管理所有 Service
type ServiceContainer struct {
	Generator  *StageGenerator
	Registry   *SessionRegistry
	Validator  *BattleValidator
	Settlement *RewardSettlement

	StageIssuanceService   *StageIssuanceService
	StageCompletionService *StageCompletionService
}

// NewServiceContainer 创建服务容器
func NewServiceContainer(cfg *config.GameConfig, deps Dependencies) *ServiceContainer {
	c := &ServiceContainer{}

	c.Generator = deps.Generator
	if c.Generator == nil {
		c.Generator = NewStageGenerator()
	}
	c.Registry = NewSessionRegistry(deps.SessionStore, cfg.Session, deps.Metrics, deps.Logger)
	c.Validator = NewBattleValidator(cfg.Validation)
	c.Settlement = NewRewardSettlement(deps.CharacterRepo)

	c.StageIssuanceService = NewStageIssuanceService(deps.CharacterRepo, c.Generator, c.Registry, deps.Metrics, deps.Logger)
	c.StageCompletionService = NewStageCompletionService(
		c.Registry,
		c.Validator,
		c.Settlement,
		deps.Publisher,
		CompletionOptions{
			SubjectPrefix: cfg.NatsEventSubjectPrefix,
			SettleTimeout: cfg.SettleTimeout,
		},
		deps.Metrics,
		deps.Logger,
	)

	return c
}
