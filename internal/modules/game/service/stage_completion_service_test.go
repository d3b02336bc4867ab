package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/config"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/sessioncache"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

// cancelOnClaimStore 领取成功后立刻取消请求上下文，模拟客户端断开
//
// reportCtxErr 为 true 时像 go-redis 一样：脚本已在服务端执行，但调用方拿到 ctx.Err()。
// afterClaim 在领取成功后执行，用于模拟并发删除角色等竞态。
type cancelOnClaimStore struct {
	interfaces.BattleSessionStore
	cancel       context.CancelFunc
	reportCtxErr bool
	afterClaim   func()
}

func (s *cancelOnClaimStore) CompareAndSwap(ctx context.Context, key string, cond interfaces.ClaimCondition) (interfaces.ClaimStatus, *interfaces.SessionRecord, error) {
	status, rec, err := s.BattleSessionStore.CompareAndSwap(ctx, key, cond)
	if status != interfaces.ClaimSucceeded {
		return status, rec, err
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.afterClaim != nil {
		s.afterClaim()
	}
	if s.reportCtxErr {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return interfaces.ClaimNotFound, nil, ctxErr
		}
	}
	return status, rec, err
}

type completionFixture struct {
	clock     *fakeClock
	repo      *fakeCharacterRepo
	publisher *fakePublisher
	metrics   *metrics.BattleMetrics
	store     *cancelOnClaimStore
	container *ServiceContainer
}

func newCompletionFixture(t *testing.T) *completionFixture {
	t.Helper()
	f := &completionFixture{
		clock:     newFakeClock(),
		repo:      newFakeCharacterRepo(),
		publisher: &fakePublisher{},
		metrics:   newTestMetrics(),
	}
	f.store = &cancelOnClaimStore{
		BattleSessionStore: sessioncache.New(f.metrics, log.Discard()).WithClock(f.clock.Now),
	}

	cfg := &config.GameConfig{
		Session:                testSessionConfig(),
		Validation:             config.DefaultValidationConfig(),
		SettleTimeout:          5 * time.Second,
		NatsEventSubjectPrefix: "game.battle",
	}
	f.container = NewServiceContainer(cfg, Dependencies{
		CharacterRepo: f.repo,
		SessionStore:  f.store,
		Publisher:     f.publisher,
		Metrics:       f.metrics,
		Logger:        log.Discard(),
		Generator:     NewStageGeneratorWithSeed(4, 2),
	})
	f.container.Registry.WithClock(f.clock.Now)

	f.repo.put(&battle.CharacterRecord{ID: "char-1", UserID: "user-1", Level: 1, Gold: 50})
	return f
}

func (f *completionFixture) issue(t *testing.T) *StageConfig {
	t.Helper()
	cfg, err := f.container.StageIssuanceService.IssueStage(context.Background(), battle.StageRequest{
		UserID: "user-1", CharacterID: "char-1", Chapter: 1, Stage: 1,
	})
	require.NoError(t, err)
	return cfg
}

// honestLog 每只怪刚好打满血量
func honestLog(cfg *StageConfig) battle.BattleLog {
	entry := battle.BattleLog{
		SessionToken: cfg.SessionToken,
		Chapter:      cfg.Chapter,
		Stage:        cfg.Stage,
		Stats:        battle.BattleStats{MobsKilled: len(cfg.Mobs), DurationMs: 30000},
	}
	for i, m := range cfg.Mobs {
		entry.MobKills = append(entry.MobKills, battle.MobKill{MobIndex: i, DamageDealt: m.HP, TimestampMs: int64(4000 + i*7300)})
		entry.Stats.TotalDamageDealt += m.HP
	}
	return entry
}

func TestStageCompletion_AcceptsAndGrantsIssuedRewards(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)

	result, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	if diff := cmp.Diff(cfg.Rewards, result.Rewards); diff != "" {
		t.Fatalf("granted rewards differ from issued (-issued +granted):\n%s", diff)
	}
	assert.Equal(t, 50+cfg.Rewards.Gold, result.Character.Gold)
	assert.True(t, result.Character.Progression.IsCompleted(battle.StageKey{Chapter: 1, Stage: 1}))
	assert.Equal(t, []string{"game.battle.settled"}, f.publisher.subjects())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Settlements.WithLabelValues("success")))
}

func TestStageCompletion_DoubleSubmitGrantsOnce(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)
	req := CompletionRequest{UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg)}

	_, err := f.container.StageCompletionService.CompleteStage(context.Background(), req)
	require.NoError(t, err)

	_, err = f.container.StageCompletionService.CompleteStage(context.Background(), req)
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionConsumed))
	assert.Equal(t, 1, f.repo.applyCalls)
	assert.Equal(t, 50+cfg.Rewards.Gold, f.repo.get("char-1").Gold)
}

func TestStageCompletion_RejectsForgedDamage(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)

	entry := honestLog(cfg)
	entry.Stats.TotalDamageDealt = 50

	result, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: entry,
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, battle.RejectImplausibleDamage, result.Reason)
	assert.Nil(t, result.Character)
	assert.Zero(t, f.repo.applyCalls)
	assert.Equal(t, int64(50), f.repo.get("char-1").Gold)
	assert.Equal(t, []string{"game.battle.rejected"}, f.publisher.subjects())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ValidationRejections.WithLabelValues("implausible_damage")))

	// 被拒绝的会话同样已被消耗
	_, err = f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionConsumed))
}

func TestStageCompletion_KillCountMismatch(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)

	entry := honestLog(cfg)
	entry.Stats.MobsKilled--

	result, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: entry,
	})
	require.NoError(t, err)
	assert.Equal(t, battle.RejectKillCountMismatch, result.Reason)
}

func TestStageCompletion_ExpiredSession(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(DefaultSessionTTL + time.Second)

	_, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionExpired))
	assert.Zero(t, f.repo.applyCalls)
}

func TestStageCompletion_CancelledBeforeClaimKeepsSession(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.container.StageCompletionService.CompleteStage(ctx, CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	result, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestStageCompletion_CancelAfterClaimStillSettles(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)
	f.repo.checkCtx = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.cancel = cancel

	result, err := f.container.StageCompletionService.CompleteStage(ctx, CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	require.Error(t, ctx.Err(), "请求上下文已被取消")
	assert.NoError(t, f.repo.ctxErrSeen, "结算使用的上下文不应随请求取消")
	assert.Equal(t, 50+cfg.Rewards.Gold, f.repo.get("char-1").Gold)
}

func TestStageCompletion_SettlementFailure(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)
	f.repo.applyErr = errors.New("disk full")

	_, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	assert.True(t, xerrors.IsCode(err, xerrors.CodeDatabaseError))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Settlements.WithLabelValues("error")))
	assert.Empty(t, f.publisher.subjects())
}

func TestStageCompletion_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)
	f.publisher.err = errors.New("nats: connection closed")

	result, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestStageCompletion_ForeignCharacterDoesNotConsume(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)

	_, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-2", CharacterID: "char-1", Log: honestLog(cfg),
	})
	assert.True(t, xerrors.IsCode(err, xerrors.CodePermissionDenied))

	result, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestStageCompletion_DisconnectDuringClaimStillSettles(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.store.cancel = cancel
	f.store.reportCtxErr = true

	result, err := f.container.StageCompletionService.CompleteStage(ctx, CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	require.NoError(t, err, "领取期间请求被取消不应导致会话被消耗却未结算")
	assert.True(t, result.Accepted)
	assert.Equal(t, 1, f.repo.applyCalls)
	assert.Equal(t, 50+cfg.Rewards.Gold, f.repo.get("char-1").Gold)

	_, err = f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionConsumed))
	assert.Equal(t, 1, f.repo.applyCalls)
}

func TestStageCompletion_CharacterDeletedAfterClaim(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)
	f.store.afterClaim = func() {
		f.repo.mu.Lock()
		delete(f.repo.records, "char-1")
		f.repo.mu.Unlock()
	}

	_, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: honestLog(cfg),
	})
	var appErr *xerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, xerrors.CodeInternalError, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, xerrors.GetHTTPStatus(appErr.Code))
	assert.Equal(t, "char-1", appErr.Metadata("character_id"))
	assert.Equal(t, 1, f.repo.applyCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Settlements.WithLabelValues("error")))
	assert.Empty(t, f.publisher.subjects())
}

func TestStageCompletion_RejectedEventCarriesLevel(t *testing.T) {
	f := newCompletionFixture(t)
	cfg := f.issue(t)
	f.clock.Advance(time.Minute)

	entry := honestLog(cfg)
	entry.Stats.TotalDamageDealt = 1

	result, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: entry,
	})
	require.NoError(t, err)
	require.False(t, result.Accepted)

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	require.Len(t, f.publisher.events, 1)
	event, ok := f.publisher.events[0].payload.(BattleEvent)
	require.True(t, ok)
	assert.Equal(t, 1, event.CharacterLevel)
	assert.Equal(t, battle.RejectImplausibleDamage, event.Reason)
}

func TestStageCompletion_LongBattleAtClockSkewEdge(t *testing.T) {
	f := newCompletionFixture(t)
	cfg, err := f.container.StageIssuanceService.IssueStage(context.Background(), battle.StageRequest{
		UserID: "user-1", CharacterID: "char-1", Chapter: 5, Stage: 3,
	})
	require.NoError(t, err)
	f.clock.Advance(120 * time.Second)

	entry := honestLog(cfg)
	entry.Stats.DurationMs = 120000
	entry.Stats.TotalDamageDealt = 0
	for i, m := range cfg.Mobs {
		entry.MobKills[i].DamageDealt = m.HP * 105 / 100
		entry.MobKills[i].TimestampMs = int64(5000 + i*110000/len(cfg.Mobs) + (i%3)*700)
		entry.Stats.TotalDamageDealt += entry.MobKills[i].DamageDealt
	}

	result, err := f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: entry,
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	if diff := cmp.Diff(cfg.Rewards, result.Rewards); diff != "" {
		t.Fatalf("granted rewards differ from issued (-issued +granted):\n%s", diff)
	}

	_, err = f.container.StageCompletionService.CompleteStage(context.Background(), CompletionRequest{
		UserID: "user-1", CharacterID: "char-1", Log: entry,
	})
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionConsumed))
	assert.Equal(t, 1, f.repo.applyCalls)
	assert.Equal(t, 50+cfg.Rewards.Gold, f.repo.get("char-1").Gold)
}
