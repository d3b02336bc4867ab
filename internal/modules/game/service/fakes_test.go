package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/config"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/sessioncache"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: testEpoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeCharacterRepo struct {
	mu          sync.Mutex
	records     map[string]*battle.CharacterRecord
	applyErr    error
	applyCalls  int
	checkCtx    bool
	ctxErrSeen  error
	snapshotErr error
}

func newFakeCharacterRepo() *fakeCharacterRepo {
	return &fakeCharacterRepo{records: make(map[string]*battle.CharacterRecord)}
}

func (f *fakeCharacterRepo) put(rec *battle.CharacterRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.Level == 0 {
		rec.Level = 1
	}
	if rec.Power == 0 {
		rec.Power = battle.PowerFor(rec.Level, rec.FreeStatPoints)
	}
	f.records[rec.ID] = rec
}

func (f *fakeCharacterRepo) get(id string) *battle.CharacterRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id]
}

func (f *fakeCharacterRepo) GetProgressionSnapshot(ctx context.Context, characterID string) (*battle.CharacterSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	rec, ok := f.records[characterID]
	if !ok {
		return nil, interfaces.ErrCharacterNotFound
	}
	return rec.Snapshot(), nil
}

func (f *fakeCharacterRepo) GetCharacterLevel(ctx context.Context, characterID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[characterID]
	if !ok {
		return 0, interfaces.ErrCharacterNotFound
	}
	return rec.Level, nil
}

func (f *fakeCharacterRepo) CharacterExists(ctx context.Context, characterID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[characterID]
	return ok, nil
}

func (f *fakeCharacterRepo) CreateCharacter(ctx context.Context, rec *battle.CharacterRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.ID]; ok {
		return interfaces.ErrCharacterExists
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeCharacterRepo) ApplyRewards(ctx context.Context, characterID string, merge interfaces.RewardMerger) (*battle.CharacterRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	if f.checkCtx {
		f.ctxErrSeen = ctx.Err()
	}
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	rec, ok := f.records[characterID]
	if !ok {
		return nil, interfaces.ErrCharacterNotFound
	}
	working := *rec
	working.Inventory = append([]battle.InventoryItem(nil), rec.Inventory...)
	working.Progression.CompletedStages = append([]string(nil), rec.Progression.CompletedStages...)
	if err := merge(&working); err != nil {
		return nil, err
	}
	f.records[characterID] = &working
	out := working
	return &out, nil
}

type publishedEvent struct {
	subject string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{subject: subject, payload: payload})
	return p.err
}

func (p *fakePublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.subject)
	}
	return out
}

func newTestMetrics() *metrics.BattleMetrics {
	return metrics.NewBattleMetricsWithRegistry("test", prometheus.NewRegistry())
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		Backend:   "memory",
		TTL:       DefaultSessionTTL,
		Retention: 10 * time.Minute,
		KeyPrefix: "battle:session:",
	}
}

// newTestRegistry 进程内存储 + 假时钟
func newTestRegistry(t *testing.T, clock *fakeClock, m *metrics.BattleMetrics) (*SessionRegistry, *sessioncache.Store) {
	t.Helper()
	store := sessioncache.New(m, log.Discard()).WithClock(clock.Now)
	registry := NewSessionRegistry(store, testSessionConfig(), m, log.Discard()).WithClock(clock.Now)
	return registry, store
}

// eightMobSession 8 只怪、总血量 4000、创建 60 秒后被领取
func eightMobSession() *battle.BattleSession {
	mobs := make([]battle.MobEntry, 8)
	for i := range mobs {
		mobs[i] = battle.MobEntry{MobTypeID: "skeleton", Name: "Skeleton", Role: battle.MobRoleNormal, HP: 500, Attack: 20}
	}
	consumed := testEpoch.Add(60 * time.Second)
	return &battle.BattleSession{
		Token:       "tok-1",
		CharacterID: "char-1",
		Chapter:     2,
		Stage:       3,
		Mobs:        mobs,
		Rewards: battle.RewardBundle{
			XP: 420, Gold: 380, Gems: 2,
			Items: []battle.RewardItem{{ItemID: "gear_ring_rare_c2", Name: "Pristine Ring", Rarity: "rare", Quantity: 1}},
		},
		CreatedAt:  testEpoch,
		ExpiresAt:  testEpoch.Add(DefaultSessionTTL),
		State:      battle.SessionConsumed,
		ConsumedAt: &consumed,
	}
}

// legitLog 与 eightMobSession 匹配的正常战斗日志
func legitLog() *battle.BattleLog {
	stamps := []int64{3000, 7100, 10500, 14800, 18000, 22600, 25900, 29700}
	kills := make([]battle.MobKill, len(stamps))
	for i, ts := range stamps {
		kills[i] = battle.MobKill{MobIndex: i, DamageDealt: 500, TimestampMs: ts}
	}
	return &battle.BattleLog{
		SessionToken: "tok-1",
		Chapter:      2,
		Stage:        3,
		Stats: battle.BattleStats{
			TotalDamageDealt:    4000,
			TotalDamageReceived: 350,
			MobsKilled:          8,
			DurationMs:          30000,
		},
		MobKills: kills,
	}
}
