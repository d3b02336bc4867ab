package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/xerrors"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

type failingSessionStore struct {
	err error
}

func (f failingSessionStore) SetWithExpiry(context.Context, string, interfaces.SessionRecord, time.Duration) (bool, error) {
	return false, f.err
}

func (f failingSessionStore) CompareAndSwap(context.Context, string, interfaces.ClaimCondition) (interfaces.ClaimStatus, *interfaces.SessionRecord, error) {
	return interfaces.ClaimNotFound, nil, f.err
}

func issueTestSession(t *testing.T, r *SessionRegistry) (string, *battle.BattleSession) {
	t.Helper()
	session := eightMobSession()
	session.Token = ""
	session.ConsumedAt = nil
	token, err := r.Issue(context.Background(), session)
	require.NoError(t, err)
	return token, session
}

func TestSessionRegistry_IssueAndClaim(t *testing.T) {
	clock := newFakeClock()
	m := newTestMetrics()
	registry, _ := newTestRegistry(t, clock, m)

	token, issued := issueTestSession(t, registry)
	require.NotEmpty(t, token)
	assert.Equal(t, testEpoch.Add(600*time.Second), issued.ExpiresAt)
	assert.Equal(t, battle.SessionActive, issued.State)

	clock.Advance(45 * time.Second)
	claimed, err := registry.Claim(context.Background(), token, "char-1")
	require.NoError(t, err)
	assert.Equal(t, battle.SessionConsumed, claimed.State)
	require.NotNil(t, claimed.ConsumedAt)
	assert.Equal(t, 45*time.Second, claimed.Elapsed())
	assert.Equal(t, issued.Rewards, claimed.Rewards)
	assert.Equal(t, issued.Mobs, claimed.Mobs)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionClaims.WithLabelValues("succeeded")))
}

func TestSessionRegistry_SecondClaimIsConsumed(t *testing.T) {
	clock := newFakeClock()
	registry, _ := newTestRegistry(t, clock, newTestMetrics())
	token, _ := issueTestSession(t, registry)

	_, err := registry.Claim(context.Background(), token, "char-1")
	require.NoError(t, err)

	_, err = registry.Claim(context.Background(), token, "char-1")
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionConsumed))
}

func TestSessionRegistry_ExpiredSession(t *testing.T) {
	clock := newFakeClock()
	registry, _ := newTestRegistry(t, clock, newTestMetrics())
	token, _ := issueTestSession(t, registry)

	clock.Advance(600 * time.Second)
	_, err := registry.Claim(context.Background(), token, "char-1")
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionExpired))
}

func TestSessionRegistry_ForeignCharacterCannotConsume(t *testing.T) {
	clock := newFakeClock()
	registry, _ := newTestRegistry(t, clock, newTestMetrics())
	token, _ := issueTestSession(t, registry)

	_, err := registry.Claim(context.Background(), token, "char-2")
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionNotFound))

	_, err = registry.Claim(context.Background(), token, "char-1")
	require.NoError(t, err, "他人的提交不能消耗会话")
}

func TestSessionRegistry_UnknownAndEmptyToken(t *testing.T) {
	registry, _ := newTestRegistry(t, newFakeClock(), newTestMetrics())

	_, err := registry.Claim(context.Background(), "no-such-token", "char-1")
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionNotFound))

	_, err = registry.Claim(context.Background(), "", "char-1")
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionNotFound))
}

func TestSessionRegistry_RecordGoneAfterRetention(t *testing.T) {
	clock := newFakeClock()
	registry, store := newTestRegistry(t, clock, newTestMetrics())
	token, _ := issueTestSession(t, registry)

	_, err := registry.Claim(context.Background(), token, "char-1")
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	_, err = registry.Claim(context.Background(), token, "char-1")
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionConsumed))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, store.Purge(context.Background()))
	_, err = registry.Claim(context.Background(), token, "char-1")
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionNotFound))
}

func TestSessionRegistry_TokenCollision(t *testing.T) {
	clock := newFakeClock()
	registry, _ := newTestRegistry(t, clock, newTestMetrics())
	registry.WithTokenSource(func() string { return "fixed-token" })

	_, _ = issueTestSession(t, registry)

	session := eightMobSession()
	_, err := registry.Issue(context.Background(), session)
	require.Error(t, err)
	assert.True(t, xerrors.IsCode(err, xerrors.CodeBattleSessionCollision))
}

func TestSessionRegistry_StoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	registry := NewSessionRegistry(failingSessionStore{err: boom}, testSessionConfig(), newTestMetrics(), log.Discard())

	_, err := registry.Issue(context.Background(), eightMobSession())
	assert.True(t, xerrors.IsCode(err, xerrors.CodeCacheError))
	assert.ErrorIs(t, err, boom)

	_, err = registry.Claim(context.Background(), "tok", "char-1")
	assert.True(t, xerrors.IsCode(err, xerrors.CodeCacheError))
}

func TestSessionRegistry_ConcurrentClaimsExactlyOneWins(t *testing.T) {
	clock := newFakeClock()
	registry, _ := newTestRegistry(t, clock, newTestMetrics())
	token, _ := issueTestSession(t, registry)

	var wins, consumed atomic.Int32
	var g errgroup.Group
	for range 64 {
		g.Go(func() error {
			_, err := registry.Claim(context.Background(), token, "char-1")
			switch {
			case err == nil:
				wins.Add(1)
			case xerrors.IsCode(err, xerrors.CodeBattleSessionConsumed):
				consumed.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(63), consumed.Load())
}

func TestTokenFingerprint(t *testing.T) {
	fp := TokenFingerprint("6f1c7c1e-8d7a-4a43-9d1a-2b8e6a0c1d55")
	assert.Len(t, fp, 12)
	assert.Equal(t, fp, TokenFingerprint("6f1c7c1e-8d7a-4a43-9d1a-2b8e6a0c1d55"))
	assert.Empty(t, TokenFingerprint(""))
}
