package service

import (
	"fmt"
	"slices"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/config"
)

const (
	// 低于此每怪平均用时视为可疑
	suspiciousMsPerMob = 3000
	// 击杀间隔方差低于此值视为脚本化 (ms²)
	suspiciousIntervalVariance = 100.0
	// 期望的单怪最快击杀用时，用于估计合理 DPS 上限
	expectedSecondsPerMob = 3.0
	// 整场可能承受伤害约为怪物攻击力之和的倍数
	incomingDamageFactor = 10
	// 承受伤害低于可能值的该比例视为可疑
	lowDamageTakenRatio = 0.1
)

// BattleValidator 战斗结果校验器
//
// 按固定顺序检查，第一个失败项决定拒绝原因。通过时奖励原样取自会话。
// 纯计算，不访问任何外部状态。
type BattleValidator struct {
	cfg config.ValidationConfig
}

// NewBattleValidator 创建校验器
func NewBattleValidator(cfg config.ValidationConfig) *BattleValidator {
	return &BattleValidator{cfg: cfg}
}

// Validate 校验客户端战斗日志
func (v *BattleValidator) Validate(session *battle.BattleSession, entry *battle.BattleLog) battle.Verdict {
	score := suspicionScore(session, entry)
	reject := func(reason battle.RejectReason, format string, args ...any) battle.Verdict {
		return battle.Verdict{
			Reason:         reason,
			Detail:         fmt.Sprintf(format, args...),
			SuspicionScore: score,
		}
	}

	if entry.Chapter != session.Chapter || entry.Stage != session.Stage {
		return reject(battle.RejectStageMismatch, "submitted=%d-%d session=%d-%d",
			entry.Chapter, entry.Stage, session.Chapter, session.Stage)
	}

	n := len(session.Mobs)
	if entry.Stats.MobsKilled != n || len(entry.MobKills) != n {
		return reject(battle.RejectKillCountMismatch, "mobs_killed=%d kill_records=%d roster=%d",
			entry.Stats.MobsKilled, len(entry.MobKills), n)
	}

	seen := make([]bool, n)
	for i, kill := range entry.MobKills {
		if kill.MobIndex < 0 || kill.MobIndex >= n {
			return reject(battle.RejectImplausibleDamage, "kill[%d] mob_index=%d out of range", i, kill.MobIndex)
		}
		if seen[kill.MobIndex] {
			return reject(battle.RejectImplausibleDamage, "kill[%d] mob_index=%d duplicated", i, kill.MobIndex)
		}
		seen[kill.MobIndex] = true

		hp := session.Mobs[kill.MobIndex].HP
		if limit := float64(hp) * (1 + v.cfg.OverkillTolerance); float64(kill.DamageDealt) > limit {
			return reject(battle.RejectImplausibleDamage, "kill[%d] damage=%d hp=%d limit=%.0f",
				i, kill.DamageDealt, hp, limit)
		}
	}

	totalHP := float64(battle.TotalHP(session.Mobs))
	floor := totalHP * v.cfg.DamageFloorRatio
	ceiling := totalHP * v.cfg.DamageCeilingRatio
	if dealt := float64(entry.Stats.TotalDamageDealt); dealt < floor || dealt > ceiling {
		return reject(battle.RejectImplausibleDamage, "total_damage=%d range=[%.0f, %.0f]",
			entry.Stats.TotalDamageDealt, floor, ceiling)
	}

	duration := entry.Stats.DurationMs
	minDuration := max(v.cfg.MinBattleMs, int64(n)*v.cfg.MinMsPerMob)
	if duration < minDuration {
		return reject(battle.RejectImplausibleDuration, "duration_ms=%d min=%d", duration, minDuration)
	}
	if v.cfg.MaxBattleBaseMs > 0 {
		if maxDuration := v.cfg.MaxBattleBaseMs + int64(n)*v.cfg.MaxMsPerMob; duration > maxDuration {
			return reject(battle.RejectImplausibleDuration, "duration_ms=%d max=%d", duration, maxDuration)
		}
	}
	if session.ConsumedAt != nil {
		if alive := session.Elapsed().Milliseconds() + v.cfg.ClockSkewMs; duration > alive {
			return reject(battle.RejectImplausibleDuration, "duration_ms=%d session_alive_ms=%d", duration, alive)
		}
	}

	return battle.Verdict{
		Accepted:       true,
		Rewards:        session.Rewards.Clone(),
		SuspicionScore: score,
	}
}

// suspicionScore 仅用于分析，不影响结论
func suspicionScore(session *battle.BattleSession, entry *battle.BattleLog) float64 {
	n := len(session.Mobs)
	if n == 0 || entry.Stats.DurationMs <= 0 {
		return 0
	}

	var score float64

	seconds := float64(entry.Stats.DurationMs) / 1000
	dps := float64(entry.Stats.TotalDamageDealt) / seconds
	expected := float64(battle.TotalHP(session.Mobs)) / (float64(n) * expectedSecondsPerMob)
	if expected > 0 && dps > expected {
		score += 0.4 * min(1, dps/expected-1)
	}

	var attack int64
	for _, m := range session.Mobs {
		attack += m.Attack
	}
	if potential := float64(attack * incomingDamageFactor); float64(entry.Stats.TotalDamageReceived) < potential*lowDamageTakenRatio {
		score += 0.2
	}

	if entry.Stats.DurationMs/int64(n) < suspiciousMsPerMob {
		score += 0.3
	}

	if variance, ok := killIntervalVariance(entry.MobKills); ok && variance < suspiciousIntervalVariance {
		score += 0.3
	}

	return min(score, 1)
}

func killIntervalVariance(kills []battle.MobKill) (float64, bool) {
	if len(kills) < 3 {
		return 0, false
	}
	stamps := make([]int64, 0, len(kills))
	for _, k := range kills {
		if k.TimestampMs <= 0 {
			return 0, false
		}
		stamps = append(stamps, k.TimestampMs)
	}
	slices.Sort(stamps)

	intervals := make([]float64, 0, len(stamps)-1)
	var sum float64
	for i := 1; i < len(stamps); i++ {
		d := float64(stamps[i] - stamps[i-1])
		intervals = append(intervals, d)
		sum += d
	}
	mean := sum / float64(len(intervals))
	var variance float64
	for _, d := range intervals {
		variance += (d - mean) * (d - mean)
	}
	return variance / float64(len(intervals)), true
}
