package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BattleMetrics 关卡战斗与防作弊指标
type BattleMetrics struct {
	SessionsIssued       *prometheus.CounterVec
	SessionClaims        *prometheus.CounterVec
	ValidationRejections *prometheus.CounterVec
	Settlements          *prometheus.CounterVec
	RewardsGranted       *prometheus.CounterVec
	BattleDuration       prometheus.Histogram
	SuspicionScore       prometheus.Histogram
	MemorySessions       prometheus.Gauge
}

// DefaultBattleMetrics 注册在默认注册表上的实例
var DefaultBattleMetrics = NewBattleMetricsWithRegistry(Namespace, prometheus.DefaultRegisterer)

// BattleBuckets 关卡战斗时长，单位秒
var BattleBuckets = []float64{5, 15, 30, 60, 120, 180, 300, 600}

// NewBattleMetricsWithRegistry 使用指定注册表创建战斗指标
func NewBattleMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *BattleMetrics {
	factory := promauto.With(registerer)

	return &BattleMetrics{
		SessionsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "sessions_issued_total",
				Help:      "Battle sessions issued, by stage kind (normal/mini_boss/boss)",
			},
			[]string{"stage_kind"},
		),
		SessionClaims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "session_claims_total",
				Help:      "Battle session claim attempts by result",
			},
			[]string{"result"},
		),
		ValidationRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "validation_rejections_total",
				Help:      "Battle logs rejected by the outcome validator, by reason",
			},
			[]string{"reason"},
		),
		Settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "settlements_total",
				Help:      "Reward settlements by result",
			},
			[]string{"result"},
		),
		RewardsGranted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "rewards_granted_total",
				Help:      "Currency granted through settlements",
			},
			[]string{"currency"},
		),
		BattleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "duration_seconds",
				Help:      "Client reported duration of accepted battles",
				Buckets:   BattleBuckets,
			},
		),
		SuspicionScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "suspicion_score",
				Help:      "Suspicion score of submitted battle logs (0..1)",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.5, 0.7, 0.9, 1},
			},
		),
		MemorySessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "memory_sessions",
				Help:      "Session records held by the in-process session store",
			},
		),
	}
}

// RecordIssued 记录会话发放
func (m *BattleMetrics) RecordIssued(stageKind string) {
	m.SessionsIssued.WithLabelValues(stageKind).Inc()
}

// RecordClaim 记录领取结果 (succeeded/not_found/consumed/expired/error)
func (m *BattleMetrics) RecordClaim(result string) {
	m.SessionClaims.WithLabelValues(result).Inc()
}

// RecordRejection 记录校验拒绝
func (m *BattleMetrics) RecordRejection(reason string, suspicion float64) {
	m.ValidationRejections.WithLabelValues(reason).Inc()
	m.SuspicionScore.Observe(suspicion)
}

// RecordAccepted 记录通过校验的战斗
func (m *BattleMetrics) RecordAccepted(durationMs int64, suspicion float64) {
	m.BattleDuration.Observe(float64(durationMs) / 1000)
	m.SuspicionScore.Observe(suspicion)
}

// RecordSettlement 记录结算结果与发放的货币
func (m *BattleMetrics) RecordSettlement(success bool, xp, gold, gems int64) {
	if !success {
		m.Settlements.WithLabelValues("error").Inc()
		return
	}
	m.Settlements.WithLabelValues("success").Inc()
	m.RewardsGranted.WithLabelValues("xp").Add(float64(xp))
	m.RewardsGranted.WithLabelValues("gold").Add(float64(gold))
	m.RewardsGranted.WithLabelValues("gems").Add(float64(gems))
}
