package tasks

import (
	"database/sql"

	"github.com/robfig/cron/v3"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/redis"
)

// PoolStatsTask 定时上报数据库与 Redis 连接池指标
type PoolStatsTask struct {
	db      *sql.DB
	dbName  string
	maxOpen int
	redis   *redis.Client
	spec    string
	logger  log.Logger
	cron    *cron.Cron
}

// NewPoolStatsTask 创建连接池监控任务, db 与 redisClient 均可为 nil
func NewPoolStatsTask(db *sql.DB, dbName string, maxOpen int, redisClient *redis.Client, spec string, logger log.Logger) *PoolStatsTask {
	return &PoolStatsTask{
		db:      db,
		dbName:  dbName,
		maxOpen: maxOpen,
		redis:   redisClient,
		spec:    spec,
		logger:  logger,
	}
}

// Start 启动定时任务
func (t *PoolStatsTask) Start() error {
	t.cron = cron.New(cron.WithSeconds())

	// Cron 表达式: 秒 分 时 日 月 周
	if _, err := t.cron.AddFunc(t.spec, t.RunOnce); err != nil {
		t.logger.Error("【定时任务】添加连接池监控任务失败", err, "spec", t.spec)
		return err
	}

	t.cron.Start()
	t.logger.Info("【定时任务】连接池监控已启动", "spec", t.spec)
	return nil
}

// RunOnce 采集一次连接池状态
func (t *PoolStatsTask) RunOnce() {
	if t.db != nil {
		stats := t.db.Stats()
		metrics.DefaultResourceMetrics.RecordDBPoolStats(
			metrics.GetServiceName(),
			t.dbName,
			stats.OpenConnections,
			stats.InUse,
			stats.Idle,
			t.maxOpen,
			stats.WaitCount,
			stats.WaitDuration,
		)
	}
	if t.redis != nil {
		t.redis.RecordPoolStats()
	}
}

// Stop 停止定时任务（优雅关闭）
func (t *PoolStatsTask) Stop() {
	if t.cron != nil {
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("【定时任务】连接池监控已停止")
	}
}
