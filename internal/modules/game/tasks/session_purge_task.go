package tasks

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
)

// SessionPurger 可清理过期会话的存储
type SessionPurger interface {
	Purge(ctx context.Context) int
}

// SessionPurgeTask 定时清理内存会话存储中过期的战斗会话
type SessionPurgeTask struct {
	store  SessionPurger
	spec   string
	logger log.Logger
	cron   *cron.Cron
}

// NewSessionPurgeTask 创建会话清理任务
func NewSessionPurgeTask(store SessionPurger, spec string, logger log.Logger) *SessionPurgeTask {
	return &SessionPurgeTask{store: store, spec: spec, logger: logger}
}

// Start 启动定时任务
func (t *SessionPurgeTask) Start() error {
	t.cron = cron.New(cron.WithSeconds())

	if _, err := t.cron.AddFunc(t.spec, func() { t.RunOnce(context.Background()) }); err != nil {
		t.logger.Error("【定时任务】添加会话清理任务失败", err, "spec", t.spec)
		return err
	}

	t.cron.Start()
	t.logger.Info("【定时任务】会话清理已启动", "spec", t.spec)
	return nil
}

// RunOnce 执行一次清理, 返回删除的会话数
func (t *SessionPurgeTask) RunOnce(ctx context.Context) int {
	removed := t.store.Purge(ctx)
	if removed > 0 {
		t.logger.Info("【定时任务】过期战斗会话清理完成", "deleted_count", removed)
	}
	return removed
}

// Stop 停止定时任务
func (t *SessionPurgeTask) Stop() {
	if t.cron != nil {
		<-t.cron.Stop().Done()
		t.logger.Info("【定时任务】会话清理已停止")
	}
}
