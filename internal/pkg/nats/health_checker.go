package nats

import (
	"context"
	"sync"
	"time"
)

// Conn 健康检查所需的连接状态，*nats.Conn 满足该接口
type Conn interface {
	IsConnected() bool
	IsClosed() bool
}

// HealthChecker NATS 连接健康检查器
//
// 事件发布是尽力而为的，连接断开只影响 /health 的 nats 字段，不影响结算。
type HealthChecker struct {
	conn     Conn
	healthy  bool
	checked  time.Time
	mutex    sync.RWMutex
	interval time.Duration
	now      func() time.Time
}

// NewHealthChecker 创建健康检查器；conn 为 nil 表示未配置 NATS
func NewHealthChecker(conn Conn, checkInterval time.Duration) *HealthChecker {
	if checkInterval <= 0 {
		checkInterval = 10 * time.Second
	}

	hc := &HealthChecker{
		conn:     conn,
		interval: checkInterval,
		now:      time.Now,
	}
	hc.checkHealth()
	return hc
}

// Start 周期检查，直到 ctx 结束
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hc.checkHealth()
		}
	}
}

// IsHealthy 最近一次检查结果
func (hc *HealthChecker) IsHealthy() bool {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()
	return hc.healthy
}

// Status 供 /health 使用: disabled / up / down
func (hc *HealthChecker) Status() string {
	if hc.conn == nil {
		return "disabled"
	}
	if hc.IsHealthy() {
		return "up"
	}
	return "down"
}

// LastChecked 最近一次检查时间
func (hc *HealthChecker) LastChecked() time.Time {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()
	return hc.checked
}

func (hc *HealthChecker) checkHealth() {
	healthy := hc.conn != nil && hc.conn.IsConnected() && !hc.conn.IsClosed()

	hc.mutex.Lock()
	hc.healthy = healthy
	hc.checked = hc.now()
	hc.mutex.Unlock()
}
