package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

var (
	ncMu sync.RWMutex
	nc   *nats.Conn
)

// SetNatsConn 设置全局 NATS 连接（由 main 提供）
func SetNatsConn(conn *nats.Conn) {
	ncMu.Lock()
	defer ncMu.Unlock()
	nc = conn
}

// Conn 当前的全局连接，未设置时为 nil
func Conn() *nats.Conn {
	ncMu.RLock()
	defer ncMu.RUnlock()
	return nc
}

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

type natsPublisher struct{}

// NewPublisher 返回使用全局 NATS 连接的发布器
func NewPublisher() Publisher {
	return natsPublisher{}
}

func (natsPublisher) Publish(ctx context.Context, subject string, payload any) error {
	return PublishBattleEvent(ctx, subject, payload)
}

// PublishBattleEvent 发布战斗相关事件
func PublishBattleEvent(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ncMu.RLock()
	conn := nc
	ncMu.RUnlock()
	if conn == nil {
		return nil // 没有连接时静默降级
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal battle event failed: %w", err)
	}
	return conn.Publish(subject, data)
}

// 事件后缀，完整 subject 为 <prefix>.<event>
const (
	EventBattleRejected = "rejected"
	EventBattleSettled  = "settled"
)

// Subject 拼接 subject
func Subject(prefix, event string) string {
	if prefix == "" {
		return event
	}
	return prefix + "." + event
}
