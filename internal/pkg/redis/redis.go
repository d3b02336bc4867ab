package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
)

// Config 连接参数
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Client 带资源指标的 go-redis 客户端
type Client struct {
	*redis.Client
	service string
}

const dialTimeout = 5 * time.Second

// NewClient 建立连接并 PING 一次，失败时关闭连接
func NewClient(ctx context.Context, cfg Config, service string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: dialTimeout,
	})

	c := Wrap(rdb, service)
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := c.Healthy(pingCtx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败 (%s): %w", cfg.Addr, err)
	}
	return c, nil
}

// Wrap 包装已有连接，service 为空时取全局服务名
func Wrap(rdb *redis.Client, service string) *Client {
	if service == "" {
		service = metrics.GetServiceName()
	}
	return &Client{Client: rdb, service: service}
}

// RunScript EVALSHA，脚本未缓存时 go-redis 自动回退 EVAL
func (c *Client) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	start := time.Now()
	result, err := script.Run(ctx, c.Client, keys, args...).Result()
	c.observe("EVALSHA", err, time.Since(start))
	return result, err
}

// Healthy PING 并计入指标
func (c *Client) Healthy(ctx context.Context) error {
	start := time.Now()
	err := c.Ping(ctx).Err()
	c.observe("PING", err, time.Since(start))
	return err
}

// RecordPoolStats 由定时任务调用
func (c *Client) RecordPoolStats() {
	stats := c.PoolStats()
	metrics.DefaultResourceMetrics.RecordRedisPoolStats(
		int(stats.TotalConns),
		int(stats.IdleConns),
		int(stats.StaleConns),
		c.service,
	)
}

func (c *Client) observe(operation string, err error, duration time.Duration) {
	success := err == nil || errors.Is(err, redis.Nil)
	metrics.DefaultResourceMetrics.RecordRedisOperation(operation, success, duration, c.service)
	if success {
		return
	}
	errorType := "operation_error"
	if errors.Is(err, context.DeadlineExceeded) {
		errorType = "timeout"
	}
	metrics.DefaultResourceMetrics.RecordRedisError(errorType, c.service)
}
