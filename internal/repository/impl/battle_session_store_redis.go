package impl

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	redisClient "github.com/Fishbowl37/RPG-Server/internal/pkg/redis"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"
)

// 会话以 hash 存储: owner / state / expires_at_ms / consumed_at_ms / payload
// payload 写入后不再改变，状态迁移只改 state 与 consumed_at_ms

var issueSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'state', ARGV[2], 'expires_at_ms', ARGV[3], 'payload', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// 返回 {status, payload, state, expires_at_ms, consumed_at_ms}
// status: 0 不存在/非本人, 1 状态不符, 2 已过期, 3 成功
var claimSessionScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'owner', 'state', 'expires_at_ms', 'payload', 'consumed_at_ms')
if not f[1] or f[1] ~= ARGV[1] then
	return {0, '', '', '', ''}
end
local consumed = f[5] or ''
if f[2] ~= ARGV[2] then
	return {1, f[4], f[2], f[3], consumed}
end
if tonumber(f[3]) <= tonumber(ARGV[4]) then
	return {2, f[4], f[2], f[3], consumed}
end
redis.call('HSET', KEYS[1], 'state', ARGV[3], 'consumed_at_ms', ARGV[4])
if tonumber(ARGV[5]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
end
return {3, f[4], ARGV[3], f[3], ARGV[4]}
`)

type battleSessionStoreRedis struct {
	client *redisClient.Client
}

// NewBattleSessionStore 创建基于 Redis 的战斗会话存储
func NewBattleSessionStore(client *redisClient.Client) interfaces.BattleSessionStore {
	return &battleSessionStoreRedis{client: client}
}

func (s *battleSessionStoreRedis) SetWithExpiry(ctx context.Context, key string, record interfaces.SessionRecord, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("会话 TTL 必须大于 0")
	}
	res, err := s.client.RunScript(ctx, issueSessionScript, []string{key},
		record.Owner,
		string(record.State),
		record.ExpiresAt.UnixMilli(),
		record.Payload,
		ttl.Milliseconds(),
	)
	if err != nil {
		return false, fmt.Errorf("写入战斗会话失败: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("写入战斗会话返回值异常: %T", res)
	}
	return n == 1, nil
}

func (s *battleSessionStoreRedis) CompareAndSwap(ctx context.Context, key string, cond interfaces.ClaimCondition) (interfaces.ClaimStatus, *interfaces.SessionRecord, error) {
	res, err := s.client.RunScript(ctx, claimSessionScript, []string{key},
		cond.Owner,
		string(cond.Expected),
		string(cond.Next),
		cond.Now.UnixMilli(),
		cond.Retain.Milliseconds(),
	)
	if err != nil {
		return interfaces.ClaimNotFound, nil, fmt.Errorf("领取战斗会话失败: %w", err)
	}

	fields, ok := res.([]interface{})
	if !ok || len(fields) != 5 {
		return interfaces.ClaimNotFound, nil, fmt.Errorf("领取战斗会话返回值异常: %v", res)
	}
	code, _ := fields[0].(int64)
	status := interfaces.ClaimStatus(code)
	if status == interfaces.ClaimNotFound {
		return status, nil, nil
	}

	record, err := decodeClaimedRecord(cond.Owner, fields[1:])
	if err != nil {
		return interfaces.ClaimNotFound, nil, err
	}
	return status, record, nil
}

func decodeClaimedRecord(owner string, fields []interface{}) (*interfaces.SessionRecord, error) {
	payload, _ := fields[0].(string)
	state, _ := fields[1].(string)
	expiresAtMs, err := parseMillis(fields[2])
	if err != nil {
		return nil, fmt.Errorf("解析会话过期时间失败: %w", err)
	}
	record := &interfaces.SessionRecord{
		Owner:     owner,
		State:     battle.ConsumptionState(state),
		ExpiresAt: time.UnixMilli(expiresAtMs),
		Payload:   []byte(payload),
	}
	if consumed, _ := fields[3].(string); consumed != "" {
		consumedAtMs, err := parseMillis(consumed)
		if err != nil {
			return nil, fmt.Errorf("解析会话领取时间失败: %w", err)
		}
		record.ConsumedAt = time.UnixMilli(consumedAtMs)
	}
	return record, nil
}

func parseMillis(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("无法识别的时间戳类型 %T", v)
	}
}
