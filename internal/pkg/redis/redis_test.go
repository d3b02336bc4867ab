package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
)

func TestNewClientPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewClient(context.Background(), Config{Addr: mr.Addr(), PoolSize: 2}, "redis-test-ping")
	require.NoError(t, err)
	defer c.Close()

	ops := metrics.DefaultResourceMetrics.RedisOperations.WithLabelValues("PING", "success", "redis-test-ping")
	assert.Equal(t, 1.0, testutil.ToFloat64(ops))
}

func TestNewClientFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), Config{Addr: addr}, "redis-test-down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)

	errs := metrics.DefaultResourceMetrics.RedisErrors.WithLabelValues("operation_error", "redis-test-down")
	assert.Equal(t, 1.0, testutil.ToFloat64(errs))
}

func TestRunScriptRecordsOperation(t *testing.T) {
	mr := miniredis.RunT(t)
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "redis-test-script")
	defer c.Close()

	script := goredis.NewScript(`return redis.call("SET", KEYS[1], ARGV[1])`)
	_, err := c.RunScript(context.Background(), script, []string{"k"}, "v")
	require.NoError(t, err)

	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	ops := metrics.DefaultResourceMetrics.RedisOperations.WithLabelValues("EVALSHA", "success", "redis-test-script")
	assert.Equal(t, 1.0, testutil.ToFloat64(ops))
}
