package types

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := NewOptions()
	assert.Equal(t, context.Background(), opts.Ctx)
	assert.Equal(t, 1, opts.FanOutConcurrency)
	assert.True(t, opts.StrictDefinitions)
	assert.False(t, opts.JoinBarrier)
	assert.Equal(t, 10*time.Second, opts.ShutdownTimeout)
	assert.False(t, opts.MemStore)
	assert.Nil(t, opts.PostgresConfig)
	assert.Nil(t, opts.RedisConfig)
	assert.Nil(t, opts.MetricsRegisterer)
}

func TestWithPostgresConfig(t *testing.T) {
	config := &PostgresConfig{
		Host:     "dbhost",
		Port:     5433,
		User:     "user",
		Password: "pass",
		Database: "db",
		SSLMode:  "require",
	}

	opts := NewOptions()
	opt := WithPostgresConfig(config)
	opt(opts)

	assert.NotNil(t, opts.PostgresConfig)
	assert.Equal(t, "dbhost", opts.PostgresConfig.Host)
	assert.Equal(t, 5433, opts.PostgresConfig.Port)
	assert.Equal(t, "user", opts.PostgresConfig.User)
	assert.Equal(t, "pass", opts.PostgresConfig.Password)
	assert.Equal(t, "db", opts.PostgresConfig.Database)
	assert.Equal(t, "require", opts.PostgresConfig.SSLMode)
}

func TestMultipleOptions(t *testing.T) {
	opts := NewOptions()

	WithRedisConfig(&RedisConfig{Addr: "cache:6379"})(opts)
	SetFanOutConcurrency(8)(opts)
	EnableJoinBarrier()(opts)
	DisableStrictDefinitions()(opts)
	SetShutdownTimeout(time.Second)(opts)

	assert.Equal(t, "cache:6379", opts.RedisConfig.Addr)
	assert.Equal(t, 8, opts.FanOutConcurrency)
	assert.True(t, opts.JoinBarrier)
	assert.False(t, opts.StrictDefinitions)
	assert.Equal(t, time.Second, opts.ShutdownTimeout)
}

func TestLoadEnvOptions(t *testing.T) {
	t.Setenv("OPT_TEST_STORE", "redis")
	t.Setenv("OPT_TEST_FAN_OUT_CONCURRENCY", "4")
	t.Setenv("OPT_TEST_JOIN_BARRIER", "true")
	t.Setenv("OPT_TEST_REDIS_ADDR", "cache:6380")
	t.Setenv("OPT_TEST_REDIS_DB", "2")

	envOpts, err := LoadEnvOptions("OPT_TEST_")
	require.Nil(t, err)

	opts := NewOptions()
	for _, opt := range envOpts {
		opt(opts)
	}
	assert.Equal(t, 4, opts.FanOutConcurrency)
	assert.True(t, opts.JoinBarrier)
	assert.True(t, opts.StrictDefinitions)
	assert.Nil(t, opts.PostgresConfig)
	require.NotNil(t, opts.RedisConfig)
	assert.Equal(t, "cache:6380", opts.RedisConfig.Addr)
	assert.Equal(t, 2, opts.RedisConfig.DB)
	assert.Equal(t, "dagflow", opts.RedisConfig.KeyPrefix)
}

func TestEnvConfigOptions(t *testing.T) {
	cfg := &EnvConfig{Store: "postgres", FanOutConcurrency: 1, StrictDefinitions: true,
		Postgres: PostgresConfig{Host: "db", Port: 5432}}
	envOpts, err := cfg.Options()
	require.Nil(t, err)
	opts := NewOptions()
	for _, opt := range envOpts {
		opt(opts)
	}
	require.NotNil(t, opts.PostgresConfig)
	assert.Equal(t, "db", opts.PostgresConfig.Host)

	cfg = &EnvConfig{Store: "mem", FanOutConcurrency: 0}
	_, err = cfg.Options()
	assert.True(t, errors.Is(err, errors.NotValid))

	cfg = &EnvConfig{Store: "etcd", FanOutConcurrency: 1}
	_, err = cfg.Options()
	assert.True(t, errors.Is(err, errors.NotSupported))
}
