package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/dagflow/store"
	"github.com/warriorguo/dagflow/types"
)

func newTestStore(t *testing.T) (store.Store, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	s, err := NewRedisStore(context.Background(), &types.RedisConfig{
		Addr:      server.Addr(),
		KeyPrefix: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.(*redisStore).Close() })
	return s, server
}

func TestRedisStore_SetAndGet(t *testing.T) {
	s, server := newTestStore(t)
	ctx := context.Background()

	assert.Nil(t, s.Set(ctx, "/instance/", "i-1", []byte("snapshot")))

	value, err := s.Get(ctx, "/instance/", "i-1")
	assert.Nil(t, err)
	assert.Equal(t, []byte("snapshot"), value)

	value, err = s.Get(ctx, "/instance/", "missing")
	assert.Nil(t, err)
	assert.Nil(t, value)

	value, err = s.Get(ctx, "/other/", "i-1")
	assert.Nil(t, err)
	assert.Nil(t, value)

	assert.Equal(t, "snapshot", server.HGet("test:/instance/", "i-1"))
}

func TestRedisStore_RemoveAndList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Set(ctx, "/record/i-1", k, []byte(k)))
	}
	assert.Nil(t, s.Remove(ctx, "/record/i-1", "b"))
	assert.Nil(t, s.Remove(ctx, "/record/i-1", "not-there"))

	keys := make([]string, 0)
	assert.Nil(t, s.List(ctx, "/record/i-1", func(key string) bool {
		keys = append(keys, key)
		return true
	}))
	assert.Equal(t, []string{"a", "c"}, keys)

	keys = keys[:0]
	assert.Nil(t, s.List(ctx, "/record/i-1", func(key string) bool {
		keys = append(keys, key)
		return false
	}))
	assert.Equal(t, []string{"a"}, keys)

	count := 0
	assert.Nil(t, s.List(ctx, "/empty/", func(string) bool {
		count++
		return true
	}))
	assert.Equal(t, 0, count)
}

func TestRedisStore_ServerDown(t *testing.T) {
	s, server := newTestStore(t)
	server.Close()

	ctx := context.Background()
	assert.NotNil(t, s.Set(ctx, "/instance/", "i-1", []byte("x")))
	_, err := s.Get(ctx, "/instance/", "i-1")
	assert.NotNil(t, err)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	addr := server.Addr()
	server.Close()

	_, err = NewRedisStore(context.Background(), &types.RedisConfig{Addr: addr})
	assert.NotNil(t, err)

	_, err = NewRedisStore(context.Background(), nil)
	assert.NotNil(t, err)
}

func TestNewRedisStoreWithClient(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	s, err := NewRedisStoreWithClient(client, "")
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "p", "k", []byte("v")))
	assert.Equal(t, "v", server.HGet("dagflow:p", "k"))

	// Close does not own the client
	assert.Nil(t, s.(*redisStore).Close())
	assert.Nil(t, client.Ping(context.Background()).Err())

	_, err = NewRedisStoreWithClient(nil, "x")
	assert.NotNil(t, err)
}
