package redis

import (
	"context"
	"sort"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"

	"github.com/warriorguo/dagflow/store"
	"github.com/warriorguo/dagflow/types"
)

var (
	_ store.Store = &redisStore{}
)

// redisStore keeps every prefix in a hash named <namespace>:<prefix>,
// the hash fields being the keys.
type redisStore struct {
	client    *redis.Client
	namespace string
	owned     bool
}

// NewRedisStore connects with config and checks the connection.
func NewRedisStore(ctx context.Context, config *types.RedisConfig) (store.Store, error) {
	if config == nil {
		return nil, errors.BadRequestf("redis config is nil")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Annotatef(err, "failed to ping redis %s", config.Addr)
	}

	s := newRedisStore(client, config.KeyPrefix)
	s.owned = true
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client. Close leaves the client open.
func NewRedisStoreWithClient(client *redis.Client, namespace string) (store.Store, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	return newRedisStore(client, namespace), nil
}

func newRedisStore(client *redis.Client, namespace string) *redisStore {
	if namespace == "" {
		namespace = "dagflow"
	}
	return &redisStore{client: client, namespace: namespace}
}

func (r *redisStore) hashKey(prefix string) string {
	return r.namespace + ":" + prefix
}

func (r *redisStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	value, err := r.client.HGet(ctx, r.hashKey(prefix), key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.Annotatef(err, "failed to get value for prefix=%s, key=%s", prefix, key)
	}
	return value, nil
}

func (r *redisStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	if err := r.client.HSet(ctx, r.hashKey(prefix), key, value).Err(); err != nil {
		return errors.Annotatef(err, "failed to set value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (r *redisStore) Remove(ctx context.Context, prefix, key string) error {
	if err := r.client.HDel(ctx, r.hashKey(prefix), key).Err(); err != nil {
		return errors.Annotatef(err, "failed to remove value for prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (r *redisStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	keys, err := r.client.HKeys(ctx, r.hashKey(prefix)).Result()
	if err != nil {
		return errors.Annotatef(err, "failed to list keys for prefix=%s", prefix)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !iterator(key) {
			break
		}
	}
	return nil
}

func (r *redisStore) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
