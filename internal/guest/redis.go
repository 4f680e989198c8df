package guest

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// redisBackend keeps guest state in Redis, for kiosk fleets that share a
// terminal-local store. Payloads are the same JSON documents the file
// backend writes.
type redisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string, opts ...Option) Store {
	return newStore(redisBackend{client: client, prefix: prefix}, opts...)
}

func (b redisBackend) name() string { return "redis" }

func (b redisBackend) key(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + ":" + key
}

func (b redisBackend) read(c context.Context, key string) ([]byte, bool, error) {
	payload, err := b.client.Get(c, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (b redisBackend) write(c context.Context, key string, payload []byte) error {
	return b.client.Set(c, b.key(key), payload, 0).Err()
}

func (b redisBackend) remove(c context.Context, key string) error {
	return b.client.Del(c, b.key(key)).Err()
}
