package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only while it still holds our token, so a
// replica whose lease expired cannot drop the lease of the next holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLease struct {
	client *redis.Client
	prefix string
}

func NewRedisLease(ctx context.Context, addr string) (*RedisLease, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	c := redis.NewClient(opts)

	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return &RedisLease{client: c, prefix: "rsvpbot:lease:"}, nil
}

func (rl *RedisLease) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := rl.client.SetNX(ctx, rl.prefix+name, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("error acquiring lease %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (rl *RedisLease) Release(ctx context.Context, name, token string) error {
	err := releaseScript.Run(ctx, rl.client, []string{rl.prefix + name}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("error releasing lease %s: %w", name, err)
	}
	return nil
}

func (rl *RedisLease) Close() error {
	if err := rl.client.Close(); err != nil {
		return fmt.Errorf("error closing redis client: %w", err)
	}
	return nil
}
