package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "pulsewatch:lock:"

	// How long a blocking Acquire holds its lease before Redis expires it.
	// Long enough for any single ingest transaction.
	acquireTTL = 30 * time.Second

	// Poll interval while waiting for a contended key.
	retryInterval = 50 * time.Millisecond
)

// releaseScript deletes the lock only if the caller's token still owns it,
// so an expired-then-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker is a KeyedLocker backed by Redis SET NX PX leases. Use it when
// more than one instance ingests webhooks or runs the scheduler.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker connects to Redis and verifies the connection
func NewRedisLocker(redisURL string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisLocker{client: client}, nil
}

// Acquire polls until the key's lease is taken or the context is done
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		release, ok, err := l.TryAcquire(ctx, key, acquireTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}

		select {
		case <-time.After(retryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryAcquire attempts a single SET NX PX on the key
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.New().String()
	fullKey := keyPrefix + key

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil && err != redis.Nil {
			log.Printf("Failed to release lock %s: %v", key, err)
		}
	}
	return release, true, nil
}

// Close closes the underlying Redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
