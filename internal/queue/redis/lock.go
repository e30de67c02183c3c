package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fast-queue/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const lockKeyPrefix = "queue_lock:"

// Only the holder's token may release the key.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a queue.Locker shared by every instance pointing at the same
// redis. The TTL bounds how long a crashed holder can block a queue.
type Redis struct {
	Client        *redis.Client
	Logger        *logger.Logger
	TTL           time.Duration
	RetryInterval time.Duration
}

func NewRedis(client *redis.Client, ttl, retry time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Redis{
		Client:        client,
		Logger:        log,
		TTL:           ttl,
		RetryInterval: retry,
	}
}

// TryLock makes a single SetNX attempt.
func (r *Redis) TryLock(ctx context.Context, key, token string) (bool, error) {
	return r.Client.SetNX(ctx, lockKeyPrefix+key, token, r.TTL).Result()
}

// Lock blocks until the key is acquired or ctx ends.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(r.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.TryLock(ctx, key, token)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					if err := r.Unlock(context.Background(), key, token); err != nil {
						r.Logger.Warn("REDIS", fmt.Sprintf("Failed to release lock %s: %v", key, err))
					}
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unlock deletes the key if token still owns it.
func (r *Redis) Unlock(ctx context.Context, key, token string) error {
	return unlockScript.Run(ctx, r.Client, []string{lockKeyPrefix + key}, token).Err()
}

// IsLocked reports whether anyone holds key.
func (r *Redis) IsLocked(ctx context.Context, key string) (bool, error) {
	_, err := r.Client.Get(ctx, lockKeyPrefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
