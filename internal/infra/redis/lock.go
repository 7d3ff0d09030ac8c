package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"course-billing/internal/domain"
)

// Locker is a best-effort distributed mutex. The webhook handler holds it per
// provider payment id so retried deliveries of the same notification are
// serialized instead of racing each other; correctness still rests on the
// conditional writes underneath.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type RedisLocker struct {
	cli *redis.Client
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli}
}

// TryLock returns ErrWebhookInFlight only when another holder was observed.
// A redis failure surfaces as its own error so callers can fail open.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < 5; i++ { // 5 tries
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return token, nil
		}
		lastErr = nil
		time.Sleep(50 * time.Millisecond) // wait before retrying
	}
	if lastErr != nil {
		return "", fmt.Errorf("acquire lock: %w", lastErr)
	}
	return "", domain.ErrWebhookInFlight
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}

func WebhookKey(paymentID string) string {
	return fmt.Sprintf("webhook_lock:%s", paymentID)
}
