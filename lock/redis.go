package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock key only if this holder still owns it, so
// a lock that expired and was re-acquired elsewhere is not released by the
// old holder.
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// RedisLocker implements Locker on Redis SET NX, for deployments running
// several engine instances against the same store. The TTL bounds how long
// a crashed instance can keep a conversation locked.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a Redis-backed locker. A zero ttl defaults to 30s.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "stepflow:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire takes the conversation's lock or fails with ErrConversationBusy.
func (l *RedisLocker) Acquire(ctx context.Context, conversationID string) (ReleaseFunc, error) {
	key := l.prefix + "lock:" + conversationID
	holder := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, holder, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error acquiring lock: %w", err)
	}
	if !ok {
		return nil, ErrConversationBusy
	}

	return func() {
		// Best effort; the TTL reclaims the lock if the release is lost.
		_ = l.client.Eval(context.Background(), unlockScript, []string{key}, holder).Err()
	}, nil
}
