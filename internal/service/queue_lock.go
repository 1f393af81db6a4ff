package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// QueueLocker serializes distribution decisions per queue so concurrent
// assignments can neither reuse nor skip a cursor position.
type QueueLocker interface {
	Lock(ctx context.Context, queueID string) (func(), error)
}

// redisQueueLocker takes a short-lived SETNX lock per queue, which
// serializes resolvers across service replicas. The unlock script only
// deletes the key when the holder token still matches.
type redisQueueLocker struct {
	client *redis.Client
	ttl    time.Duration
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// NewRedisQueueLocker builds a redis-backed locker.
func NewRedisQueueLocker(client *redis.Client, ttl time.Duration) QueueLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &redisQueueLocker{client: client, ttl: ttl}
}

func (l *redisQueueLocker) Lock(ctx context.Context, queueID string) (func(), error) {
	key := "distribution_lock:" + queueID
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, apperrors.NewGatewayError(err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = unlockScript.Run(releaseCtx, l.client, []string{key}, token).Result()
	}
	return release, nil
}

// localQueueLocker is the single-process fallback used when redis is
// not configured.
type localQueueLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalQueueLocker builds an in-process locker.
func NewLocalQueueLocker() QueueLocker {
	return &localQueueLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localQueueLocker) Lock(_ context.Context, queueID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[queueID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[queueID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock, nil
}
