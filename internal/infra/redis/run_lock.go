package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "risehigh:lock:"

// releaseScript deletes the lock only while it still carries our token, so
// an expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a Redis-backed implementation of app.RunLock shared by every
// service instance. Locks expire after ttl so a crashed holder cannot block
// a challenge forever.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	return &RunLock{
		client: client,
		ttl:    ttl,
		tokens: make(map[string]string),
	}
}

func (l *RunLock) Acquire(ctx context.Context, key string) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockPrefix+key, token, l.ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RunLock) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{lockPrefix + key}, token).Err()
}
