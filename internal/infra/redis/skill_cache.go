package redis

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SkillLoader fetches the skill IDs of a challenge from the backing store.
type SkillLoader interface {
	ChallengeSkillIDs(ctx context.Context, challengeID string) ([]string, error)
}

// ChallengeSkillCache caches challenge skill sets in Redis and falls back to a loader on cache miss.
// Skills are stored as: SET risehigh:challenge:{challengeID}:skills "{skillID},{skillID}"
// An empty value is a cached empty set.
type ChallengeSkillCache struct {
	client *redis.Client
	loader SkillLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewChallengeSkillCache(client *redis.Client, loader SkillLoader, ttl time.Duration) *ChallengeSkillCache {
	return &ChallengeSkillCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ChallengeSkillCache) ChallengeSkillIDs(ctx context.Context, challengeID string) ([]string, error) {
	key := c.key(challengeID)
	if ids, ok := c.cached(ctx, key); ok {
		return ids, nil
	}

	result, err, _ := c.sf.Do(challengeID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if ids, ok := c.cached(ctx, key); ok {
			return ids, nil
		}

		ids, err := c.loader.ChallengeSkillIDs(ctx, challengeID)
		if err != nil {
			return nil, err
		}
		// best-effort; a failed write only costs another load
		_ = c.client.Set(ctx, key, strings.Join(ids, ","), c.ttlWithJitter()).Err()
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), result.([]string)...), nil
}

// Invalidate drops the cached skills of a challenge.
func (c *ChallengeSkillCache) Invalidate(ctx context.Context, challengeID string) error {
	return c.client.Del(ctx, c.key(challengeID)).Err()
}

func (c *ChallengeSkillCache) cached(ctx context.Context, key string) ([]string, bool) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	if raw == "" {
		return []string{}, true
	}
	return strings.Split(raw, ","), true
}

func (c *ChallengeSkillCache) key(challengeID string) string {
	return "risehigh:challenge:" + challengeID + ":skills"
}

func (c *ChallengeSkillCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
