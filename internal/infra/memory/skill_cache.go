package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SkillLoader fetches the skill IDs of a challenge from the backing store.
type SkillLoader interface {
	ChallengeSkillIDs(ctx context.Context, challengeID string) ([]string, error)
}

// ChallengeSkillCache caches challenge skill sets with TTL to avoid repeated DB hits.
type ChallengeSkillCache struct {
	loader SkillLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSkills
}

type cachedSkills struct {
	skillIDs  []string
	expiresAt time.Time
}

func NewChallengeSkillCache(loader SkillLoader, ttl time.Duration) *ChallengeSkillCache {
	return &ChallengeSkillCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSkills),
	}
}

func (c *ChallengeSkillCache) ChallengeSkillIDs(ctx context.Context, challengeID string) ([]string, error) {
	if ids, ok := c.lookup(challengeID); ok {
		return ids, nil
	}

	result, err, _ := c.sf.Do(challengeID, func() (interface{}, error) {
		if ids, ok := c.lookup(challengeID); ok {
			return ids, nil
		}

		ids, err := c.loader.ChallengeSkillIDs(ctx, challengeID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[challengeID] = cachedSkills{
			skillIDs:  ids,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), result.([]string)...), nil
}

// Invalidate drops the cached skills of a challenge.
func (c *ChallengeSkillCache) Invalidate(_ context.Context, challengeID string) error {
	c.mu.Lock()
	delete(c.cache, challengeID)
	c.mu.Unlock()
	return nil
}

func (c *ChallengeSkillCache) lookup(challengeID string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[challengeID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return append([]string(nil), entry.skillIDs...), true
}

func (c *ChallengeSkillCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
