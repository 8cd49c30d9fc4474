package consensus

import (
	"time"

	lru "github.com/hashicorp/golang-lru"

	"eth_stats_api/internal/domain"
)

// EpochRewardsCache keeps attestation reward totals for finalized epochs.
type EpochRewardsCache struct {
	lruCache *lru.Cache
	ttl      time.Duration
}

type cacheEntry struct {
	rewards domain.EpochRewards
	ts      time.Time
}

func NewEpochRewardsCache(maxEntries int, ttl time.Duration) (*EpochRewardsCache, error) {
	c, err := lru.New(maxEntries)
	if err != nil {
		return nil, err
	}
	return &EpochRewardsCache{
		lruCache: c,
		ttl:      ttl,
	}, nil
}

func (c *EpochRewardsCache) Get(epoch uint64) (domain.EpochRewards, bool) {
	raw, ok := c.lruCache.Get(epoch)
	if !ok {
		return domain.EpochRewards{}, false
	}
	e := raw.(cacheEntry)
	if time.Since(e.ts) > c.ttl {
		c.lruCache.Remove(epoch)
		return domain.EpochRewards{}, false
	}
	return e.rewards, true
}

func (c *EpochRewardsCache) Add(epoch uint64, rewards domain.EpochRewards) {
	c.lruCache.Add(epoch, cacheEntry{
		rewards: rewards,
		ts:      time.Now(),
	})
}
