package store

import (
	"time"

	lru "github.com/hashicorp/golang-lru"

	"eth_stats_api/internal/domain"
)

// RecordCache holds assembled Ethereum records keyed by the last collected epoch.
type RecordCache struct {
	lruCache *lru.Cache
	ttl      time.Duration
}

type cacheEntry struct {
	record domain.Ethereum
	ts     time.Time
}

func NewRecordCache(maxEntries int, ttl time.Duration) (*RecordCache, error) {
	c, err := lru.New(maxEntries)
	if err != nil {
		return nil, err
	}
	return &RecordCache{lruCache: c, ttl: ttl}, nil
}

func (c *RecordCache) Get(toEpoch uint64) (domain.Ethereum, bool) {
	raw, ok := c.lruCache.Get(toEpoch)
	if !ok {
		return domain.Ethereum{}, false
	}
	e := raw.(cacheEntry)
	if time.Since(e.ts) > c.ttl {
		c.lruCache.Remove(toEpoch)
		return domain.Ethereum{}, false
	}
	return e.record, true
}

func (c *RecordCache) Add(toEpoch uint64, record domain.Ethereum) {
	c.lruCache.Add(toEpoch, cacheEntry{record: record, ts: time.Now()})
}
