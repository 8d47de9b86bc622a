package cache

import (
	"time"

	"github.com/amaumene/rdstream/internal/models"
)

// SourceLookupCache remembers which indexer result produced an info-hash so
// the resolver can fetch the original torrent payload later.
type SourceLookupCache struct {
	store *LRUCache[models.SourceRecord]
}

func NewSourceLookupCache(capacity int, ttl time.Duration) *SourceLookupCache {
	return &SourceLookupCache{store: New[models.SourceRecord](capacity, ttl)}
}

// WithClock replaces the time source of the underlying store.
func (c *SourceLookupCache) WithClock(now func() time.Time) *SourceLookupCache {
	c.store.WithClock(now)
	return c
}

func (c *SourceLookupCache) Put(hash string, rec models.SourceRecord) {
	c.store.Set(hash, rec)
}

func (c *SourceLookupCache) Get(hash string) (models.SourceRecord, bool) {
	return c.store.Get(hash)
}

func (c *SourceLookupCache) Delete(hash string) {
	c.store.Delete(hash)
}

func (c *SourceLookupCache) Len() int {
	return c.store.Len()
}

func (c *SourceLookupCache) CleanExpired() int {
	return c.store.CleanExpired()
}
