// Package cache provides bounded, time-expiring LRU stores.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type Item[V any] struct {
	Key        string
	Value      V
	Expiration time.Time
}

// LRUCache is a bounded map with per-entry expiry and least-recently-used eviction.
type LRUCache[V any] struct {
	capacity  int
	items     map[string]*list.Element
	evictList *list.List
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
}

func New[V any](capacity int, ttl time.Duration) *LRUCache[V] {
	return &LRUCache[V]{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		ttl:       ttl,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Tests use it to expire entries.
func (c *LRUCache[V]) WithClock(now func() time.Time) *LRUCache[V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

func (c *LRUCache[V]) Get(key string) (V, bool) {
	v, _, ok := c.GetWithExpiration(key)
	return v, ok
}

// GetWithExpiration also returns when the entry stops being served.
func (c *LRUCache[V]) GetWithExpiration(key string) (V, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*Item[V])

		if !c.now().Before(item.Expiration) {
			c.removeElement(elem)
			return zero, time.Time{}, false
		}

		c.evictList.MoveToFront(elem)
		return item.Value, item.Expiration, true
	}

	return zero, time.Time{}, false
}

func (c *LRUCache[V]) Set(key string, value V) time.Time {
	return c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value, overwriting any previous entry, and returns its expiry.
func (c *LRUCache[V]) SetWithTTL(key string, value V, ttl time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiration := c.now().Add(ttl)

	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*Item[V])
		item.Value = value
		item.Expiration = expiration
		c.evictList.MoveToFront(elem)
		return expiration
	}

	item := &Item[V]{
		Key:        key,
		Value:      value,
		Expiration: expiration,
	}

	elem := c.evictList.PushFront(item)
	c.items[key] = elem

	if c.evictList.Len() > c.capacity {
		c.removeOldest()
	}
	return expiration
}

func (c *LRUCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
}

// Len counts stored entries, including expired ones not yet swept.
func (c *LRUCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

func (c *LRUCache[V]) removeOldest() {
	elem := c.evictList.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}

func (c *LRUCache[V]) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	item := elem.Value.(*Item[V])
	delete(c.items, item.Key)
}

// CleanExpired drops expired entries and returns how many were removed.
func (c *LRUCache[V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var toRemove []*list.Element

	for elem := c.evictList.Back(); elem != nil; elem = elem.Prev() {
		item := elem.Value.(*Item[V])
		if !now.Before(item.Expiration) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

func (c *LRUCache[V]) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.CleanExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}
