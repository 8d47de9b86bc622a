package cache

import (
	"time"

	apperrors "github.com/amaumene/rdstream/internal/errors"
	"github.com/amaumene/rdstream/internal/models"
)

// Result is a cached resolution outcome: either a Resolution or a Failure.
type Result struct {
	Resolution  *models.Resolution
	Failure     *apperrors.StreamError
	CachedUntil time.Time
}

// Ready reports whether the result carries playable links.
func (r Result) Ready() bool {
	return r.Failure == nil && r.Resolution != nil
}

// Err returns the cached failure as an error, or nil.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// ResultPolicy sets how long each kind of outcome is served from cache.
type ResultPolicy struct {
	Success    time.Duration
	Failure    time.Duration // NOT_FOUND, INVALID_SOURCE, PROVIDER_TERMINAL_ERROR
	Timeout    time.Duration
	InProgress time.Duration
}

// TTLFor returns the TTL for an error type and whether it is cached at all.
func (p ResultPolicy) TTLFor(errorType string) (time.Duration, bool) {
	switch errorType {
	case apperrors.ErrorTypeNotFound, apperrors.ErrorTypeInvalidSource, apperrors.ErrorTypeProviderTerminal:
		return p.Failure, true
	case apperrors.ErrorTypeTimeout:
		return p.Timeout, true
	case apperrors.ErrorTypeInProgress:
		return p.InProgress, true
	}
	return 0, false
}

// ResultCache maps info-hash to the latest resolution outcome.
type ResultCache struct {
	store  *LRUCache[Result]
	policy ResultPolicy
}

func NewResultCache(capacity int, policy ResultPolicy) *ResultCache {
	return &ResultCache{
		store:  New[Result](capacity, policy.Success),
		policy: policy,
	}
}

// WithClock replaces the time source of the underlying store.
func (c *ResultCache) WithClock(now func() time.Time) *ResultCache {
	c.store.WithClock(now)
	return c
}

// Get returns a copy of the live entry for hash, stamped with its expiry.
func (c *ResultCache) Get(hash string) (Result, bool) {
	entry, until, ok := c.store.GetWithExpiration(hash)
	if !ok {
		return Result{}, false
	}
	return entry.stamped(until), true
}

// PutReady stores a success, overwriting any earlier outcome.
func (c *ResultCache) PutReady(hash string, res *models.Resolution) Result {
	stored := *res
	stored.Links = append([]models.Link(nil), res.Links...)
	entry := Result{Resolution: &stored}
	until := c.store.SetWithTTL(hash, entry, c.policy.Success)
	return entry.stamped(until)
}

// stamped copies r so callers never share the stored Resolution.
func (r Result) stamped(until time.Time) Result {
	r.CachedUntil = until
	if r.Resolution != nil {
		res := *r.Resolution
		res.CachedUntil = until
		r.Resolution = &res
	}
	return r
}

// PutFailure caches a negative result according to the policy. Failures
// that are not cacheable (transient provider errors, anything untyped)
// leave the existing entry untouched and return false.
func (c *ResultCache) PutFailure(hash string, err error) (Result, bool) {
	errorType := apperrors.TypeOf(err)
	ttl, ok := c.policy.TTLFor(errorType)
	if !ok {
		return Result{}, false
	}
	failure := apperrors.NewStreamError(errorType, apperrors.MessageOf(err), nil)
	entry := Result{Failure: failure}
	until := c.store.SetWithTTL(hash, entry, ttl)
	return entry.stamped(until), true
}

// DropFailure removes a cached negative of the given type. Successes are kept.
func (c *ResultCache) DropFailure(hash, errorType string) bool {
	entry, ok := c.store.Get(hash)
	if !ok || entry.Failure == nil || entry.Failure.Type != errorType {
		return false
	}
	c.store.Delete(hash)
	return true
}

func (c *ResultCache) Delete(hash string) {
	c.store.Delete(hash)
}

func (c *ResultCache) Clear() {
	c.store.Clear()
}

func (c *ResultCache) Len() int {
	return c.store.Len()
}

func (c *ResultCache) CleanExpired() int {
	return c.store.CleanExpired()
}
