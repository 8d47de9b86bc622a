package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/amaumene/rdstream/internal/errors"
	"github.com/amaumene/rdstream/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testPolicy() ResultPolicy {
	return ResultPolicy{
		Success:    10 * time.Minute,
		Failure:    3 * time.Minute,
		Timeout:    30 * time.Second,
		InProgress: 20 * time.Second,
	}
}

const hash = "0123456789abcdef0123456789abcdef01234567"

func TestLRUCacheBasics(t *testing.T) {
	c := New[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	// "b" is now least recently used
	c.Set("c", "3")
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestLRUCacheOverwriteRefreshesExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New[int](10, time.Minute).WithClock(clock.Now)

	c.Set("k", 1)
	clock.Advance(50 * time.Second)
	c.Set("k", 2)
	clock.Advance(50 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRUCacheCleanExpired(t *testing.T) {
	clock := newFakeClock()
	c := New[int](10, time.Minute).WithClock(clock.Now)

	c.SetWithTTL("short", 1, time.Second)
	c.SetWithTTL("long", 2, time.Hour)
	clock.Advance(time.Minute)

	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestLRUCacheConcurrentAccess(t *testing.T) {
	c := New[int](100, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*j)%150)
				c.Set(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 100)
}

func TestResultCacheRoundTrip(t *testing.T) {
	clock := newFakeClock()
	c := NewResultCache(10, testPolicy()).WithClock(clock.Now)

	links := []models.Link{{Filename: "movie.mkv", URL: "https://cdn.example/movie.mkv", Filesize: 42}}
	put := c.PutReady(hash, &models.Resolution{Hash: hash, Links: links})
	assert.Equal(t, clock.Now().Add(10*time.Minute), put.CachedUntil)

	got, ok := c.Get(hash)
	require.True(t, ok)
	require.True(t, got.Ready())
	assert.Equal(t, links, got.Resolution.Links)
	assert.Equal(t, put.CachedUntil, got.Resolution.CachedUntil)

	clock.Advance(10 * time.Minute)
	_, ok = c.Get(hash)
	assert.False(t, ok, "entry is absent once cachedUntil elapses")
}

func TestResultCacheReturnsCopies(t *testing.T) {
	c := NewResultCache(10, testPolicy())
	c.PutReady(hash, &models.Resolution{Hash: hash, Links: []models.Link{{Filename: "a"}}})

	got, _ := c.Get(hash)
	got.Resolution.Links[0].Filename = "mutated"
	got.Resolution.TorrentID = "mutated"

	again, _ := c.Get(hash)
	assert.Equal(t, "a", again.Resolution.Links[0].Filename)
	assert.Empty(t, again.Resolution.TorrentID)
}

func TestResultCacheNegativeTTLShorterThanPositive(t *testing.T) {
	policy := testPolicy()
	for _, errorType := range []string{
		apperrors.ErrorTypeNotFound,
		apperrors.ErrorTypeInvalidSource,
		apperrors.ErrorTypeProviderTerminal,
		apperrors.ErrorTypeTimeout,
		apperrors.ErrorTypeInProgress,
	} {
		ttl, ok := policy.TTLFor(errorType)
		require.True(t, ok, errorType)
		assert.Less(t, ttl, policy.Success, errorType)
	}

	_, ok := policy.TTLFor(apperrors.ErrorTypeTransientProvider)
	assert.False(t, ok, "transient errors are never cached")
}

func TestResultCachePutFailure(t *testing.T) {
	clock := newFakeClock()
	c := NewResultCache(10, testPolicy()).WithClock(clock.Now)

	_, cached := c.PutFailure(hash, apperrors.NewTransientProviderError("503", nil))
	assert.False(t, cached)
	_, ok := c.Get(hash)
	assert.False(t, ok)

	entry, cached := c.PutFailure(hash, apperrors.NewProviderTerminalError("torrent is dead", fmt.Errorf("secret detail")))
	require.True(t, cached)
	assert.Equal(t, clock.Now().Add(3*time.Minute), entry.CachedUntil)

	got, ok := c.Get(hash)
	require.True(t, ok)
	assert.False(t, got.Ready())
	assert.True(t, apperrors.Is(got.Err(), apperrors.ErrorTypeProviderTerminal))
	assert.NotContains(t, got.Err().Error(), "secret detail", "causes are not cached")

	clock.Advance(3 * time.Minute)
	_, ok = c.Get(hash)
	assert.False(t, ok)
}

func TestResultCacheOverwrites(t *testing.T) {
	c := NewResultCache(10, testPolicy())
	c.PutFailure(hash, apperrors.NewNotFoundError("no source"))
	c.PutReady(hash, &models.Resolution{Hash: hash, Links: []models.Link{{Filename: "a"}}})

	got, ok := c.Get(hash)
	require.True(t, ok)
	assert.True(t, got.Ready())
	assert.Equal(t, 1, c.Len())
}

func TestResultCacheDropFailure(t *testing.T) {
	c := NewResultCache(10, testPolicy())

	c.PutFailure(hash, apperrors.NewNotFoundError("no source"))
	assert.False(t, c.DropFailure(hash, apperrors.ErrorTypeTimeout))
	assert.True(t, c.DropFailure(hash, apperrors.ErrorTypeNotFound))
	_, ok := c.Get(hash)
	assert.False(t, ok)

	c.PutReady(hash, &models.Resolution{Hash: hash})
	assert.False(t, c.DropFailure(hash, apperrors.ErrorTypeNotFound), "successes are kept")
}

func TestSourceLookupCache(t *testing.T) {
	clock := newFakeClock()
	c := NewSourceLookupCache(2, 30*time.Minute).WithClock(clock.Now)

	rec := models.SourceRecord{Name: "Movie 2020", DownloadURL: "https://idx.example/download.php?id=1"}
	c.Put(hash, rec)

	got, ok := c.Get(hash)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	clock.Advance(30 * time.Minute)
	_, ok = c.Get(hash)
	assert.False(t, ok)

	c.Put("a", rec)
	c.Put("b", rec)
	c.Put("c", rec)
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("a")
	assert.False(t, ok, "oldest entry is evicted past capacity")
}
