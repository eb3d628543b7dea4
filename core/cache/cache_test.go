package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfbot/core/cache"
	gormutil "hfbot/util/gorm"
)

type memoryStore struct {
	entries map[string]cache.Entry
	getErr  error
	mu      sync.Mutex
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]cache.Entry)}
}

func (s *memoryStore) Get(ctx context.Context, bucket, key string) (*cache.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}

	entry, ok := s.entries[bucket+"/"+key]
	if !ok {
		return nil, cache.ErrNotFound
	}

	return &entry, nil
}

func (s *memoryStore) Upsert(ctx context.Context, entry *cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Bucket+"/"+entry.Key] = *entry
	return nil
}

type countingFetch struct {
	calls int
	value string
	err   error
}

func (f *countingFetch) fetch(ctx context.Context, key string) (gormutil.Jsonb, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	return gormutil.Jsonb(f.value), nil
}

var epoch = time.Date(2023, 7, 14, 20, 0, 0, 0, time.UTC)

func TestCache_HitWithinTTL(t *testing.T) {
	ctx := context.Background()
	clock := testclock.NewClock(epoch)
	c := cache.New(newMemoryStore(), clock, nil)
	fetch := &countingFetch{value: `{"song":"Tweezer"}`}

	value, err := c.GetOrRefresh(ctx, "songs", "tweezer", 2*time.Hour, fetch.fetch)
	require.Nil(t, err)
	assert.Equal(t, `{"song":"Tweezer"}`, value.String())

	clock.Advance(time.Hour)
	value, err = c.GetOrRefresh(ctx, "songs", "tweezer", 2*time.Hour, fetch.fetch)
	require.Nil(t, err)
	assert.Equal(t, `{"song":"Tweezer"}`, value.String())
	assert.Equal(t, 1, fetch.calls)

	clock.Advance(time.Hour)
	fetch.value = `{"song":"Tweezer","gap":"3"}`
	value, err = c.GetOrRefresh(ctx, "songs", "tweezer", 2*time.Hour, fetch.fetch)
	require.Nil(t, err)
	assert.Equal(t, `{"song":"Tweezer","gap":"3"}`, value.String())
	assert.Equal(t, 2, fetch.calls)
}

func TestCache_StaleEntryIsOverwritten(t *testing.T) {
	ctx := context.Background()
	clock := testclock.NewClock(epoch)
	store := newMemoryStore()
	require.Nil(t, store.Upsert(ctx, &cache.Entry{
		Bucket:      "songs",
		Key:         "tweezer",
		Value:       gormutil.Jsonb(`{"old":true}`),
		LastRefresh: epoch.Add(-10000 * time.Second),
	}))

	c := cache.New(store, clock, nil)
	fetch := &countingFetch{value: `{"old":false}`}
	value, err := c.GetOrRefresh(ctx, "songs", "tweezer", 7200*time.Second, fetch.fetch)
	require.Nil(t, err)
	assert.Equal(t, 1, fetch.calls)
	assert.Equal(t, `{"old":false}`, value.String())

	entry, err := store.Get(ctx, "songs", "tweezer")
	require.Nil(t, err)
	assert.Equal(t, `{"old":false}`, entry.Value.String())
	assert.True(t, entry.LastRefresh.Equal(epoch))
}

func TestCache_StaleEntryIsNotAFallback(t *testing.T) {
	ctx := context.Background()
	clock := testclock.NewClock(epoch)
	store := newMemoryStore()
	require.Nil(t, store.Upsert(ctx, &cache.Entry{
		Bucket:      "songs",
		Key:         "tweezer",
		Value:       gormutil.Jsonb(`{}`),
		LastRefresh: epoch.Add(-3 * time.Hour),
	}))

	c := cache.New(store, clock, nil)
	fetch := &countingFetch{err: errors.New("connection reset")}
	_, err := c.GetOrRefresh(ctx, "songs", "tweezer", time.Hour, fetch.fetch)
	assert.True(t, cache.IsTransient(err))
	assert.False(t, cache.IsNotFound(err))

	var e *cache.EnrichmentError
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "songs", e.Bucket)
	assert.Equal(t, "tweezer", e.Key)
}

func TestCache_NotFound(t *testing.T) {
	ctx := context.Background()
	c := cache.New(newMemoryStore(), testclock.NewClock(epoch), nil)
	fetch := &countingFetch{err: cache.NotFoundError(errors.New("no such song"))}
	_, err := c.GetOrRefresh(ctx, "songs", "fluffhead-2", time.Hour, fetch.fetch)
	assert.True(t, cache.IsNotFound(err))
	assert.Contains(t, err.Error(), "no such song")

	// nothing is cached for missing keys
	_, err = c.GetOrRefresh(ctx, "songs", "fluffhead-2", time.Hour, fetch.fetch)
	assert.True(t, cache.IsNotFound(err))
	assert.Equal(t, 2, fetch.calls)
}

func TestCache_StorageErrorIsAMiss(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.getErr = &cache.StorageError{Op: "get", Err: errors.New("disk unavailable")}
	c := cache.New(store, testclock.NewClock(epoch), nil)
	fetch := &countingFetch{value: `[]`}
	value, err := c.GetOrRefresh(ctx, "shows", "tweezer", time.Hour, fetch.fetch)
	require.Nil(t, err)
	assert.Equal(t, `[]`, value.String())
	assert.Equal(t, 1, fetch.calls)
}

func TestCache_ConcurrentRefreshOfSameKey(t *testing.T) {
	ctx := context.Background()
	c := cache.New(newMemoryStore(), testclock.NewClock(epoch), nil)
	var (
		calls int
		mu    sync.Mutex
	)

	fetch := func(ctx context.Context, key string) (gormutil.Jsonb, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return gormutil.Jsonb(`"` + key + `"`), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrRefresh(ctx, "users", "somebody", time.Hour, fetch)
			assert.Nil(t, err)
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, calls)
}
