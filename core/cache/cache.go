package cache

import (
	"context"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hfbot/metrics"
	gormutil "hfbot/util/gorm"
)

// Fetch loads a fresh value for key from upstream.
// It should wrap "does not exist" failures with NotFoundError.
type Fetch func(ctx context.Context, key string) (gormutil.Jsonb, error)

// Cache is a cache-aside wrapper around a Store.
type Cache struct {
	store   Store
	clock   clock.Clock
	metrics metrics.Registry
	locks   *kmutex.Kmutex
}

func New(store Store, clock clock.Clock, registry metrics.Registry) *Cache {
	return &Cache{
		store:   store,
		clock:   clock,
		metrics: metrics.OrDummy(registry),
		locks:   kmutex.New(),
	}
}

// GetOrRefresh returns the cached value for bucket/key if it is younger than ttl.
// Otherwise it calls fetch, stores the result and returns it.
// A stale entry is never returned when fetch fails.
func (c *Cache) GetOrRefresh(ctx context.Context, bucket, key string, ttl time.Duration, fetch Fetch) (gormutil.Jsonb, error) {
	lockKey := bucket + "/" + key
	c.locks.Lock(lockKey)
	defer c.locks.Unlock(lockKey)

	log := logrus.WithContext(ctx).WithFields(logrus.Fields{"bucket": bucket, "key": key})
	labels := metrics.Labels{"bucket": bucket}
	entry, err := c.store.Get(ctx, bucket, key)
	switch {
	case err == nil:
		if entry.Age(c.clock.Now()) < ttl {
			c.metrics.Counter("hit", labels).Inc()
			return entry.Value, nil
		}

		log.Debugf("stale (last refresh %s)", entry.LastRefresh.Format(time.RFC3339))
	case errors.Is(err, ErrNotFound):
		log.Debug("miss")
	default:
		log.Warnf("read failed, treating as miss: %v", err)
	}

	c.metrics.Counter("miss", labels).Inc()
	value, err := fetch(ctx, key)
	if err != nil {
		return nil, classify(bucket, key, err)
	}

	fresh := &Entry{
		Bucket:      bucket,
		Key:         key,
		Value:       value,
		LastRefresh: c.clock.Now(),
	}

	if err := c.store.Upsert(ctx, fresh); err != nil {
		log.Warnf("write failed: %v", err)
	}

	return value, nil
}

func classify(bucket, key string, err error) error {
	var e *EnrichmentError
	if errors.As(err, &e) {
		return &EnrichmentError{Kind: e.Kind, Bucket: bucket, Key: key, Err: e.Err}
	}

	return &EnrichmentError{Kind: Transient, Bucket: bucket, Key: key, Err: err}
}
