// Package cache implements the catalog cache: a durable key-value store
// where each entry remembers when it was last refreshed from upstream,
// and a cache-aside wrapper which refreshes stale entries on demand.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	gormutil "hfbot/util/gorm"
)

var ErrNotFound = errors.New("not found")

// Entry is a single cached upstream payload.
// Bucket separates payload kinds (songs, setlists, attendance) sharing one table.
type Entry struct {
	Bucket      string         `gorm:"primaryKey"`
	Key         string         `gorm:"primaryKey;column:cache_key"`
	Value       gormutil.Jsonb `gorm:"not null"`
	LastRefresh time.Time      `gorm:"not null"`
}

func (e *Entry) TableName() string {
	return "cache_entry"
}

func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.LastRefresh)
}

type Store interface {
	// Get returns ErrNotFound when there is no entry for the key.
	Get(ctx context.Context, bucket, key string) (*Entry, error)
	// Upsert stores the entry unless a newer one is already stored.
	Upsert(ctx context.Context, entry *Entry) error
}

// StorageError is returned by a Store on I/O failures.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Cause() error { return e.Err }

type ErrorKind int

const (
	// Transient covers network failures, rate limits and upstream outages.
	Transient ErrorKind = iota
	// NotFound means the upstream source has no record for the key.
	NotFound
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	default:
		return "transient"
	}
}

// EnrichmentError is the only error kind returned by Cache.GetOrRefresh
// for upstream failures.
type EnrichmentError struct {
	Kind   ErrorKind
	Bucket string
	Key    string
	Err    error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich %s/%s (%s): %v", e.Bucket, e.Key, e.Kind, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

func (e *EnrichmentError) Cause() error { return e.Err }

// NotFoundError marks err as "key does not exist upstream".
// Fetch functions use it to let the cache classify the failure.
func NotFoundError(err error) error {
	return &EnrichmentError{Kind: NotFound, Err: err}
}

func IsNotFound(err error) bool {
	var e *EnrichmentError
	return errors.As(err, &e) && e.Kind == NotFound
}

func IsTransient(err error) bool {
	var e *EnrichmentError
	return errors.As(err, &e) && e.Kind == Transient
}
