package cache

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gormutil "hfbot/util/gorm"
)

// SQLStore keeps entries in a relational database via gorm.
type SQLStore gorm.DB

func (s *SQLStore) Unmask() *gorm.DB {
	return (*gorm.DB)(s)
}

func (s *SQLStore) Init(ctx context.Context) error {
	if err := s.Unmask().WithContext(ctx).AutoMigrate(new(Entry)); err != nil {
		return &StorageError{Op: "migrate", Err: err}
	}

	return nil
}

func (s *SQLStore) Get(ctx context.Context, bucket, key string) (*Entry, error) {
	entry := new(Entry)
	err := s.Unmask().WithContext(ctx).
		Where("bucket = ? and cache_key = ?", bucket, key).
		First(entry).
		Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, &StorageError{Op: "get", Err: err}
	}

	return entry, nil
}

func (s *SQLStore) Upsert(ctx context.Context, entry *Entry) error {
	update := clause.AssignmentColumns([]string{"value", "last_refresh"})
	err := s.Unmask().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored := new(Entry)
		err := tx.Where("bucket = ? and cache_key = ?", entry.Bucket, entry.Key).First(stored).Error
		switch {
		case err == nil:
			if stored.LastRefresh.After(entry.LastRefresh) {
				// A concurrent refresh already stored a newer value.
				return nil
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return errors.Wrap(err, "find")
		}

		if err := tx.
			Clauses(gormutil.OnConflictClause(entry, "primaryKey", update)).
			Create(entry).
			Error; err != nil {
			return errors.Wrap(err, "create")
		}

		return nil
	})

	if err != nil {
		return &StorageError{Op: "upsert", Err: err}
	}

	return nil
}
