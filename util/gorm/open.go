package gorm

import (
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var drivers = map[string]func(dsn string) gorm.Dialector{
	"postgres": postgres.Open,
	"sqlite":   sqlite.Open,
}

var DefaultConfig = &gorm.Config{Logger: LogrusLogger}

// Open connects to the database using one of the supported drivers: postgres, sqlite.
func Open(driver, dsn string) (*gorm.DB, error) {
	open, ok := drivers[driver]
	if !ok {
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(open(dsn), DefaultConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}

	if driver == "sqlite" {
		// sqlite allows a single writer at a time.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "get sql db")
		}

		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
