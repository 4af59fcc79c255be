// Package db opens the gorm database shared by the SQL device store and
// the SQL sample index.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/oxyio/netmon/internal/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open opens the database and migrates the given models.
func Open(driver, path string, models ...interface{}) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.WrapWithCode(err, errors.ErrStore,
					fmt.Sprintf("Couldn't create %s", dir),
					"Check the permissions of the database directory.")
			}
		}
		dialector = sqlite.Open(path)
	default:
		return nil, errors.New(errors.ErrStore,
			fmt.Sprintf("Unsupported database driver %q", driver),
			"Use 'sqlite'.")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			fmt.Sprintf("Couldn't open database %s", path),
			"Check the path is writable.")
	}

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrStore,
				"Database migration failed",
				"The database may belong to another version of netmon.")
		}
	}

	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
