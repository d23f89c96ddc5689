package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options controls schema preparation performed by OpenSQLite.
type Options struct {
	// Models are auto-migrated before Migrations run.
	Models     []any
	Migrations []Migration
}

// OpenSQLite establishes a SQLite connection and prepares the schema.
func OpenSQLite(path string, log *zap.Logger, options Options) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	models := append([]any{&migrationRecord{}}, options.Models...)
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, options.Migrations, log); err != nil {
		return nil, err
	}

	log.Info("database initialized", zap.String("path", path))
	return db, nil
}
