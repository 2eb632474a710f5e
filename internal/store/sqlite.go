// Package store opens the client's local SQLite database: the durable home
// of auth tokens, the notification list, the pending-sync outbox, and
// cached user profiles.
package store

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/vlanet/videoplanet/internal/auth"
	"github.com/vlanet/videoplanet/internal/notify"
	"github.com/vlanet/videoplanet/internal/outbox"
	"github.com/vlanet/videoplanet/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&auth.TokenRecord{},
		&notify.Record{},
		&outbox.Record{},
		&users.User{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("local database initialized", zap.String("path", path))
	}

	return db, nil
}
