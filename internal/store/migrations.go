package store

import (
	"errors"
	"time"

	"github.com/vlanet/videoplanet/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillNotificationDedupKeys = "2026-07-21_backfill_notification_dedup_keys"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillNotificationDedupKeys, apply: backfillNotificationDedupKeys},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillNotificationDedupKeys repairs rows written before the dedup key
// column existed.
func backfillNotificationDedupKeys(db *gorm.DB) error {
	return db.Model(&notify.Record{}).
		Where("dedup_key = '' OR dedup_key IS NULL").
		Update("dedup_key", gorm.Expr("type || '|' || action_url")).Error
}
