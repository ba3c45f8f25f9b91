package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
	"gorm.io/gorm"
)

func createBatchEventsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_batch_events",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchEventModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_batch_events_batch_occurred ON batch_events (batch_id, occurred_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BatchEventModel{})
		},
	}
}
