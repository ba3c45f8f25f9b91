package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
	"gorm.io/gorm"
)

func createProcessTypesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_process_types",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ProcessTypeModel{}); err != nil {
				return err
			}
			checks := []string{
				`ALTER TABLE process_types ADD CONSTRAINT chk_process_types_standard_positive CHECK (standard_duration_minutes > 0)`,
				`ALTER TABLE process_types ADD CONSTRAINT chk_process_types_buffer_non_negative CHECK (variance_buffer_minutes >= 0)`,
			}
			for _, sql := range checks {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ProcessTypeModel{})
		},
	}
}
