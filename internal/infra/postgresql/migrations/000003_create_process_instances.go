package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
	"gorm.io/gorm"
)

func createProcessInstancesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_process_instances",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ProcessInstanceModel{}); err != nil {
				return err
			}
			statements := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_process_instances_batch_sequence ON process_instances (batch_id, sequence)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_process_instances_one_active ON process_instances (batch_id) WHERE start_time IS NOT NULL AND end_time IS NULL`,
				`ALTER TABLE process_instances ADD CONSTRAINT fk_process_instances_batch FOREIGN KEY (batch_id) REFERENCES batches (id) ON DELETE CASCADE`,
				`ALTER TABLE process_instances ADD CONSTRAINT fk_process_instances_type FOREIGN KEY (process_type_id) REFERENCES process_types (id)`,
				`ALTER TABLE process_instances ADD CONSTRAINT chk_process_instances_order CHECK (end_time IS NULL OR (start_time IS NOT NULL AND end_time >= start_time))`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ProcessInstanceModel{})
		},
	}
}
