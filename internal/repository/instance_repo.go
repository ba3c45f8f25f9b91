package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InstanceRepository interface {
	ListByBatch(ctx context.Context, batchID string) ([]domain.ProcessInstance, error)
	GetByID(ctx context.Context, id string) (*domain.ProcessInstance, error)
	CreateSequence(ctx context.Context, batchID string, instances []*domain.ProcessInstance) error
	Persist(ctx context.Context, instance *domain.ProcessInstance) error
	Start(ctx context.Context, batchID string, instanceID string, startedAt time.Time, remarks *string) (*domain.ProcessInstance, error)
	End(ctx context.Context, batchID string, instanceID string, endedAt time.Time, remarks *string) (*domain.ProcessInstance, error)
}

type GormInstanceRepo struct {
	db *gorm.DB
}

func NewGormInstanceRepo(db *gorm.DB) *GormInstanceRepo {
	return &GormInstanceRepo{db: db}
}

func (r *GormInstanceRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.ProcessInstance, error) {
	return listByBatch(r.db.WithContext(ctx), batchID)
}

func listByBatch(db *gorm.DB, batchID string) ([]domain.ProcessInstance, error) {
	var models []ProcessInstanceModel
	err := db.
		Where("batch_id = ?", batchID).
		Order("sequence ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	instances := make([]domain.ProcessInstance, 0, len(models))
	for i := range models {
		instances = append(instances, *instanceModelToDomain(&models[i]))
	}
	return instances, nil
}

func (r *GormInstanceRepo) GetByID(ctx context.Context, id string) (*domain.ProcessInstance, error) {
	return getInstance(r.db.WithContext(ctx), id)
}

func getInstance(db *gorm.DB, id string) (*domain.ProcessInstance, error) {
	var model ProcessInstanceModel
	err := db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return instanceModelToDomain(&model), nil
}

// CreateSequence inserts a whole timeline under a batch row lock. A batch
// that already owns instances is rejected with ErrAlreadyInitialized.
func (r *GormInstanceRepo) CreateSequence(ctx context.Context, batchID string, instances []*domain.ProcessInstance) error {
	models := make([]ProcessInstanceModel, 0, len(instances))
	for _, instance := range instances {
		if model := instanceModelFromDomain(instance); model != nil {
			models = append(models, *model)
		}
	}
	if len(models) == 0 {
		return fmt.Errorf("%w: sequence must include at least one step", domain.ErrValidation)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch BatchModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&batch, "id = ?", batchID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&ProcessInstanceModel{}).Where("batch_id = ?", batchID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: batch %s already has %d steps", domain.ErrAlreadyInitialized, batchID, existing)
		}

		return tx.CreateInBatches(&models, 100).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: batch %s", domain.ErrAlreadyInitialized, batchID)
		}
		return err
	}

	for i := range models {
		if i < len(instances) && instances[i] != nil {
			*instances[i] = *instanceModelToDomain(&models[i])
		}
	}
	return nil
}

// Persist writes the remarks of an existing instance. Timestamps are only
// accepted when they repeat the stored values; ended rows are left untouched.
// The stored row is copied back into instance.
func (r *GormInstanceRepo) Persist(ctx context.Context, instance *domain.ProcessInstance) error {
	if instance == nil || instance.ID == "" {
		return fmt.Errorf("%w: instance is required", domain.ErrValidation)
	}

	var stored *domain.ProcessInstance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getInstance(tx.Clauses(clause.Locking{Strength: "UPDATE"}), instance.ID)
		if err != nil {
			return err
		}

		apply, err := domain.ReconcileUpdate(current, instance)
		if err != nil {
			return err
		}
		if apply {
			if err := updateRemarks(tx, instance.ID, instance.Remarks).Error; err != nil {
				return err
			}
			if current, err = getInstance(tx, instance.ID); err != nil {
				return err
			}
		}
		stored = current
		return nil
	})
	if err != nil {
		return err
	}

	*instance = *stored
	return nil
}

// Start claims the batch's active slot and stamps the start time in one
// transaction. Losing either compare-and-set yields ErrAlreadyActive.
func (r *GormInstanceRepo) Start(
	ctx context.Context,
	batchID string,
	instanceID string,
	startedAt time.Time,
	remarks *string,
) (*domain.ProcessInstance, error) {
	var started *domain.ProcessInstance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := claimActiveStep(tx, batchID, instanceID)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return fmt.Errorf("%w: batch %s already has an active step", domain.ErrAlreadyActive, batchID)
		}

		stamp := stampStart(tx, batchID, instanceID, startedAt, remarks)
		if stamp.Error != nil {
			return stamp.Error
		}
		if stamp.RowsAffected == 0 {
			return fmt.Errorf("%w: step %s was already started", domain.ErrAlreadyActive, instanceID)
		}

		instance, err := getInstance(tx, instanceID)
		if err != nil {
			return err
		}
		started = instance
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: batch %s already has an active step", domain.ErrAlreadyActive, batchID)
		}
		return nil, err
	}
	return started, nil
}

// End stamps the end time of an active step and releases the batch's active slot.
func (r *GormInstanceRepo) End(
	ctx context.Context,
	batchID string,
	instanceID string,
	endedAt time.Time,
	remarks *string,
) (*domain.ProcessInstance, error) {
	var ended *domain.ProcessInstance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stamp := stampEnd(tx, batchID, instanceID, endedAt, remarks)
		if stamp.Error != nil {
			return stamp.Error
		}
		if stamp.RowsAffected == 0 {
			return fmt.Errorf("%w: step %s", domain.ErrNotActive, instanceID)
		}

		if err := releaseActiveStep(tx, batchID, instanceID).Error; err != nil {
			return err
		}

		instance, err := getInstance(tx, instanceID)
		if err != nil {
			return err
		}
		ended = instance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

// claimActiveStep takes the batch's single active slot. It matches no row
// when the batch is not in progress or another step holds the slot.
func claimActiveStep(tx *gorm.DB, batchID string, instanceID string) *gorm.DB {
	return tx.Model(&BatchModel{}).
		Where("id = ? AND status = ? AND active_instance_id IS NULL", batchID, domain.BatchStatusInProgress).
		Update("active_instance_id", instanceID)
}

func releaseActiveStep(tx *gorm.DB, batchID string, instanceID string) *gorm.DB {
	return tx.Model(&BatchModel{}).
		Where("id = ? AND active_instance_id = ?", batchID, instanceID).
		Update("active_instance_id", nil)
}

func stampStart(tx *gorm.DB, batchID string, instanceID string, startedAt time.Time, remarks *string) *gorm.DB {
	return tx.Model(&ProcessInstanceModel{}).
		Where("id = ? AND batch_id = ? AND start_time IS NULL", instanceID, batchID).
		Updates(map[string]any{
			"start_time": startedAt,
			"remarks":    remarks,
		})
}

func stampEnd(tx *gorm.DB, batchID string, instanceID string, endedAt time.Time, remarks *string) *gorm.DB {
	return tx.Model(&ProcessInstanceModel{}).
		Where("id = ? AND batch_id = ? AND start_time IS NOT NULL AND end_time IS NULL", instanceID, batchID).
		Updates(map[string]any{
			"end_time": endedAt,
			"remarks":  remarks,
		})
}

func updateRemarks(tx *gorm.DB, instanceID string, remarks *string) *gorm.DB {
	return tx.Model(&ProcessInstanceModel{}).
		Where("id = ? AND end_time IS NULL", instanceID).
		Update("remarks", remarks)
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
