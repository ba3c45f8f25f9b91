package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"gorm.io/gorm"
)

type BatchListParams struct {
	Status   *domain.BatchStatus
	Page     int
	PageSize int
}

type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	List(ctx context.Context, params BatchListParams) ([]domain.Batch, int64, error)
	MarkCompleted(ctx context.Context, id string, endTime time.Time, totalMinutes float64) error
	MarkValidated(ctx context.Context, id string, from domain.BatchStatus, verdict domain.Verdict, by domain.Role, at time.Time) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) List(ctx context.Context, params BatchListParams) ([]domain.Batch, int64, error) {
	query := r.db.WithContext(ctx).Model(&BatchModel{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []BatchModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}

	return batches, total, nil
}

// MarkCompleted only succeeds once: the row must still be in progress with no active step.
func (r *GormBatchRepo) MarkCompleted(ctx context.Context, id string, endTime time.Time, totalMinutes float64) error {
	result := completeBatch(r.db.WithContext(ctx), id, endTime, totalMinutes)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.explainMiss(ctx, id, domain.BatchStatusCompleted)
	}
	return nil
}

func (r *GormBatchRepo) MarkValidated(
	ctx context.Context,
	id string,
	from domain.BatchStatus,
	verdict domain.Verdict,
	by domain.Role,
	at time.Time,
) error {
	result := validateBatch(r.db.WithContext(ctx), id, from, verdict, by, at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.explainMiss(ctx, id, domain.BatchStatusValidated)
	}
	return nil
}

func completeBatch(tx *gorm.DB, id string, endTime time.Time, totalMinutes float64) *gorm.DB {
	return tx.Model(&BatchModel{}).
		Where("id = ? AND status = ? AND active_instance_id IS NULL", id, domain.BatchStatusInProgress).
		Updates(map[string]any{
			"status":                 domain.BatchStatusCompleted,
			"end_time":               endTime,
			"total_duration_minutes": totalMinutes,
		})
}

// validateBatch only matches while the batch is still in the status the
// caller classified, so concurrent validations record one verdict.
func validateBatch(tx *gorm.DB, id string, from domain.BatchStatus, verdict domain.Verdict, by domain.Role, at time.Time) *gorm.DB {
	return tx.Model(&BatchModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":            domain.BatchStatusValidated,
			"validation_status": verdict,
			"validated_by":      by,
			"validated_at":      at,
		})
}

func (r *GormBatchRepo) explainMiss(ctx context.Context, id string, target domain.BatchStatus) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: batch %s is %s, cannot become %s", domain.ErrInvalidStatusTransition, id, current.Status, target)
}
