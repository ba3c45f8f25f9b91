package repository

import (
	"context"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository interface {
	Create(ctx context.Context, e *domain.BatchEvent) error
	ListByBatch(ctx context.Context, batchID string) ([]domain.BatchEvent, error)
}

type GormEventRepo struct {
	db *gorm.DB
}

func NewGormEventRepo(db *gorm.DB) *GormEventRepo {
	return &GormEventRepo{db: db}
}

// Create ignores redelivered events with an already stored id.
func (r *GormEventRepo) Create(ctx context.Context, e *domain.BatchEvent) error {
	model := eventModelFromDomain(e)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(model).Error; err != nil {
		return err
	}
	if e != nil {
		*e = *eventModelToDomain(model)
	}
	return nil
}

func (r *GormEventRepo) ListByBatch(ctx context.Context, batchID string) ([]domain.BatchEvent, error) {
	var models []BatchEventModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("occurred_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]domain.BatchEvent, 0, len(models))
	for i := range models {
		events = append(events, *eventModelToDomain(&models[i]))
	}

	return events, nil
}
