package repository

import (
	"context"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProcessTypeRepository interface {
	List(ctx context.Context) ([]domain.ProcessType, error)
	Upsert(ctx context.Context, p *domain.ProcessType) error
}

type GormProcessTypeRepo struct {
	db *gorm.DB
}

func NewGormProcessTypeRepo(db *gorm.DB) *GormProcessTypeRepo {
	return &GormProcessTypeRepo{db: db}
}

func (r *GormProcessTypeRepo) List(ctx context.Context) ([]domain.ProcessType, error) {
	var models []ProcessTypeModel
	err := r.db.WithContext(ctx).
		Order("position ASC").
		Order("name ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	types := make([]domain.ProcessType, 0, len(models))
	for i := range models {
		types = append(types, *processTypeModelToDomain(&models[i]))
	}
	return types, nil
}

// Upsert keys on name so reseeding the same catalog file is a no-op.
func (r *GormProcessTypeRepo) Upsert(ctx context.Context, p *domain.ProcessType) error {
	model := processTypeModelFromDomain(p)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"standard_duration_minutes", "variance_buffer_minutes", "position", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	var stored ProcessTypeModel
	if err := r.db.WithContext(ctx).First(&stored, "name = ?", model.Name).Error; err != nil {
		return err
	}
	if p != nil {
		*p = *processTypeModelToDomain(&stored)
	}
	return nil
}
