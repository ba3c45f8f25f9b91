package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
	"go.uber.org/zap"
)

// Timeline reads and initialises a batch's ordered process instances.
type Timeline struct {
	instances repository.InstanceRepository
	store     storePolicy
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewTimeline(instances repository.InstanceRepository, opts StoreOptions, logger *zap.Logger) (*Timeline, error) {
	if instances == nil {
		return nil, fmt.Errorf("instance repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store := newStorePolicy(opts, logger)

	return &Timeline{
		instances: instances,
		store:     store,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// LoadTimeline returns the batch's instances ordered by sequence.
func (t *Timeline) LoadTimeline(ctx context.Context, batchID string) (domain.Timeline, error) {
	instances, err := callStore(ctx, t.store, "load timeline", func(ctx context.Context) ([]domain.ProcessInstance, error) {
		return t.instances.ListByBatch(ctx, batchID)
	})
	if err != nil {
		return nil, err
	}
	return domain.Timeline(instances), nil
}

// PreCreateSequence creates one unstarted instance per type id, in the given
// order. A batch that already has instances yields ErrAlreadyInitialized.
func (t *Timeline) PreCreateSequence(ctx context.Context, batchID string, orderedTypeIDs []string) ([]domain.ProcessInstance, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	if len(orderedTypeIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one process type is required", domain.ErrValidation)
	}

	now := t.now().UTC()
	created := make([]domain.ProcessInstance, len(orderedTypeIDs))
	ptrs := make([]*domain.ProcessInstance, len(orderedTypeIDs))
	for i, typeID := range orderedTypeIDs {
		if strings.TrimSpace(typeID) == "" {
			return nil, fmt.Errorf("%w: process type id at position %d is empty", domain.ErrValidation, i)
		}
		created[i] = domain.ProcessInstance{
			ID:            t.newID(),
			BatchID:       batchID,
			ProcessTypeID: typeID,
			Sequence:      i,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		ptrs[i] = &created[i]
	}

	if err := execStore(ctx, t.store, "create sequence", func(ctx context.Context) error {
		return t.instances.CreateSequence(ctx, batchID, ptrs)
	}); err != nil {
		return nil, err
	}

	t.logger.Info("timeline created",
		zap.String("batchId", batchID),
		zap.Int("steps", len(created)),
	)
	return created, nil
}

// PersistInstanceUpdate writes an instance's remarks. Timestamps may only
// repeat what is stored: starting and ending a step claim and release the
// batch's active slot, so they go through StartStep and EndStep. Re-applying
// the same update is a no-op and ended rows are never rewritten.
func (t *Timeline) PersistInstanceUpdate(ctx context.Context, instance *domain.ProcessInstance) error {
	if instance == nil || strings.TrimSpace(instance.ID) == "" {
		return fmt.Errorf("%w: instance id is required", domain.ErrValidation)
	}
	if instance.EndTime != nil {
		if instance.StartTime == nil {
			return fmt.Errorf("%w: step %s cannot end before it starts", domain.ErrNotActive, instance.ID)
		}
		if instance.EndTime.Before(*instance.StartTime) {
			return fmt.Errorf("%w: step %s end time precedes start time", domain.ErrValidation, instance.ID)
		}
	}

	return execStore(ctx, t.store, "persist instance", func(ctx context.Context) error {
		return t.instances.Persist(ctx, instance)
	})
}
