package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
	"go.uber.org/zap"
)

// Catalog serves the read-only process type catalog.
type Catalog struct {
	types  repository.ProcessTypeRepository
	store  storePolicy
	logger *zap.Logger
}

func NewCatalog(types repository.ProcessTypeRepository, opts StoreOptions, logger *zap.Logger) (*Catalog, error) {
	if types == nil {
		return nil, fmt.Errorf("process type repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store := newStorePolicy(opts, logger)

	return &Catalog{
		types:  types,
		store:  store,
		logger: logger,
	}, nil
}

// ListProcessTypes returns the catalog in position order.
func (c *Catalog) ListProcessTypes(ctx context.Context) ([]domain.ProcessType, error) {
	return callStore(ctx, c.store, "list process types", c.types.List)
}

// Seed upserts catalog entries by name. It runs at start-up, never during a batch.
func (c *Catalog) Seed(ctx context.Context, types []domain.ProcessType) (int, error) {
	for i := range types {
		if err := types[i].Validate(); err != nil {
			return 0, fmt.Errorf("process type %q: %w", types[i].Name, err)
		}
	}

	for i := range types {
		pt := types[i]
		if pt.ID == "" {
			pt.ID = uuid.NewString()
		}
		if err := execStore(ctx, c.store, "upsert process type", func(ctx context.Context) error {
			return c.types.Upsert(ctx, &pt)
		}); err != nil {
			return i, err
		}
		c.logger.Info("process type seeded",
			zap.String("processTypeId", pt.ID),
			zap.String("name", pt.Name),
			zap.Int("position", pt.Position),
		)
	}

	return len(types), nil
}
