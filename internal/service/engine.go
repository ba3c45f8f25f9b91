package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/kitchen-engine/internal/batchlock"
	"github.com/kursadbilgin/kitchen-engine/internal/classifier"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"github.com/kursadbilgin/kitchen-engine/internal/identity"
	"github.com/kursadbilgin/kitchen-engine/internal/observability"
	"github.com/kursadbilgin/kitchen-engine/internal/queue"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	opCreateBatch     = "create_batch"
	opStartStep       = "start_step"
	opEndStep         = "end_step"
	opFinishBatch     = "finish_batch"
	opValidateBatch   = "validate_batch"
	opRevalidateBatch = "revalidate_batch"

	defaultPageSize = 20
	maxPageSize     = 100
	releaseTimeout  = 2 * time.Second
)

// EngineDeps groups the collaborators of an Engine.
type EngineDeps struct {
	Batches   repository.BatchRepository
	Instances repository.InstanceRepository
	Catalog   *Catalog
	Timeline  *Timeline
	Locker    batchlock.Locker
	Roles     identity.RoleProvider
	Publisher queue.Publisher
}

type EngineOptions struct {
	Store  StoreOptions
	Policy classifier.Policy
}

// Engine applies batch and step transitions. Every transition re-reads the
// persisted timeline under the batch lock before checking its precondition.
type Engine struct {
	batches   repository.BatchRepository
	instances repository.InstanceRepository
	catalog   *Catalog
	timeline  *Timeline
	locker    batchlock.Locker
	roles     identity.RoleProvider
	publisher queue.Publisher
	metrics   *observability.Metrics
	policy    classifier.Policy
	store     storePolicy
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type CreateBatchInput struct {
	ProductID      string
	InputQuantity  float64
	ProcessTypeIDs []string // overrides catalog order when set
}

type BatchListInput struct {
	Status   *domain.BatchStatus
	Page     int
	PageSize int
}

// BatchDetail is a batch with its timeline and computed current position.
type BatchDetail struct {
	Batch        domain.Batch
	Timeline     domain.Timeline
	CurrentIndex int
}

// Advance tells the caller where the batch stands after a step ended.
// The next step is never started automatically.
type Advance struct {
	BatchComplete  bool
	NextInstanceID string
}

type ValidationOutcome struct {
	Batch  domain.Batch
	Result classifier.Result
}

func NewEngine(deps EngineDeps, opts EngineOptions, logger *zap.Logger) (*Engine, error) {
	switch {
	case deps.Batches == nil:
		return nil, fmt.Errorf("batch repository is required")
	case deps.Instances == nil:
		return nil, fmt.Errorf("instance repository is required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	case deps.Timeline == nil:
		return nil, fmt.Errorf("timeline is required")
	case deps.Roles == nil:
		return nil, fmt.Errorf("role provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = batchlock.NewLocalLocker()
	}
	policy := opts.Policy
	if policy.ShiftWidthFactor <= 0 {
		policy = classifier.DefaultPolicy()
	}

	return &Engine{
		batches:   deps.Batches,
		instances: deps.Instances,
		catalog:   deps.Catalog,
		timeline:  deps.Timeline,
		locker:    locker,
		roles:     deps.Roles,
		publisher: deps.Publisher,
		policy:    policy,
		store:     newStorePolicy(opts.Store, logger),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func (e *Engine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// CreateBatch opens an in-progress batch and pre-creates its timeline in
// catalog order, or in the caller's explicit order.
func (e *Engine) CreateBatch(ctx context.Context, in CreateBatchInput) (detail *BatchDetail, err error) {
	defer func() { e.observe(opCreateBatch, err) }()

	types, err := e.catalog.ListProcessTypes(ctx)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: process catalog is empty", domain.ErrDataUnavailable)
	}

	typeIDs, err := resolveSequence(types, in.ProcessTypeIDs)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	batch := &domain.Batch{
		ID:            e.newID(),
		ProductID:     strings.TrimSpace(in.ProductID),
		InputQuantity: in.InputQuantity,
		Status:        domain.BatchStatusInProgress,
		StartTime:     &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	if err := execStore(ctx, e.store, "create batch", func(ctx context.Context) error {
		return e.batches.Create(ctx, batch)
	}); err != nil {
		return nil, err
	}

	instances, err := e.timeline.PreCreateSequence(ctx, batch.ID, typeIDs)
	if err != nil {
		e.loggerFor(ctx, batch.ID).Error("batch created without timeline", zap.Error(err))
		return nil, err
	}

	timeline := domain.Timeline(instances)
	e.loggerFor(ctx, batch.ID).Info("batch created",
		zap.String("productId", batch.ProductID),
		zap.Int("steps", len(timeline)),
	)
	return &BatchDetail{Batch: *batch, Timeline: timeline, CurrentIndex: timeline.CurrentIndex()}, nil
}

func (e *Engine) GetBatch(ctx context.Context, batchID string) (*BatchDetail, error) {
	batch, err := e.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	timeline, err := e.timeline.LoadTimeline(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &BatchDetail{Batch: *batch, Timeline: timeline, CurrentIndex: timeline.CurrentIndex()}, nil
}

func (e *Engine) ListBatches(ctx context.Context, in BatchListInput) ([]domain.Batch, int64, error) {
	params := repository.BatchListParams{
		Status:   in.Status,
		Page:     in.Page,
		PageSize: in.PageSize,
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	type page struct {
		items []domain.Batch
		total int64
	}
	result, err := callStore(ctx, e.store, "list batches", func(ctx context.Context) (page, error) {
		items, total, err := e.batches.List(ctx, params)
		return page{items: items, total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return result.items, result.total, nil
}

func (e *Engine) getBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	return callStore(ctx, e.store, "get batch", func(ctx context.Context) (*domain.Batch, error) {
		return e.batches.GetByID(ctx, batchID)
	})
}

func (e *Engine) lockBatch(ctx context.Context, batchID string) (batchlock.Unlock, error) {
	unlock, err := e.locker.Acquire(ctx, batchID)
	if err != nil {
		if errors.Is(err, batchlock.ErrContended) {
			return nil, fmt.Errorf("%w: batch %s is busy: %w", domain.ErrConflict, batchID, err)
		}
		return nil, fmt.Errorf("%w: batch lock: %w", domain.ErrDataUnavailable, err)
	}
	return unlock, nil
}

// release runs on a fresh context so a cancelled request still frees the lock.
func (e *Engine) release(unlock batchlock.Unlock, batchID string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := unlock(ctx); err != nil {
		e.logger.Warn("failed to release batch lock",
			zap.String("batchId", batchID),
			zap.Error(err),
		)
	}
}

func (e *Engine) publish(ctx context.Context, event queue.BatchEvent) {
	if e.publisher == nil {
		return
	}

	event.EventID = e.newID()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now().UTC()
	}
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		event.CorrelationID = correlationID
	}

	if err := e.publisher.Publish(ctx, queue.EventsQueue, event); err != nil {
		e.loggerFor(ctx, event.BatchID).Error("failed to publish batch event",
			zap.String("type", event.Type.String()),
			zap.Error(err),
		)
	}
}

func (e *Engine) observe(op string, err error) {
	if e.metrics == nil {
		return
	}
	if err == nil {
		e.metrics.IncTransition(op)
		return
	}
	if reason := rejectionReason(err); reason != "" {
		e.metrics.IncTransitionRejected(op, reason)
	}
}

func (e *Engine) loggerFor(ctx context.Context, batchID string) *zap.Logger {
	return observability.WithContextLogger(e.logger, observability.WithBatchID(ctx, batchID))
}

func rejectionReason(err error) string {
	reasons := []struct {
		target error
		label  string
	}{
		{domain.ErrAlreadyInitialized, "already_initialized"},
		{domain.ErrOutOfSequence, "out_of_sequence"},
		{domain.ErrAlreadyActive, "already_active"},
		{domain.ErrNotActive, "not_active"},
		{domain.ErrIncompleteSequence, "incomplete_sequence"},
		{domain.ErrNotYetCompleted, "not_yet_completed"},
		{domain.ErrInvalidStatusTransition, "invalid_status_transition"},
		{domain.ErrForbidden, "forbidden"},
		{domain.ErrConflict, "conflict"},
		{domain.ErrNotFound, "not_found"},
		{domain.ErrValidation, "validation"},
		{domain.ErrDataUnavailable, "data_unavailable"},
	}
	for _, r := range reasons {
		if errors.Is(err, r.target) {
			return r.label
		}
	}
	return ""
}

func resolveSequence(types []domain.ProcessType, explicit []string) ([]string, error) {
	if len(explicit) == 0 {
		ids := make([]string, 0, len(types))
		for _, t := range types {
			ids = append(ids, t.ID)
		}
		return ids, nil
	}

	known := domain.CatalogByID(types)
	ids := make([]string, 0, len(explicit))
	for _, id := range explicit {
		id = strings.TrimSpace(id)
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: unknown process type %q", domain.ErrValidation, id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
