package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/kitchen-engine/internal/classifier"
	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"github.com/kursadbilgin/kitchen-engine/internal/queue"
	"go.uber.org/zap"
)

// ValidateBatch classifies a completed batch and records the verdict.
// Only admins and managers may call it.
func (e *Engine) ValidateBatch(ctx context.Context, batchID string) (outcome *ValidationOutcome, err error) {
	defer func() { e.observe(opValidateBatch, err) }()
	return e.recordVerdict(ctx, batchID, domain.BatchStatusCompleted)
}

// RevalidateBatch reclassifies an already validated batch and overwrites its verdict.
func (e *Engine) RevalidateBatch(ctx context.Context, batchID string) (outcome *ValidationOutcome, err error) {
	defer func() { e.observe(opRevalidateBatch, err) }()
	return e.recordVerdict(ctx, batchID, domain.BatchStatusValidated)
}

func (e *Engine) recordVerdict(ctx context.Context, batchID string, from domain.BatchStatus) (*ValidationOutcome, error) {
	role, err := e.roles.CurrentRole(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: resolve caller role: %w", domain.ErrDataUnavailable, err)
	}
	if !role.CanValidate() {
		return nil, fmt.Errorf("%w: role %s cannot validate batches", domain.ErrForbidden, role)
	}

	unlock, err := e.lockBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	defer e.release(unlock, batchID)

	batch, err := e.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	switch {
	case batch.Status == domain.BatchStatusInProgress:
		return nil, fmt.Errorf("%w: batch %s is still in progress", domain.ErrNotYetCompleted, batchID)
	case batch.Status != from:
		return nil, fmt.Errorf("%w: batch %s is %s, expected %s", domain.ErrInvalidStatusTransition, batchID, batch.Status, from)
	}

	timeline, err := e.timeline.LoadTimeline(ctx, batchID)
	if err != nil {
		return nil, err
	}
	types, err := e.catalog.ListProcessTypes(ctx)
	if err != nil {
		return nil, err
	}

	result, err := classifier.Classify(timeline, domain.CatalogByID(types), e.policy)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	if err := execStore(ctx, e.store, "record verdict", func(ctx context.Context) error {
		return e.batches.MarkValidated(ctx, batchID, from, result.Verdict, role, now)
	}); err != nil {
		return nil, err
	}

	verdict := result.Verdict
	batch.Status = domain.BatchStatusValidated
	batch.ValidationStatus = &verdict
	batch.ValidatedBy = &role
	batch.ValidatedAt = &now
	batch.UpdatedAt = now

	if e.metrics != nil {
		e.metrics.IncVerdict(verdict.String())
	}
	e.loggerFor(ctx, batchID).Info("batch validated",
		zap.String("verdict", verdict.String()),
		zap.String("role", role.String()),
		zap.Int("deviantSteps", result.DeviantCount),
		zap.Int("grossSteps", result.GrossCount),
		zap.Bool("revalidation", from == domain.BatchStatusValidated),
	)
	e.publish(ctx, queue.BatchEvent{
		BatchID:    batchID,
		Type:       domain.EventBatchValidated,
		Verdict:    verdict,
		OccurredAt: now,
	})

	return &ValidationOutcome{Batch: *batch, Result: result}, nil
}
