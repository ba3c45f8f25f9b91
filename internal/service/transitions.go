package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"github.com/kursadbilgin/kitchen-engine/internal/queue"
	"go.uber.org/zap"
)

// StartStep starts the instance at the batch's current position.
//
// Preconditions are checked in order: the batch is in progress, the
// instance belongs to it, the instance sits at the current index and has
// not started. The write itself is a compare-and-set on the batch's active
// slot, so a racing start that slipped past the checks still fails with
// ErrAlreadyActive.
func (e *Engine) StartStep(ctx context.Context, batchID string, instanceID string, remarks string) (started *domain.ProcessInstance, err error) {
	defer func() { e.observe(opStartStep, err) }()

	unlock, err := e.lockBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	defer e.release(unlock, batchID)

	batch, err := e.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != domain.BatchStatusInProgress {
		return nil, fmt.Errorf("%w: batch %s is %s", domain.ErrInvalidStatusTransition, batchID, batch.Status)
	}

	timeline, err := e.timeline.LoadTimeline(ctx, batchID)
	if err != nil {
		return nil, err
	}

	idx := timeline.IndexOf(instanceID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: step %s in batch %s", domain.ErrNotFound, instanceID, batchID)
	}
	target := timeline[idx]

	current := timeline.CurrentIndex()
	if idx != current || target.IsEnded() {
		return nil, fmt.Errorf("%w: step %s is at position %d, current position is %d",
			domain.ErrOutOfSequence, instanceID, target.Sequence, timeline[current].Sequence)
	}
	if target.IsActive() {
		return nil, fmt.Errorf("%w: step %s", domain.ErrAlreadyActive, instanceID)
	}
	if active, ok := timeline.Active(); ok {
		return nil, fmt.Errorf("%w: step %s is running", domain.ErrAlreadyActive, active.ID)
	}

	now := e.now().UTC()
	merged := domain.MergeRemarks(target.Remarks, remarks)
	started, err = callStore(ctx, e.store, "start step", func(ctx context.Context) (*domain.ProcessInstance, error) {
		return e.instances.Start(ctx, batchID, instanceID, now, merged)
	})
	if err != nil {
		return nil, err
	}

	e.loggerFor(ctx, batchID).Info("step started",
		zap.String("instanceId", instanceID),
		zap.Int("sequence", started.Sequence),
	)
	e.publish(ctx, queue.BatchEvent{
		BatchID:    batchID,
		InstanceID: instanceID,
		Type:       domain.EventStepStarted,
		OccurredAt: now,
	})
	return started, nil
}

// EndStep ends an active instance and reports how the batch advances.
// Ending a step that is not active yields ErrNotActive and writes nothing,
// so a double submit is harmless.
func (e *Engine) EndStep(ctx context.Context, instanceID string, remarks string) (ended *domain.ProcessInstance, advance Advance, err error) {
	defer func() { e.observe(opEndStep, err) }()

	located, err := callStore(ctx, e.store, "get step", func(ctx context.Context) (*domain.ProcessInstance, error) {
		return e.instances.GetByID(ctx, instanceID)
	})
	if err != nil {
		return nil, Advance{}, err
	}
	batchID := located.BatchID

	unlock, err := e.lockBatch(ctx, batchID)
	if err != nil {
		return nil, Advance{}, err
	}
	defer e.release(unlock, batchID)

	timeline, err := e.timeline.LoadTimeline(ctx, batchID)
	if err != nil {
		return nil, Advance{}, err
	}
	idx := timeline.IndexOf(instanceID)
	if idx < 0 {
		return nil, Advance{}, fmt.Errorf("%w: step %s", domain.ErrNotFound, instanceID)
	}
	target := timeline[idx]
	if !target.IsActive() {
		return nil, Advance{}, fmt.Errorf("%w: step %s is %s", domain.ErrNotActive, instanceID, target.State())
	}

	now := e.now().UTC()
	if now.Before(*target.StartTime) {
		now = *target.StartTime
	}
	merged := domain.MergeRemarks(target.Remarks, remarks)
	ended, err = callStore(ctx, e.store, "end step", func(ctx context.Context) (*domain.ProcessInstance, error) {
		return e.instances.End(ctx, batchID, instanceID, now, merged)
	})
	if err != nil {
		return nil, Advance{}, err
	}

	timeline[idx] = *ended
	advance = advanceAfter(timeline, idx)

	duration := domain.Elapsed(*ended, now)
	if e.metrics != nil {
		e.metrics.ObserveStepDuration(duration)
	}
	e.loggerFor(ctx, batchID).Info("step ended",
		zap.String("instanceId", instanceID),
		zap.Float64("minutes", duration.Minutes()),
		zap.Bool("batchComplete", advance.BatchComplete),
	)
	e.publish(ctx, queue.BatchEvent{
		BatchID:    batchID,
		InstanceID: instanceID,
		Type:       domain.EventStepEnded,
		OccurredAt: now,
	})
	return ended, advance, nil
}

func advanceAfter(timeline domain.Timeline, endedIdx int) Advance {
	if endedIdx+1 < len(timeline) {
		return Advance{NextInstanceID: timeline[endedIdx+1].ID}
	}
	return Advance{BatchComplete: timeline.Complete()}
}

// FinishBatch completes a batch whose every step has ended. The total
// duration is computed here once and never recomputed.
func (e *Engine) FinishBatch(ctx context.Context, batchID string) (finished *domain.Batch, err error) {
	defer func() { e.observe(opFinishBatch, err) }()

	unlock, err := e.lockBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	defer e.release(unlock, batchID)

	batch, err := e.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := batch.CheckAdvance(domain.BatchStatusCompleted); err != nil {
		return nil, err
	}

	timeline, err := e.timeline.LoadTimeline(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !timeline.Complete() {
		return nil, fmt.Errorf("%w: %d of %d steps ended", domain.ErrIncompleteSequence, countEnded(timeline), len(timeline))
	}

	now := e.now().UTC()
	total := timeline.TotalDurationMinutes()
	if err := execStore(ctx, e.store, "complete batch", func(ctx context.Context) error {
		return e.batches.MarkCompleted(ctx, batchID, now, total)
	}); err != nil {
		return nil, err
	}

	batch.Status = domain.BatchStatusCompleted
	batch.EndTime = &now
	batch.TotalDurationMinutes = &total
	batch.ActiveInstanceID = nil
	batch.UpdatedAt = now

	e.loggerFor(ctx, batchID).Info("batch completed", zap.Float64("totalMinutes", total))
	e.publish(ctx, queue.BatchEvent{
		BatchID:    batchID,
		Type:       domain.EventBatchCompleted,
		OccurredAt: now,
	})
	return batch, nil
}

func countEnded(timeline domain.Timeline) int {
	n := 0
	for i := range timeline {
		if timeline[i].IsEnded() {
			n++
		}
	}
	return n
}
