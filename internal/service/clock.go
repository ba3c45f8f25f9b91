package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"go.uber.org/zap"
)

const defaultClockInterval = time.Second

// ActiveClock reads the clock of the batch's current step.
func (e *Engine) ActiveClock(ctx context.Context, batchID string) (domain.ClockReading, error) {
	if _, err := e.getBatch(ctx, batchID); err != nil {
		return domain.ClockReading{}, err
	}
	timeline, err := e.timeline.LoadTimeline(ctx, batchID)
	if err != nil {
		return domain.ClockReading{}, err
	}
	types, err := e.catalog.ListProcessTypes(ctx)
	if err != nil {
		return domain.ClockReading{}, err
	}
	return readClock(batchID, timeline, domain.CatalogByID(types), e.now())
}

// WatchActiveStep emits a clock reading immediately and then on every
// interval. Each tick reloads the persisted timeline, so the reading is
// always derived from stored timestamps. It returns nil once ctx is done
// or the batch leaves in_progress, and the emit error if emit fails.
func (e *Engine) WatchActiveStep(
	ctx context.Context,
	batchID string,
	interval time.Duration,
	emit func(domain.ClockReading) error,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if emit == nil {
		return fmt.Errorf("emit callback is required")
	}
	if interval <= 0 {
		interval = defaultClockInterval
	}

	types, err := e.catalog.ListProcessTypes(ctx)
	if err != nil {
		return err
	}
	catalog := domain.CatalogByID(types)

	if e.metrics != nil {
		e.metrics.IncClockStreams()
		defer e.metrics.DecClockStreams()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		running, err := e.watchTick(ctx, batchID, catalog, emit)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil && errors.Is(err, domain.ErrDataUnavailable):
			e.loggerFor(ctx, batchID).Warn("clock refresh failed", zap.Error(err))
		case err != nil:
			return err
		case !running:
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (e *Engine) watchTick(
	ctx context.Context,
	batchID string,
	catalog map[string]domain.ProcessType,
	emit func(domain.ClockReading) error,
) (bool, error) {
	batch, err := e.getBatch(ctx, batchID)
	if err != nil {
		return false, err
	}
	timeline, err := e.timeline.LoadTimeline(ctx, batchID)
	if err != nil {
		return false, err
	}
	reading, err := readClock(batchID, timeline, catalog, e.now())
	if err != nil {
		return false, err
	}
	if err := emit(reading); err != nil {
		return false, fmt.Errorf("emit clock reading: %w", err)
	}
	return batch.Status == domain.BatchStatusInProgress, nil
}

func readClock(batchID string, timeline domain.Timeline, catalog map[string]domain.ProcessType, now time.Time) (domain.ClockReading, error) {
	current, ok := timeline.Current()
	if !ok {
		return domain.ClockReading{}, fmt.Errorf("%w: batch %s has no steps", domain.ErrNotFound, batchID)
	}

	var pt *domain.ProcessType
	if entry, ok := catalog[current.ProcessTypeID]; ok {
		pt = &entry
	}
	return domain.ReadClock(*current, pt, now.UTC()), nil
}
