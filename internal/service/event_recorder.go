package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"github.com/kursadbilgin/kitchen-engine/internal/observability"
	"github.com/kursadbilgin/kitchen-engine/internal/queue"
	"github.com/kursadbilgin/kitchen-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// EventRecorder drains the batch event queue into the audit table.
type EventRecorder struct {
	events      repository.EventRepository
	consumer    queue.Consumer
	store       storePolicy
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewEventRecorder(
	events repository.EventRepository,
	consumer queue.Consumer,
	concurrency int,
	opts StoreOptions,
	logger *zap.Logger,
) (*EventRecorder, error) {
	if events == nil {
		return nil, fmt.Errorf("event repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventRecorder{
		events:      events,
		consumer:    consumer,
		store:       newStorePolicy(opts, logger),
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (r *EventRecorder) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Start consumes the event queues until context cancellation.
func (r *EventRecorder) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < r.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			r.logger.Info("event recorder started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			if err := r.consumer.Consume(groupCtx, queueName, r.record); err != nil {
				r.logger.Error("event recorder stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			r.logger.Info("event recorder stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// record stores one event. Inserts are keyed on the event id, so a
// redelivered message is absorbed. A returned error requeues the message.
func (r *EventRecorder) record(ctx context.Context, msg queue.BatchEvent) error {
	event := msg.ToDomain()
	if !event.Type.IsValid() {
		r.logger.Warn("dropping event with unknown type",
			zap.String("eventId", msg.EventID),
			zap.String("type", msg.Type.String()),
		)
		return nil
	}

	err := execStore(ctx, r.store, "record event", func(ctx context.Context) error {
		return r.events.Create(ctx, event)
	})
	if err != nil {
		logger := observability.WithContextLogger(r.logger, observability.WithCorrelationID(ctx, msg.CorrelationID))
		logger.Error("failed to record batch event",
			zap.String("eventId", msg.EventID),
			zap.String("batchId", msg.BatchID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to record event %s: %w", msg.EventID, err)
	}

	if r.metrics != nil {
		r.metrics.IncEventRecorded(event.Type.String())
	}
	if event.Type == domain.EventBatchValidated && event.Verdict != nil {
		r.logger.Debug("verdict recorded",
			zap.String("batchId", event.BatchID),
			zap.String("verdict", event.Verdict.String()),
		)
	}
	return nil
}
