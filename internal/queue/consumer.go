package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQConsumer feeds batch events from one queue to a handler and settles
// every delivery by hand once the handler returns.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// settlement is what happens to a delivery after decoding and handling.
type settlement int

const (
	settleAck settlement = iota
	// settleDiscard drops a payload that can never be recorded. The queue's
	// dead-letter exchange keeps a copy.
	settleDiscard
	settleRequeue
	settleDeadLetter
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleDiscard:
		return "discard"
	case settleRequeue:
		return "requeue"
	case settleDeadLetter:
		return "dead-letter"
	default:
		return "unknown"
	}
}

// settle picks the outcome for one delivery. A handler failure gets one
// requeue; a second failure, or a failure the event itself caused, goes to
// the dead-letter queue.
func settle(decodeErr, handlerErr error, redelivered bool) settlement {
	switch {
	case decodeErr != nil:
		return settleDiscard
	case handlerErr == nil:
		return settleAck
	case errors.Is(handlerErr, domain.ErrValidation), redelivered:
		return settleDeadLetter
	default:
		return settleRequeue
	}
}

// decodeEvent parses and validates a delivery body.
func decodeEvent(body []byte) (BatchEvent, error) {
	var msg BatchEvent
	if err := json.Unmarshal(body, &msg); err != nil {
		return BatchEvent{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return msg, fmt.Errorf("invalid batch event: %w", err)
	}
	return msg, nil
}

// Consume runs until ctx is cancelled. A broken subscription is re-opened
// after a growing pause; a subscription that delivered at least one event
// resets the pause.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	pause := reconnectBackoff
	for ctx.Err() == nil {
		settled, err := c.subscribe(ctx, queue, handler)
		if ctx.Err() != nil {
			break
		}
		if settled > 0 {
			pause = reconnectBackoff
		}
		c.logger.Warn("batch event subscription lost",
			zap.String("queue", queue),
			zap.Int("settled", settled),
			zap.Duration("retryIn", pause),
			zap.Error(err),
		)

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		pause = nextBackoff(pause)
	}
	return nil
}

// subscribe opens a channel on queue and settles deliveries until the
// channel or ctx ends. It reports how many deliveries were settled.
func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, handler MessageHandler) (int, error) {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return 0, err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return 0, fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	settled := 0
	for {
		select {
		case <-ctx.Done():
			return settled, nil
		case d, ok := <-deliveries:
			if !ok {
				return settled, fmt.Errorf("delivery channel for %q closed", queue)
			}
			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return settled, err
			}
			settled++
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, decodeErr := decodeEvent(d.Body)

	var handlerErr error
	if decodeErr == nil {
		handlerErr = handler(ctx, msg)
	}

	outcome := settle(decodeErr, handlerErr, d.Redelivered)
	if outcome != settleAck {
		cause := decodeErr
		if cause == nil {
			cause = handlerErr
		}
		c.logger.Warn("batch event not recorded",
			zap.String("outcome", outcome.String()),
			zap.String("eventId", msg.EventID),
			zap.String("batchId", msg.BatchID),
			zap.String("eventType", msg.Type.String()),
			zap.String("routingKey", d.RoutingKey),
			zap.Bool("redelivered", d.Redelivered),
			zap.Error(cause),
		)
	}

	var err error
	switch outcome {
	case settleAck:
		err = d.Ack(false)
	case settleRequeue:
		err = d.Nack(false, true)
	default:
		err = d.Reject(false)
	}
	if err != nil {
		return fmt.Errorf("failed to %s delivery %d: %w", outcome, d.DeliveryTag, err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
