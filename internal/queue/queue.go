package queue

import (
	"context"
	"fmt"
)

// Publisher publishes batch events to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg BatchEvent) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg BatchEvent) error

// Consumer consumes batch events from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// EventsQueue carries every applied batch transition.
	EventsQueue = "batch.events"

	eventsRoutingPrefix = "batch"
)

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.batch.events.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns the queues the event worker consumes.
func WorkQueueNames() []string {
	return []string{EventsQueue}
}

// DLQNames returns the dead-letter queues paired with WorkQueueNames.
func DLQNames() []string {
	work := WorkQueueNames()
	queues := make([]string, 0, len(work))
	for _, name := range work {
		queues = append(queues, DLQName(name))
	}
	return queues
}
