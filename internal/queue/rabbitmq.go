package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// EventsExchange is the topic exchange every batch transition is published to.
	EventsExchange  = "kitchen.batch"
	dlxExchangeName = "kitchen.dlx"

	connectTimeout   = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// queueSpec declares one durable work queue, its binding on the events
// exchange and its dead-letter twin.
type queueSpec struct {
	name       string
	bindingKey string
}

func workQueues() []queueSpec {
	return []queueSpec{
		{name: EventsQueue, bindingKey: eventsRoutingPrefix + ".#"},
	}
}

// RoutingKey is the key a batch event of type t is published with,
// e.g. batch.step_started.
func RoutingKey(t domain.EventType) string {
	return eventsRoutingPrefix + "." + strings.ToLower(t.String())
}

type dialFunc func(url string) (*amqp.Connection, error)

// RabbitMQ owns one broker connection, redials it on demand and declares the
// batch event topology on every channel it hands out.
type RabbitMQ struct {
	url  string
	dial dialFunc

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	r, err := newRabbitMQ(url, amqp.Dial)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func newRabbitMQ(url string, dial dialFunc) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if dial == nil {
		dial = amqp.Dial
	}
	return &RabbitMQ{url: url, dial: dial}, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// Ping reports whether the broker connection is currently open. It never dials.
func (r *RabbitMQ) Ping(context.Context) error {
	if r == nil {
		return fmt.Errorf("rabbitmq client is not initialized")
	}
	if conn := r.current(); conn == nil {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

// current returns the open connection or nil.
func (r *RabbitMQ) current() *amqp.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.conn == nil || r.conn.IsClosed() {
		return nil
	}
	return r.conn
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	ch, err := r.openChannel(ctx)
	if err != nil {
		return nil, err
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// openChannel retries once on a fresh connection when the current one
// refuses a channel.
func (r *RabbitMQ) openChannel(ctx context.Context) (*amqp.Channel, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := r.ensureConnected(ctx); err != nil {
			return nil, err
		}
		conn := r.current()
		if conn == nil {
			lastErr = fmt.Errorf("rabbitmq connection closed while opening channel")
			continue
		}

		ch, err := conn.Channel()
		if err == nil {
			return ch, nil
		}
		lastErr = err
		_ = conn.Close()
	}
	return nil, fmt.Errorf("failed to create rabbitmq channel: %w", lastErr)
}

func (r *RabbitMQ) ensureConnected(ctx context.Context) error {
	if r.current() != nil {
		return nil
	}
	return r.reconnectWithBackoff(ctx)
}

func (r *RabbitMQ) reconnectWithBackoff(ctx context.Context) error {
	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	// Another caller may have reconnected while we waited.
	if r.current() != nil {
		return nil
	}

	wait := reconnectBackoff
	for {
		conn, err := r.dial(r.url)
		if err == nil {
			r.mu.Lock()
			old := r.conn
			r.conn = conn
			r.mu.Unlock()

			if old != nil && !old.IsClosed() {
				_ = old.Close()
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq reconnect canceled: %w (last dial error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
}

// nextBackoff doubles d up to maxBackoff.
func nextBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return reconnectBackoff
	}
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, q := range workQueues() {
		dlq := DLQName(q.name)
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dlq %q: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, q.name, dlxExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind dlq %q: %w", dlq, err)
		}

		// Rejected deliveries keep their queue name as routing key on the DLX.
		args := amqp.Table{
			"x-dead-letter-exchange":    dlxExchangeName,
			"x-dead-letter-routing-key": q.name,
		}
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", q.name, err)
		}
		if err := ch.QueueBind(q.name, q.bindingKey, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", q.name, err)
		}
	}
	return nil
}
