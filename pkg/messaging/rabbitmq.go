package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/malipo/malipo-backend/pkg/config"
	"github.com/malipo/malipo-backend/pkg/logger"
)

// DeadLetterExchange receives messages that consumers rejected for good.
// Every queue declared through DeclareQueue dead-letters into it, keyed
// by the queue's own name, so each queue gets its own parking lot.
const DeadLetterExchange = "payroll.dlx"

// RabbitMQ owns the broker connection and a single channel shared by the
// publishers and consumers of this service. Callers must go through
// Channel() on every use rather than caching the result, otherwise they
// end up holding a dead channel after a reconnect.
type RabbitMQ struct {
	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	logger  *logger.Logger
	closed  bool
}

// New dials the broker and opens the shared channel.
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		config: cfg,
		logger: log.WithComponent("rabbitmq"),
	}

	if err := rmq.connect(); err != nil {
		return nil, err
	}

	return rmq, nil
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.config.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	// Bound the unacked deliveries held by this service.
	if err := channel.Qos(r.config.PrefetchCount, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("set channel qos: %w", err)
	}

	r.conn = conn
	r.channel = channel

	r.logger.Info().Msg("connected to rabbitmq broker")
	return nil
}

// Channel returns the current channel. Do not cache across calls.
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// Close shuts the connection down for good. Reconnect refuses to run
// after Close, which is how consumers know a closed delivery channel
// means shutdown rather than a broker hiccup.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("channel close failed")
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}

	r.logger.Info().Msg("rabbitmq connection closed")
	return nil
}

// Health reports the broker connection state for the health endpoint.
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]string{
		"status": "up",
	}

	if r.conn == nil || r.conn.IsClosed() {
		status["status"] = "down"
		status["error"] = "connection closed"
	}

	return status
}

// DeclareExchange declares a durable topic exchange.
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.Channel().ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareQueue declares a durable queue whose rejected messages are
// dead-lettered to the service DLX under the queue's own name.
func (r *RabbitMQ) DeclareQueue(name string) (amqp.Queue, error) {
	return r.Channel().QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchange,
			"x-dead-letter-routing-key": name,
		},
	)
}

// DeclareDeadLetterQueue sets up the DLX and a parking queue for the
// given source queue. Messages land here after a consumer gives up on
// them and sit until someone replays or purges them.
func (r *RabbitMQ) DeclareDeadLetterQueue(sourceQueue string) error {
	if err := r.DeclareExchange(DeadLetterExchange); err != nil {
		return fmt.Errorf("declare dead letter exchange: %w", err)
	}

	parkingQueue := sourceQueue + ".dlq"
	if _, err := r.Channel().QueueDeclare(
		parkingQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", parkingQueue, err)
	}

	// Dead letters carry the source queue name as routing key.
	if err := r.BindQueue(parkingQueue, DeadLetterExchange, sourceQueue); err != nil {
		return fmt.Errorf("bind queue %s: %w", parkingQueue, err)
	}

	return nil
}

// BindQueue binds a queue to an exchange with a routing key pattern.
func (r *RabbitMQ) BindQueue(queueName, exchange, routingKey string) error {
	return r.Channel().QueueBind(
		queueName,
		routingKey,
		exchange,
		false, // no-wait
		nil,
	)
}

// Reconnect re-dials the broker after a dropped connection, waiting
// ReconnectDelay between attempts. Consumers call this when their
// delivery channel closes under them.
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("reconnect on a closed connection")
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxRetries; attempt++ {
		r.logger.Info().Int("attempt", attempt).Msg("reconnecting to RabbitMQ")

		if lastErr = r.connect(); lastErr == nil {
			return nil
		}
		r.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("reconnect attempt failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.ReconnectDelay):
		}
	}

	return fmt.Errorf("reconnect after %d attempts: %w", r.config.MaxRetries, lastErr)
}
