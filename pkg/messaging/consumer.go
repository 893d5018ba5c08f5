package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	apperrors "github.com/malipo/malipo-backend/pkg/errors"
	"github.com/malipo/malipo-backend/pkg/logger"
)

// EventHandler processes one decoded event. Returning an error triggers
// the redelivery policy described on Consumer.
type EventHandler func(ctx context.Context, event *Event) error

// Consumer dispatches events from one queue to registered handlers.
//
// Handlers are expected to be idempotent, so a failing message is
// redelivered once; if it fails again, or the failure is one that
// redelivery cannot fix, the message parks on the queue's DLQ.
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	handlers  map[string]EventHandler
	logger    *logger.Logger
}

// NewConsumer declares the queue plus its dead letter parking queue and
// returns a consumer ready for Subscribe and RegisterHandler calls.
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := rmq.DeclareDeadLetterQueue(queueName); err != nil {
		return nil, fmt.Errorf("declare dead letter queue for %s: %w", queueName, err)
	}

	return &Consumer{
		rmq:       rmq,
		queueName: queueName,
		handlers:  make(map[string]EventHandler),
		logger:    log.WithComponent("consumer"),
	}, nil
}

// Subscribe binds the queue to an exchange for the given routing key
// pattern. Call before Start.
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler routes events of the given type to handler. Events
// without a registered handler are acked and dropped.
func (c *Consumer) RegisterHandler(eventType string, handler EventHandler) {
	c.handlers[eventType] = handler
}

// Start consumes the queue until ctx is cancelled. If the broker drops
// the connection the consumer reconnects and resumes; it gives up only
// when reconnection fails or the connection was closed for good.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.consume()
	if err != nil {
		return err
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					msgs = c.resume(ctx)
					if msgs == nil {
						return
					}
					continue
				}
				c.handleMessage(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer) consume() (<-chan amqp.Delivery, error) {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming %s: %w", c.queueName, err)
	}
	return msgs, nil
}

// resume re-establishes delivery after the broker closed the channel.
// Returns nil when the consumer should stop instead.
func (c *Consumer) resume(ctx context.Context) <-chan amqp.Delivery {
	if ctx.Err() != nil {
		return nil
	}

	c.logger.Warn().Str("queue", c.queueName).Msg("delivery channel closed, reconnecting")

	if err := c.rmq.Reconnect(ctx); err != nil {
		c.logger.Error().Err(err).Str("queue", c.queueName).Msg("reconnect failed, consumer stopped")
		return nil
	}

	msgs, err := c.consume()
	if err != nil {
		c.logger.Error().Err(err).Str("queue", c.queueName).Msg("failed to resume consuming")
		return nil
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer resumed")
	return msgs
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.MessageId).Msg("failed to unmarshal event")
		// Malformed payloads go straight to the parking queue.
		msg.Reject(false)
		return
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)
	log := c.logger.WithCorrelationID(event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		// The binding pattern is wider than the handled set.
		log.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		msg.Ack(false)
		return
	}

	log.Debug().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Msg("processing event")

	err := handler(ctx, &event)
	if err == nil {
		msg.Ack(false)
		return
	}

	log.Error().
		Err(err).
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Bool("redelivered", msg.Redelivered).
		Msg("failed to process event")

	if retryable(err) && !msg.Redelivered {
		msg.Nack(false, true)
		return
	}
	msg.Reject(false)
}

// retryable reports whether redelivering the message could change the
// outcome. Validation and bad-request failures are deterministic, the
// payload fails the same way every time.
func retryable(err error) bool {
	return !apperrors.Is(err, apperrors.ErrValidation) &&
		!apperrors.Is(err, apperrors.ErrBadRequest)
}
