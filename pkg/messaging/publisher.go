package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/malipo/malipo-backend/pkg/logger"
	"github.com/malipo/malipo-backend/pkg/tenant"
)

// Publisher emits events on one exchange. The envelope fields are
// mirrored onto the AMQP message properties so operators can inspect
// queued messages without decoding payloads.
type Publisher struct {
	rmq      *RabbitMQ
	exchange string
	source   string
	logger   *logger.Logger
}

// NewPublisher declares the exchange and returns a publisher bound to
// it. The source name is stamped on every event this publisher emits.
func NewPublisher(rmq *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		rmq:      rmq,
		exchange: exchange,
		source:   source,
		logger:   log.WithComponent("publisher"),
	}, nil
}

// Publish wraps data in an event envelope and publishes it with the
// event type as routing key. Messages are persistent. When the context
// carries no correlation ID the event starts its own chain; when it
// carries a tenant, the tenant ID travels as a header so downstream
// consumers can route without unmarshaling.
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	event, err := NewEvent(eventType, p.source, correlationFrom(ctx), data)
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	if event.CorrelationID == "" {
		event.CorrelationID = event.ID
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	var headers amqp.Table
	if tenantID, terr := tenant.TenantID(ctx); terr == nil {
		headers = amqp.Table{"x-tenant-id": tenantID}
		if slug := tenant.TenantSlug(ctx); slug != "" {
			headers["x-tenant-slug"] = slug
		}
	}

	err = p.rmq.Channel().PublishWithContext(ctx,
		p.exchange,
		eventType, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.ID,
			Type:          event.Type,
			AppId:         event.Source,
			Timestamp:     event.Timestamp,
			CorrelationId: event.CorrelationID,
			Headers:       headers,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.Debug().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Msg("event published")

	return nil
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID tags the context with the correlation ID of the
// event currently being processed, so follow-on publishes join the
// same chain.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func correlationFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}
