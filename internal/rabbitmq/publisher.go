package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// GuardedPublisher checks channel health before every send. No lock is
// held across the publish itself, so the channel can still close
// between the check and the send; that rare race surfaces as a normal
// *PublishError instead of being hidden.
type GuardedPublisher struct {
	lifecycle   Lifecycle
	logger      *slog.Logger
	contentType string
}

// PublisherOption configures the publisher
type PublisherOption func(*GuardedPublisher)

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *GuardedPublisher) {
		p.logger = logger
	}
}

// WithContentType sets the content type stamped on outgoing messages.
func WithContentType(contentType string) PublisherOption {
	return func(p *GuardedPublisher) {
		p.contentType = contentType
	}
}

// NewGuardedPublisher creates a publisher over the given lifecycle.
func NewGuardedPublisher(lifecycle Lifecycle, options ...PublisherOption) *GuardedPublisher {
	p := &GuardedPublisher{
		lifecycle:   lifecycle,
		logger:      slog.Default(),
		contentType: "application/octet-stream",
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish sends one durable message. If the channel is not open it
// makes a single reinitialization attempt before giving up with
// ErrChannelUnavailable; it never retries more than once per call.
// Mandatory messages the broker cannot route come back through the
// channel's return stream, not through this call's error.
func (p *GuardedPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte, mandatory bool) error {
	if !p.lifecycle.ChannelOpen() {
		if err := p.lifecycle.Reinitialize(ctx); err != nil {
			p.logger.Warn("channel reinitialization failed", "error", err)
		}
		if !p.lifecycle.ChannelOpen() {
			return fmt.Errorf("%w: channel not open after one recovery attempt", ErrChannelUnavailable)
		}
	}

	ch, err := p.lifecycle.Channel()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now(),
		ContentType:  p.contentType,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, exchange, routingKey, mandatory, false, msg); err != nil {
		p.logger.Error("publish failed",
			"exchange", exchange,
			"routingKey", routingKey,
			"mandatory", mandatory,
			"error", err)
		return &PublishError{
			Exchange:   exchange,
			RoutingKey: routingKey,
			Mandatory:  mandatory,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}

	return nil
}
