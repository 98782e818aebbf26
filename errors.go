package rabbitpub

import "github.com/glimte/rabbitpub-go/internal/rabbitmq"

// Sentinels and error types re-exported from the internal machinery so
// callers can match them with errors.Is / errors.As.
var (
	// ErrChannelUnavailable means Send could not obtain a usable
	// channel after its single recovery attempt.
	ErrChannelUnavailable = rabbitmq.ErrChannelUnavailable

	// ErrClientClosed means the operation was invoked after Close.
	ErrClientClosed = rabbitmq.ErrClientClosed
)

// PublishError is returned when the transport rejected an in-flight
// publish.
type PublishError = rabbitmq.PublishError

// ConnectionError resolves through Ready when the initial connection
// attempt fails. It is informational; the next Send makes its own
// recovery attempt.
type ConnectionError = rabbitmq.ConnectionError
