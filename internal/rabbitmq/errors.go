package rabbitmq

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Connection errors
	ErrConnectionClosed   = errors.New("rabbitpub: connection is closed")
	ErrConnectionNotReady = errors.New("rabbitpub: connection not ready")
	ErrConnectionTimeout  = errors.New("rabbitpub: connection timeout")

	// Channel errors
	ErrChannelUnavailable = errors.New("rabbitpub: channel unavailable")

	// Lifecycle errors
	ErrClientClosed = errors.New("rabbitpub: client is closed")

	// Topology errors
	ErrInvalidTopology = errors.New("rabbitpub: invalid topology configuration")
)

// ConnectionError represents a failed connection attempt. It is never
// surfaced to publish callers; initialization and recovery absorb it
// and report through the status stream.
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
	Attempts  int       // Number of attempts made
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("rabbitpub connection error: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("rabbitpub connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PublishError represents a publish the transport rejected. Unlike
// connectivity faults it is returned to the caller, because it names a
// specific message that did not go out.
type PublishError struct {
	Exchange   string    // Target exchange
	RoutingKey string    // Routing key used
	Mandatory  bool      // Whether mandatory flag was set
	Err        error     // Underlying error
	Timestamp  time.Time // When the error occurred
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitpub publish error: failed to publish to %s/%s (mandatory=%v): %v",
		e.Exchange, e.RoutingKey, e.Mandatory, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// SanitizeURL removes sensitive information from connection URLs
func SanitizeURL(url string) string {
	// Simple implementation - in production, use proper URL parsing
	// to remove password but keep structure
	if len(url) > 20 {
		return url[:10] + "***" + url[len(url)-10:]
	}
	return "***"
}
