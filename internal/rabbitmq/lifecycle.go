package rabbitmq

import (
	"context"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Lifecycle is the surface the guarded publisher and the topology
// manager need from the connection and channel owners. Publishing
// components depend on this interface rather than on the concrete
// managers, so a future consumer-side client can reuse the same
// lifecycle without inheriting publish behavior.
type Lifecycle interface {
	// ChannelOpen reports whether a usable publishing channel exists.
	ChannelOpen() bool

	// Channel returns the current channel handle.
	Channel() (*amqp.Channel, error)

	// Reinitialize performs one synchronous recovery attempt: redial
	// the connection if it is down, then recreate the channel.
	Reinitialize(ctx context.Context) error
}

// LifecycleManager composes the connection and channel managers and
// owns ordered teardown.
type LifecycleManager struct {
	conn     *ConnectionManager
	channels *ChannelManager
	logger   *slog.Logger
	mu       sync.Mutex
	closed   bool
}

// NewLifecycleManager creates a lifecycle manager over the given
// connection and channel managers. A nil logger falls back to
// slog.Default().
func NewLifecycleManager(conn *ConnectionManager, channels *ChannelManager, logger *slog.Logger) *LifecycleManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleManager{
		conn:     conn,
		channels: channels,
		logger:   logger,
	}
}

// Initialize asynchronously establishes the connection and, on success,
// derives the initial publishing channel. The returned channel resolves
// with the connection result; callers may await it or ignore it.
func (lm *LifecycleManager) Initialize(ctx context.Context) <-chan error {
	if lm.Closed() {
		done := make(chan error, 1)
		done <- ErrClientClosed
		return done
	}

	done := make(chan error, 1)
	connDone := lm.conn.Initialize(ctx)
	go func() {
		err := <-connDone
		if err == nil {
			if conn, connErr := lm.conn.GetConnection(); connErr == nil {
				if chErr := lm.channels.Create(conn); chErr != nil {
					lm.logger.Error("initial channel creation failed", "error", chErr)
				}
			}
		}
		done <- err
	}()
	return done
}

// ChannelOpen implements Lifecycle.
func (lm *LifecycleManager) ChannelOpen() bool {
	if lm.Closed() {
		return false
	}
	return lm.channels.IsOpen()
}

// Channel implements Lifecycle.
func (lm *LifecycleManager) Channel() (*amqp.Channel, error) {
	if lm.Closed() {
		return nil, ErrClientClosed
	}
	return lm.channels.Channel()
}

// Reinitialize implements Lifecycle. It makes exactly one recovery
// attempt and reports failure rather than looping; bounding the work
// here keeps Send a bounded operation.
func (lm *LifecycleManager) Reinitialize(ctx context.Context) error {
	if lm.Closed() {
		return ErrClientClosed
	}

	if !lm.conn.IsConnected() {
		if err := lm.conn.Redial(ctx); err != nil {
			return err
		}
	}

	conn, err := lm.conn.GetConnection()
	if err != nil {
		return err
	}
	return lm.channels.Create(conn)
}

// Close tears down the channel first, then the connection. Errors
// during either close are logged, never returned, so shutdown always
// completes. Idempotent.
func (lm *LifecycleManager) Close() error {
	lm.mu.Lock()
	if lm.closed {
		lm.mu.Unlock()
		return nil
	}
	lm.closed = true
	lm.mu.Unlock()

	if err := lm.channels.Close(); err != nil {
		lm.logger.Error("channel close failed", "error", err)
	}
	if err := lm.conn.Close(); err != nil {
		lm.logger.Error("connection close failed", "error", err)
	}
	return nil
}

// Closed reports whether the lifecycle has been disposed.
func (lm *LifecycleManager) Closed() bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.closed
}
