package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/rabbitpub-go/status"
)

// ConnectionManager owns the single logical connection to RabbitMQ.
// At most one live connection handle exists at a time; a replacement
// handle fully supersedes the previous one. All connectivity faults are
// absorbed and reported through the status notifier, never thrown past
// the manager's boundary.
type ConnectionManager struct {
	url              string
	conn             *amqp.Connection
	mu               sync.RWMutex
	recoveryInterval time.Duration
	dialTimeout      time.Duration
	logger           *slog.Logger
	notifier         *status.Notifier
	isConnected      bool
	closed           bool
	done             chan struct{}
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithRecoveryInterval sets the fixed delay between automatic
// reconnection attempts.
func WithRecoveryInterval(interval time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.recoveryInterval = interval
	}
}

// WithDialTimeout sets the timeout for a single connection attempt.
func WithDialTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dialTimeout = timeout
	}
}

// NewConnectionManager creates a new connection manager. Events are
// emitted into notifier; nothing is dialed until Initialize.
func NewConnectionManager(url string, notifier *status.Notifier, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:              url,
		recoveryInterval: 5 * time.Second,
		dialTimeout:      30 * time.Second,
		logger:           slog.Default(),
		notifier:         notifier,
		done:             make(chan struct{}),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Initialize opens the connection asynchronously. The returned channel
// resolves with the result of the first attempt; callers may await it
// or ignore it. Failures are also reported through the status stream,
// since initialization is normally invoked without the caller waiting.
func (cm *ConnectionManager) Initialize(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- cm.connect(ctx)
	}()
	return done
}

// Redial performs a single synchronous connection attempt. Used by the
// publish guard when it finds the connection down. No-op when already
// connected.
func (cm *ConnectionManager) Redial(ctx context.Context) error {
	return cm.connect(ctx)
}

func (cm *ConnectionManager) connect(ctx context.Context) error {
	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		return ErrClientClosed
	}
	if cm.isConnected {
		cm.mu.Unlock()
		return nil
	}
	cm.mu.Unlock()

	conn, err := cm.dial(ctx)
	if err != nil {
		if errors.Is(err, ErrClientClosed) {
			return err
		}
		cm.logger.Error("connection attempt failed",
			"url", SanitizeURL(cm.url),
			"error", err)
		cm.notifier.Emit(status.Event{
			Category:    status.ConnectionShutdown,
			Description: fmt.Sprintf("connect failed: %v", err),
		})
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}

	cm.install(conn)
	return nil
}

// dial performs one connection attempt bounded by the dial timeout.
func (cm *ConnectionManager) dial(ctx context.Context) (*amqp.Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.dialTimeout)
	defer cancel()

	connChan := make(chan *amqp.Connection)
	errChan := make(chan error, 1)

	go func() {
		conn, err := amqp.Dial(cm.url)
		if err != nil {
			errChan <- err
			return
		}
		select {
		case connChan <- conn:
		case <-dialCtx.Done():
			conn.Close()
		case <-cm.done:
			conn.Close()
		}
	}()

	select {
	case conn := <-connChan:
		return conn, nil
	case err := <-errChan:
		return nil, err
	case <-dialCtx.Done():
		return nil, ErrConnectionTimeout
	case <-cm.done:
		return nil, ErrClientClosed
	}
}

// install stores the new handle, wires the connection-level
// notification sources, and announces the connection. A handle already
// present is superseded and closed, so at most one live handle exists.
func (cm *ConnectionManager) install(conn *amqp.Connection) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))
	blockChan := conn.NotifyBlocked(make(chan amqp.Blocking, 1))

	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		conn.Close()
		return
	}
	old := cm.conn
	cm.conn = conn
	cm.isConnected = true
	cm.mu.Unlock()

	if old != nil && old != conn && !old.IsClosed() {
		old.Close()
	}

	cm.logger.Info("connected to RabbitMQ", "url", SanitizeURL(cm.url))
	cm.notifier.Emit(status.Event{
		Category:    status.Connected,
		Description: SanitizeURL(cm.url),
	})

	go cm.watch(conn, closeChan, blockChan)
}

// watch monitors one connection handle until it dies. Shutdown events
// for a connection are emitted before its handle is marked dead.
func (cm *ConnectionManager) watch(conn *amqp.Connection, closeChan chan *amqp.Error, blockChan chan amqp.Blocking) {
	for {
		select {
		case b, ok := <-blockChan:
			if !ok {
				blockChan = nil
				continue
			}
			if b.Active {
				cm.logger.Warn("connection blocked by broker", "reason", b.Reason)
				cm.notifier.Emit(status.Event{
					Category:    status.ConnectionBlocked,
					Description: b.Reason,
				})
			} else {
				cm.logger.Info("connection unblocked by broker")
				cm.notifier.Emit(status.Event{
					Category: status.ConnectionUnblocked,
				})
			}

		case err, ok := <-closeChan:
			desc := "closed by client"
			if ok && err != nil {
				desc = err.Error()
			}
			cm.notifier.Emit(status.Event{
				Category:    status.ConnectionShutdown,
				Description: desc,
			})

			cm.mu.Lock()
			if cm.conn == conn {
				cm.isConnected = false
				cm.conn = nil
			}
			cm.mu.Unlock()

			if ok && err != nil {
				cm.logger.Error("connection closed", "error", err)
				cm.recover()
			}
			return

		case <-cm.done:
			return
		}
	}
}

// recover redials at the fixed recovery interval until the connection
// is back or the manager shuts down.
func (cm *ConnectionManager) recover() {
	attempt := 0
	for {
		select {
		case <-cm.done:
			return
		case <-time.After(cm.recoveryInterval):
		}

		// A Send-triggered redial may have already repaired the
		// connection while this loop was waiting.
		if cm.IsConnected() {
			return
		}

		attempt++
		cm.logger.Info("attempting to reconnect",
			"attempt", attempt,
			"url", SanitizeURL(cm.url))

		conn, err := cm.dial(context.Background())
		if err != nil {
			if errors.Is(err, ErrClientClosed) {
				return
			}
			cm.logger.Error("reconnect failed",
				"error", err,
				"attempt", attempt,
				"nextRetryIn", cm.recoveryInterval)
			cm.notifier.Emit(status.Event{
				Category:    status.ConnectionShutdown,
				Description: fmt.Sprintf("reconnect attempt %d failed: %v", attempt, err),
			})
			continue
		}

		cm.install(conn)
		return
	}
}

// GetConnection returns the current connection handle.
func (cm *ConnectionManager) GetConnection() (*amqp.Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.isConnected || cm.conn == nil {
		return nil, ErrConnectionNotReady
	}

	// The broker may have closed the handle without the watch loop
	// having processed it yet.
	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}

	return cm.conn, nil
}

// IsConnected returns the connection status
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isConnected && cm.conn != nil && !cm.conn.IsClosed()
}

// Close shuts the manager down and closes the connection. Idempotent.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil
	}
	cm.closed = true
	close(cm.done)
	cm.isConnected = false

	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		return err
	}

	return nil
}
