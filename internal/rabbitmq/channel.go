package rabbitmq

import (
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/rabbitpub-go/status"
)

// ReturnHandler receives messages the broker could not route. Returns
// arrive out-of-band relative to the publish call that caused them.
type ReturnHandler func(amqp.Return)

// ChannelManager owns the single publishing channel derived from the
// live connection. The handle is only valid while its parent connection
// is; it never extends the connection's lifetime.
type ChannelManager struct {
	mu       sync.RWMutex
	ch       *amqp.Channel
	notifier *status.Notifier
	logger   *slog.Logger
	onReturn ReturnHandler
}

// ChannelOption configures the ChannelManager
type ChannelOption func(*ChannelManager)

// WithChannelLogger sets the logger
func WithChannelLogger(logger *slog.Logger) ChannelOption {
	return func(m *ChannelManager) {
		m.logger = logger
	}
}

// WithReturnHandler sets the callback for returned mandatory messages.
func WithReturnHandler(h ReturnHandler) ChannelOption {
	return func(m *ChannelManager) {
		m.onReturn = h
	}
}

// NewChannelManager creates a new channel manager. No channel exists
// until Create is called with a live connection.
func NewChannelManager(notifier *status.Notifier, options ...ChannelOption) *ChannelManager {
	m := &ChannelManager{
		notifier: notifier,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

// Create opens a new channel on conn, replacing any previous handle.
// It fails with ErrChannelUnavailable when the connection is not live.
func (m *ChannelManager) Create(conn *amqp.Connection) error {
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("%w: no live connection", ErrChannelUnavailable)
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))
	returnChan := ch.NotifyReturn(make(chan amqp.Return, 16))

	m.mu.Lock()
	old := m.ch
	m.ch = ch
	m.mu.Unlock()

	if old != nil && !old.IsClosed() {
		old.Close()
	}

	m.logger.Debug("publishing channel created")
	go m.watch(closeChan, returnChan)

	return nil
}

// watch monitors one channel handle until it dies.
func (m *ChannelManager) watch(closeChan chan *amqp.Error, returnChan chan amqp.Return) {
	for {
		select {
		case ret, ok := <-returnChan:
			if !ok {
				returnChan = nil
				continue
			}
			m.handleReturn(ret)

		case err, ok := <-closeChan:
			desc := "closed by client"
			if ok && err != nil {
				desc = err.Error()
				m.logger.Error("channel closed", "error", err)
			}
			m.notifier.Emit(status.Event{
				Category:    status.ChannelShutdown,
				Description: desc,
			})
			// The transport closes the return stream with the channel;
			// drain anything still buffered.
			if returnChan != nil {
				for ret := range returnChan {
					m.handleReturn(ret)
				}
			}
			return
		}
	}
}

func (m *ChannelManager) handleReturn(ret amqp.Return) {
	m.logger.Warn("message returned as unroutable",
		"exchange", ret.Exchange,
		"routingKey", ret.RoutingKey,
		"replyCode", ret.ReplyCode,
		"replyText", ret.ReplyText)
	if m.onReturn != nil {
		m.onReturn(ret)
	}
}

// IsOpen reports the live broker-side channel state, not merely whether
// a handle exists.
func (m *ChannelManager) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ch != nil && !m.ch.IsClosed()
}

// Channel returns the current channel handle.
func (m *ChannelManager) Channel() (*amqp.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ch == nil || m.ch.IsClosed() {
		return nil, ErrChannelUnavailable
	}
	return m.ch, nil
}

// Close gracefully closes the channel and releases the handle.
// Idempotent; closing an already-dead handle is not an error.
func (m *ChannelManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ch == nil {
		return nil
	}
	ch := m.ch
	m.ch = nil

	if ch.IsClosed() {
		return nil
	}
	return ch.Close()
}
