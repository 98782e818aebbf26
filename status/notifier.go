package status

import (
	"fmt"
	"log/slog"
	"sync"
)

// Category classifies a connectivity status event.
type Category int

const (
	Connected Category = iota
	ConnectionShutdown
	ConnectionBlocked
	ConnectionUnblocked
	CallbackError
	ChannelShutdown
)

func (c Category) String() string {
	switch c {
	case Connected:
		return "Connected"
	case ConnectionShutdown:
		return "ConnectionShutdown"
	case ConnectionBlocked:
		return "ConnectionBlocked"
	case ConnectionUnblocked:
		return "ConnectionUnblocked"
	case CallbackError:
		return "CallbackError"
	case ChannelShutdown:
		return "ChannelShutdown"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Event is a transient connectivity notification. The core keeps no
// event history; subscribers that need history must buffer events
// themselves.
type Event struct {
	Category    Category
	Description string
}

func (e Event) String() string {
	if e.Description == "" {
		return e.Category.String()
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Description)
}

// Handler receives status events.
type Handler func(Event)

// Notifier is the single broadcast point for status events. Both the
// connection and channel owners emit into it; delivery is synchronous
// to all current subscribers in registration order.
type Notifier struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewNotifier creates a notifier. A nil logger falls back to
// slog.Default().
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Subscribe registers a handler. Handlers cannot be removed; a nil
// handler is ignored.
func (n *Notifier) Subscribe(h Handler) {
	if h == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, h)
}

// Emit delivers the event to every subscriber in registration order.
// A panicking subscriber does not prevent delivery to the remaining
// subscribers; each panic is logged and reported afterwards as a
// CallbackError event. Panics raised while handling a CallbackError
// event are logged only, so reporting cannot recurse.
func (n *Notifier) Emit(ev Event) {
	n.mu.RLock()
	handlers := make([]Handler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.RUnlock()

	var panics []string
	for _, h := range handlers {
		if msg, ok := n.deliver(h, ev); !ok {
			panics = append(panics, msg)
		}
	}

	if ev.Category == CallbackError {
		return
	}
	for _, msg := range panics {
		n.Emit(Event{Category: CallbackError, Description: msg})
	}
}

func (n *Notifier) deliver(h Handler, ev Event) (msg string, ok bool) {
	ok = true
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("status handler panicked",
				"category", ev.Category.String(),
				"panic", r)
			msg = fmt.Sprintf("status handler panicked: %v", r)
			ok = false
		}
	}()
	h(ev)
	return
}
