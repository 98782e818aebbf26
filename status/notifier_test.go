package status

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryString(t *testing.T) {
	t.Run("known categories render their names", func(t *testing.T) {
		assert.Equal(t, "Connected", Connected.String())
		assert.Equal(t, "ConnectionShutdown", ConnectionShutdown.String())
		assert.Equal(t, "ConnectionBlocked", ConnectionBlocked.String())
		assert.Equal(t, "ConnectionUnblocked", ConnectionUnblocked.String())
		assert.Equal(t, "CallbackError", CallbackError.String())
		assert.Equal(t, "ChannelShutdown", ChannelShutdown.String())
	})

	t.Run("unknown category renders its value", func(t *testing.T) {
		assert.Equal(t, "Category(42)", Category(42).String())
	})
}

func TestEventString(t *testing.T) {
	t.Run("renders category and description", func(t *testing.T) {
		ev := Event{Category: Connected, Description: "amqp://localhost"}
		assert.Equal(t, "Connected: amqp://localhost", ev.String())
	})

	t.Run("renders bare category without description", func(t *testing.T) {
		ev := Event{Category: ConnectionUnblocked}
		assert.Equal(t, "ConnectionUnblocked", ev.String())
	})
}

func TestNotifier(t *testing.T) {
	t.Run("delivers to subscribers in registration order", func(t *testing.T) {
		n := NewNotifier(nil)

		var order []string
		n.Subscribe(func(ev Event) { order = append(order, "first") })
		n.Subscribe(func(ev Event) { order = append(order, "second") })
		n.Subscribe(func(ev Event) { order = append(order, "third") })

		n.Emit(Event{Category: Connected})

		assert.Equal(t, []string{"first", "second", "third"}, order)
	})

	t.Run("emit without subscribers is a no-op", func(t *testing.T) {
		n := NewNotifier(nil)
		n.Emit(Event{Category: Connected})
	})

	t.Run("nil handler is ignored", func(t *testing.T) {
		n := NewNotifier(nil)
		n.Subscribe(nil)
		n.Emit(Event{Category: Connected})
	})

	t.Run("panicking subscriber does not block the rest", func(t *testing.T) {
		n := NewNotifier(nil)

		var got []Event
		n.Subscribe(func(ev Event) { panic("boom") })
		n.Subscribe(func(ev Event) { got = append(got, ev) })

		n.Emit(Event{Category: Connected, Description: "ok"})

		// The second subscriber saw the original event first, then the
		// CallbackError reporting the first subscriber's panic.
		assert.Len(t, got, 2)
		assert.Equal(t, Connected, got[0].Category)
		assert.Equal(t, CallbackError, got[1].Category)
		assert.Contains(t, got[1].Description, "boom")
	})

	t.Run("panic while handling CallbackError does not recurse", func(t *testing.T) {
		n := NewNotifier(nil)

		calls := 0
		n.Subscribe(func(ev Event) {
			calls++
			panic(fmt.Sprintf("always (%s)", ev.Category))
		})

		n.Emit(Event{Category: ChannelShutdown})

		// One delivery of the original event, one delivery of the
		// resulting CallbackError, and no further reporting.
		assert.Equal(t, 2, calls)
	})
}
