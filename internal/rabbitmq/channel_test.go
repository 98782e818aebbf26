package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"github.com/glimte/rabbitpub-go/status"
)

func TestChannelManager(t *testing.T) {
	t.Run("Create without a live connection fails", func(t *testing.T) {
		m := NewChannelManager(status.NewNotifier(nil))

		err := m.Create(nil)
		assert.ErrorIs(t, err, ErrChannelUnavailable)
		assert.False(t, m.IsOpen())
	})

	t.Run("IsOpen is false without a handle", func(t *testing.T) {
		m := NewChannelManager(status.NewNotifier(nil))
		assert.False(t, m.IsOpen())
	})

	t.Run("Channel without a handle fails", func(t *testing.T) {
		m := NewChannelManager(status.NewNotifier(nil))

		ch, err := m.Channel()
		assert.Nil(t, ch)
		assert.ErrorIs(t, err, ErrChannelUnavailable)
	})

	t.Run("Close without a handle is a no-op", func(t *testing.T) {
		m := NewChannelManager(status.NewNotifier(nil))
		assert.NoError(t, m.Close())
		assert.NoError(t, m.Close())
	})

	t.Run("options are applied", func(t *testing.T) {
		called := false
		m := NewChannelManager(status.NewNotifier(nil),
			WithReturnHandler(func(ret amqp.Return) { called = true }),
		)

		assert.NotNil(t, m.onReturn)
		m.onReturn(amqp.Return{})
		assert.True(t, called)
	})
}
