package rabbitmq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopologyManager(t *testing.T) {
	ctx := context.Background()

	t.Run("DeclareExchange requires a name", func(t *testing.T) {
		tm := NewTopologyManager(&fakeLifecycle{})

		err := tm.DeclareExchange(ctx, ExchangeDeclaration{})
		assert.ErrorIs(t, err, ErrInvalidTopology)
	})

	t.Run("DeclareQueue requires a name", func(t *testing.T) {
		tm := NewTopologyManager(&fakeLifecycle{})

		err := tm.DeclareQueue(ctx, QueueDeclaration{})
		assert.ErrorIs(t, err, ErrInvalidTopology)
	})

	t.Run("BindQueue requires queue and exchange names", func(t *testing.T) {
		tm := NewTopologyManager(&fakeLifecycle{})

		assert.ErrorIs(t, tm.BindQueue(ctx, Binding{Queue: "q"}), ErrInvalidTopology)
		assert.ErrorIs(t, tm.BindQueue(ctx, Binding{Exchange: "ex"}), ErrInvalidTopology)
	})

	t.Run("operations fail when no channel can be obtained", func(t *testing.T) {
		dialErr := errors.New("dial failed")
		lc := &fakeLifecycle{reinitErr: dialErr}
		tm := NewTopologyManager(lc)

		err := tm.DeclareExchange(ctx, ExchangeDeclaration{Name: "ex"})
		assert.ErrorIs(t, err, dialErr)
		assert.Equal(t, 1, lc.reinitCalls)
	})

	t.Run("DeclareTopology stops at the first failure", func(t *testing.T) {
		tm := NewTopologyManager(&fakeLifecycle{reinitErr: errors.New("down")})

		err := tm.DeclareTopology(ctx, Topology{
			Exchanges: []ExchangeDeclaration{{Name: ""}},
			Queues:    []QueueDeclaration{{Name: "q"}},
		})
		assert.ErrorIs(t, err, ErrInvalidTopology)
	})
}
