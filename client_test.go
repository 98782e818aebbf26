package rabbitpub

import (
	"context"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/rabbitpub-go/status"
)

// eventRecorder collects status events from the client's background
// goroutines.
type eventRecorder struct {
	mu     sync.Mutex
	events []status.Event
}

func (r *eventRecorder) handle(ev status.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []status.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.Event(nil), r.events...)
}

func TestBuildURI(t *testing.T) {
	t.Run("defaults render the protocol defaults", func(t *testing.T) {
		cfg := &clientConfig{
			host:     "localhost",
			port:     5672,
			username: "guest",
			password: "guest",
			vhost:    "/",
		}

		parsed, err := amqp.ParseURI(buildURI(cfg))
		require.NoError(t, err)
		assert.Equal(t, "localhost", parsed.Host)
		assert.Equal(t, 5672, parsed.Port)
		assert.Equal(t, "guest", parsed.Username)
		assert.Equal(t, "guest", parsed.Password)
		assert.Equal(t, "/", parsed.Vhost)
	})

	t.Run("custom endpoint config is preserved", func(t *testing.T) {
		cfg := &clientConfig{
			host:     "rabbit.internal",
			port:     5673,
			username: "svc",
			password: "s3cret",
			vhost:    "orders",
		}

		parsed, err := amqp.ParseURI(buildURI(cfg))
		require.NoError(t, err)
		assert.Equal(t, "rabbit.internal", parsed.Host)
		assert.Equal(t, 5673, parsed.Port)
		assert.Equal(t, "svc", parsed.Username)
		assert.Equal(t, "s3cret", parsed.Password)
		assert.Equal(t, "orders", parsed.Vhost)
	})
}

func TestClientOptions(t *testing.T) {
	t.Run("options are applied", func(t *testing.T) {
		cfg := &clientConfig{
			host:             "localhost",
			port:             5672,
			username:         "guest",
			password:         "guest",
			vhost:            "/",
			recoveryInterval: 5 * time.Second,
		}

		WithHost("broker")(cfg)
		WithPort(5673)(cfg)
		WithCredentials("user", "pass")(cfg)
		WithVHost("v")(cfg)
		WithRecoveryInterval(time.Second)(cfg)
		WithURI("amqp://elsewhere")(cfg)

		assert.Equal(t, "broker", cfg.host)
		assert.Equal(t, 5673, cfg.port)
		assert.Equal(t, "user", cfg.username)
		assert.Equal(t, "pass", cfg.password)
		assert.Equal(t, "v", cfg.vhost)
		assert.Equal(t, time.Second, cfg.recoveryInterval)
		assert.Equal(t, "amqp://elsewhere", cfg.uri)
	})
}

func TestClientUnreachableBroker(t *testing.T) {
	// An endpoint the dialer rejects immediately, so the test never
	// waits on a network timeout.
	client := NewClient(WithURI("invalid://url"))
	defer client.Close()

	recorder := &eventRecorder{}
	client.OnStatusEvent(recorder.handle)

	t.Run("Ready resolves with the dial failure", func(t *testing.T) {
		select {
		case err := <-client.Ready():
			require.Error(t, err)
			var connErr *ConnectionError
			assert.ErrorAs(t, err, &connErr)
		case <-time.After(5 * time.Second):
			t.Fatal("Ready did not resolve")
		}
	})

	t.Run("no Connected event fires", func(t *testing.T) {
		for _, ev := range recorder.snapshot() {
			assert.NotEqual(t, status.Connected, ev.Category)
		}
	})

	t.Run("Send fails with ErrChannelUnavailable after one attempt", func(t *testing.T) {
		err := client.Send(context.Background(), "ex", "key", []byte("hello"))
		assert.ErrorIs(t, err, ErrChannelUnavailable)
	})
}

func TestClientClose(t *testing.T) {
	t.Run("Close is idempotent and never errors", func(t *testing.T) {
		client := NewClient(WithURI("invalid://url"))

		assert.NoError(t, client.Close())
		assert.NoError(t, client.Close())
	})

	t.Run("operations after Close fail with ErrClientClosed", func(t *testing.T) {
		client := NewClient(WithURI("invalid://url"))
		require.NoError(t, client.Close())

		ctx := context.Background()
		assert.ErrorIs(t, client.Send(ctx, "ex", "key", nil), ErrClientClosed)
		assert.ErrorIs(t, client.DeclareExchange(ctx, "ex", "direct", true), ErrClientClosed)
		assert.ErrorIs(t, client.DeclareQueue(ctx, "q", true), ErrClientClosed)
		assert.ErrorIs(t, client.BindQueue(ctx, "q", "ex", "key"), ErrClientClosed)

		_, err := client.Connection()
		assert.ErrorIs(t, err, ErrClientClosed)

		_, err = client.Channel()
		assert.ErrorIs(t, err, ErrClientClosed)
	})
}

func TestOnStatusChanged(t *testing.T) {
	t.Run("handler receives rendered status text", func(t *testing.T) {
		client := NewClient(WithURI("invalid://url"))
		defer client.Close()

		// Let the background initialization finish so the only Emit
		// below is our own.
		<-client.Ready()

		var got []string
		client.OnStatusChanged(func(text string) { got = append(got, text) })

		client.notifier.Emit(status.Event{
			Category:    status.Connected,
			Description: "amqp://broker",
		})

		require.Len(t, got, 1)
		assert.Equal(t, "Connected: amqp://broker", got[0])
	})

	t.Run("nil handler is ignored", func(t *testing.T) {
		client := NewClient(WithURI("invalid://url"))
		defer client.Close()

		client.OnStatusChanged(nil)
	})
}
