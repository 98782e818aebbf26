package rabbitpub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/rabbitpub-go/internal/rabbitmq"
	"github.com/glimte/rabbitpub-go/status"
)

// Client is a resilient publish-only RabbitMQ client. It keeps one
// long-lived connection and one publishing channel, recovers both
// transparently, and reports connectivity changes through the status
// stream instead of failing callers for faults it can heal itself.
type Client struct {
	notifier  *status.Notifier
	conn      *rabbitmq.ConnectionManager
	channels  *rabbitmq.ChannelManager
	lifecycle *rabbitmq.LifecycleManager
	publisher *rabbitmq.GuardedPublisher
	topology  *rabbitmq.TopologyManager
	ready     <-chan error
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client and starts connecting in the background.
// The constructor never blocks on the broker: await Ready to observe
// the first connection attempt, or ignore it and watch the status
// stream.
func NewClient(options ...ClientOption) *Client {
	cfg := &clientConfig{
		host:             "localhost",
		port:             5672,
		username:         "guest",
		password:         "guest",
		vhost:            "/",
		recoveryInterval: 5 * time.Second,
		logger:           slog.Default(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	uri := cfg.uri
	if uri == "" {
		uri = buildURI(cfg)
	}

	notifier := status.NewNotifier(cfg.logger)

	conn := rabbitmq.NewConnectionManager(uri, notifier,
		rabbitmq.WithLogger(cfg.logger),
		rabbitmq.WithRecoveryInterval(cfg.recoveryInterval),
	)

	channelOpts := []rabbitmq.ChannelOption{
		rabbitmq.WithChannelLogger(cfg.logger),
	}
	if cfg.onReturn != nil {
		channelOpts = append(channelOpts, rabbitmq.WithReturnHandler(cfg.onReturn))
	}
	channels := rabbitmq.NewChannelManager(notifier, channelOpts...)

	lifecycle := rabbitmq.NewLifecycleManager(conn, channels, cfg.logger)

	c := &Client{
		notifier:  notifier,
		conn:      conn,
		channels:  channels,
		lifecycle: lifecycle,
		publisher: rabbitmq.NewGuardedPublisher(lifecycle, rabbitmq.WithPublisherLogger(cfg.logger)),
		topology:  rabbitmq.NewTopologyManager(lifecycle),
		logger:    cfg.logger,
	}
	c.ready = lifecycle.Initialize(context.Background())

	return c
}

// buildURI renders the endpoint configuration to an AMQP URI.
func buildURI(cfg *clientConfig) string {
	u := amqp.URI{
		Scheme:   "amqp",
		Host:     cfg.host,
		Port:     cfg.port,
		Username: cfg.username,
		Password: cfg.password,
		Vhost:    cfg.vhost,
	}
	return u.String()
}

// Ready resolves with the result of the initial connection attempt.
// A failure here does not make the client unusable: the next Send makes
// its own recovery attempt, and the status stream carries every
// connectivity change either way.
func (c *Client) Ready() <-chan error {
	return c.ready
}

// Send publishes one durable message to exchange under routingKey.
// When the channel is down it makes exactly one recovery attempt before
// failing with ErrChannelUnavailable; a transport rejection of the
// message itself comes back as a *PublishError. A mandatory message the
// broker cannot route is reported through the return handler, not
// through this call.
func (c *Client) Send(ctx context.Context, exchange, routingKey string, body []byte, options ...SendOption) error {
	if c.isClosed() {
		return ErrClientClosed
	}

	so := sendOptions{}
	for _, opt := range options {
		opt(&so)
	}

	return c.publisher.Publish(ctx, exchange, routingKey, body, so.mandatory)
}

// OnStatusChanged subscribes a handler to the rendered status stream.
// Handlers run synchronously on the emitting goroutine and must not
// block.
func (c *Client) OnStatusChanged(handler func(text string)) {
	if handler == nil {
		return
	}
	c.notifier.Subscribe(func(ev status.Event) {
		handler(ev.String())
	})
}

// OnStatusEvent subscribes a handler to the typed status stream.
func (c *Client) OnStatusEvent(handler status.Handler) {
	c.notifier.Subscribe(handler)
}

// Connection exposes the raw connection handle for out-of-band
// infrastructure setup. Not intended for steady-state use.
func (c *Client) Connection() (*amqp.Connection, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	return c.conn.GetConnection()
}

// Channel exposes the raw channel handle for out-of-band infrastructure
// setup. Not intended for steady-state use.
func (c *Client) Channel() (*amqp.Channel, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	return c.lifecycle.Channel()
}

// DeclareExchange declares an exchange of the given kind ("direct",
// "fanout", "topic", "headers").
func (c *Client) DeclareExchange(ctx context.Context, name, kind string, durable bool) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.topology.DeclareExchange(ctx, rabbitmq.ExchangeDeclaration{
		Name:    name,
		Type:    kind,
		Durable: durable,
	})
}

// DeclareQueue declares a queue.
func (c *Client) DeclareQueue(ctx context.Context, name string, durable bool) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.topology.DeclareQueue(ctx, rabbitmq.QueueDeclaration{
		Name:    name,
		Durable: durable,
	})
}

// BindQueue binds a queue to an exchange under routingKey.
func (c *Client) BindQueue(ctx context.Context, queue, exchange, routingKey string) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.topology.BindQueue(ctx, rabbitmq.Binding{
		Queue:      queue,
		Exchange:   exchange,
		RoutingKey: routingKey,
	})
}

// Close tears down the channel first, then the connection. It blocks
// until both are released, is idempotent, and always returns nil;
// secondary close failures are logged so shutdown cannot be blocked by
// them. Any operation after Close fails with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.lifecycle.Close()
	c.logger.Info("client closed")
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// clientConfig holds client configuration
type clientConfig struct {
	host             string
	port             int
	username         string
	password         string
	vhost            string
	uri              string
	recoveryInterval time.Duration
	logger           *slog.Logger
	onReturn         func(amqp.Return)
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithHost sets the broker host
func WithHost(host string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.host = host
	}
}

// WithPort sets the broker port
func WithPort(port int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.port = port
	}
}

// WithCredentials sets the username and password
func WithCredentials(username, password string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.username = username
		cfg.password = password
	}
}

// WithVHost sets the virtual host
func WithVHost(vhost string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.vhost = vhost
	}
}

// WithURI sets the full connection URI, overriding the host, port,
// credential, and vhost options.
func WithURI(uri string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.uri = uri
	}
}

// WithRecoveryInterval sets the fixed delay between automatic
// reconnection attempts.
func WithRecoveryInterval(interval time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.recoveryInterval = interval
	}
}

// WithClientLogger sets the logger for all components
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithReturnHandler sets the callback invoked when the broker returns a
// mandatory message it could not route.
func WithReturnHandler(handler func(amqp.Return)) ClientOption {
	return func(cfg *clientConfig) {
		cfg.onReturn = handler
	}
}

// sendOptions holds per-send options
type sendOptions struct {
	mandatory bool
}

// SendOption configures a single Send
type SendOption func(*sendOptions)

// WithMandatory asks the broker to report the message back through the
// return handler instead of silently dropping it when no queue is
// bound for the routing key.
func WithMandatory() SendOption {
	return func(so *sendOptions) {
		so.mandatory = true
	}
}
