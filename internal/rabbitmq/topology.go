package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TopologyManager declares exchanges, queues, and bindings. It is an
// infrastructure escape hatch for out-of-band setup, not part of the
// steady-state publish path.
type TopologyManager struct {
	lifecycle Lifecycle
}

// ExchangeDeclaration defines an exchange to be declared
type ExchangeDeclaration struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Arguments  amqp.Table
}

// QueueDeclaration defines a queue to be declared
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// Binding defines a queue-to-exchange binding
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// Topology represents the complete messaging topology
type Topology struct {
	Exchanges []ExchangeDeclaration
	Queues    []QueueDeclaration
	Bindings  []Binding
}

// NewTopologyManager creates a new topology manager
func NewTopologyManager(lifecycle Lifecycle) *TopologyManager {
	return &TopologyManager{
		lifecycle: lifecycle,
	}
}

// DeclareTopology declares the complete topology
func (tm *TopologyManager) DeclareTopology(ctx context.Context, topology Topology) error {
	for _, exchange := range topology.Exchanges {
		if err := tm.DeclareExchange(ctx, exchange); err != nil {
			return err
		}
	}
	for _, queue := range topology.Queues {
		if err := tm.DeclareQueue(ctx, queue); err != nil {
			return err
		}
	}
	for _, binding := range topology.Bindings {
		if err := tm.BindQueue(ctx, binding); err != nil {
			return err
		}
	}
	return nil
}

// DeclareExchange declares a single exchange.
func (tm *TopologyManager) DeclareExchange(ctx context.Context, exchange ExchangeDeclaration) error {
	if exchange.Name == "" {
		return fmt.Errorf("%w: exchange name is required", ErrInvalidTopology)
	}
	if exchange.Type == "" {
		exchange.Type = "direct"
	}

	ch, err := tm.channel(ctx)
	if err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(
		exchange.Name,
		exchange.Type,
		exchange.Durable,
		exchange.AutoDelete,
		false, // internal
		false, // no-wait
		exchange.Arguments,
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange.Name, err)
	}
	return nil
}

// DeclareQueue declares a single queue.
func (tm *TopologyManager) DeclareQueue(ctx context.Context, queue QueueDeclaration) error {
	if queue.Name == "" {
		return fmt.Errorf("%w: queue name is required", ErrInvalidTopology)
	}

	ch, err := tm.channel(ctx)
	if err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		queue.Name,
		queue.Durable,
		queue.AutoDelete,
		queue.Exclusive,
		false, // no-wait
		queue.Arguments,
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue.Name, err)
	}
	return nil
}

// BindQueue binds a queue to an exchange.
func (tm *TopologyManager) BindQueue(ctx context.Context, binding Binding) error {
	if binding.Queue == "" || binding.Exchange == "" {
		return fmt.Errorf("%w: binding requires queue and exchange names", ErrInvalidTopology)
	}

	ch, err := tm.channel(ctx)
	if err != nil {
		return err
	}

	if err := ch.QueueBind(
		binding.Queue,
		binding.RoutingKey,
		binding.Exchange,
		false, // no-wait
		binding.Arguments,
	); err != nil {
		return fmt.Errorf("failed to bind queue %s to exchange %s: %w",
			binding.Queue, binding.Exchange, err)
	}
	return nil
}

// channel obtains a usable channel, applying the same single-attempt
// recovery rule as the publish guard.
func (tm *TopologyManager) channel(ctx context.Context) (*amqp.Channel, error) {
	if !tm.lifecycle.ChannelOpen() {
		if err := tm.lifecycle.Reinitialize(ctx); err != nil {
			return nil, err
		}
	}
	return tm.lifecycle.Channel()
}
