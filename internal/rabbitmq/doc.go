// Package rabbitmq provides the connection and channel lifecycle
// machinery behind the rabbitpub client.
//
// This package includes:
//   - ConnectionManager: owns the single connection with automatic recovery
//   - ChannelManager: owns the single publishing channel
//   - LifecycleManager: composes both and orders teardown
//   - GuardedPublisher: check-then-act publishing with one recovery attempt
//   - TopologyManager: out-of-band exchange/queue/binding setup
//
// Connectivity faults are absorbed and surfaced as status events; only
// faults tied to a specific publish are returned to the caller.
package rabbitmq
