package health

import (
	"context"
	"log/slog"
	"time"

	rabbitpub "github.com/glimte/rabbitpub-go"
)

// Status represents the health of a checked component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one health check.
type CheckResult struct {
	Name      string
	Status    Status
	Message   string
	Error     string
	Timestamp time.Time
	Duration  time.Duration
	Details   map[string]interface{}
}

// Checker performs a single named health check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// ClientChecker checks the broker connectivity of a rabbitpub client.
type ClientChecker struct {
	client *rabbitpub.Client
	logger *slog.Logger
}

// NewClientChecker creates a new client health checker
func NewClientChecker(client *rabbitpub.Client, logger *slog.Logger) *ClientChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientChecker{
		client: client,
		logger: logger,
	}
}

func (c *ClientChecker) Name() string {
	return "rabbitmq"
}

func (c *ClientChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	conn, err := c.client.Connection()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "Failed to get connection"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	if conn.IsClosed() {
		result.Status = StatusUnhealthy
		result.Message = "Connection is closed"
		result.Duration = time.Since(start)
		return result
	}

	// Probe with a short-lived channel so the publishing channel is
	// never touched by health traffic.
	ch, err := conn.Channel()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "Failed to create channel"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	defer ch.Close()

	err = ch.ExchangeDeclarePassive(
		"amq.direct", // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		result.Status = StatusDegraded
		result.Message = "Exchange check failed"
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "Connection is healthy"
	}

	result.Duration = time.Since(start)
	result.Details["connection_open"] = !conn.IsClosed()
	result.Details["response_time_ms"] = result.Duration.Milliseconds()

	return result
}
