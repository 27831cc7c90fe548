// Package actorbridge exposes actor message handlers as endpoints of a
// routing middleware and gives callers a synchronous request surface over
// them.
//
// A Client ties together an actor runtime, a routing transport and the
// process-wide activation tracker. Consume binds an actor to an endpoint;
// SendTo sends a message to an endpoint and waits for the exchange outcome,
// surfacing failures as *contracts.ExecutionError.
package actorbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/actorbridge-go/bridge"
	"github.com/glimte/actorbridge-go/contracts"
	"github.com/glimte/actorbridge-go/internal/reliability"
	"github.com/glimte/actorbridge-go/routing"
)

// Client is the main entry point of actorbridge.
type Client struct {
	system    bridge.ActorSystem
	transport routing.Transport
	tracker   *bridge.ActivationTracker
	logger    *slog.Logger

	retryPolicy    reliability.RetryPolicy
	circuitBreaker *reliability.CircuitBreaker

	mu        sync.Mutex
	consumers []*bridge.Consumer
	closed    bool
}

type clientConfig struct {
	logger         *slog.Logger
	retryPolicy    reliability.RetryPolicy
	circuitBreaker *reliability.CircuitBreaker
}

// ClientOption configures the client.
type ClientOption func(*clientConfig)

// WithLogger sets the logger used by the client and, by default, its
// consumers.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithSendRetry retries failed request submissions with the given policy.
// The whole request is resubmitted, so it is only safe for idempotent
// consumers.
func WithSendRetry(policy reliability.RetryPolicy) ClientOption {
	return func(cfg *clientConfig) {
		cfg.retryPolicy = policy
	}
}

// WithCircuitBreaker guards SendTo with a circuit breaker.
func WithCircuitBreaker(cb *reliability.CircuitBreaker) ClientOption {
	return func(cfg *clientConfig) {
		cfg.circuitBreaker = cb
	}
}

// NewClient creates a client over an actor runtime and a routing transport.
func NewClient(system bridge.ActorSystem, transport routing.Transport, opts ...ClientOption) (*Client, error) {
	if system == nil {
		return nil, fmt.Errorf("actor system cannot be nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	cfg := &clientConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		system:         system,
		transport:      transport,
		tracker:        bridge.NewActivationTracker(),
		logger:         cfg.logger,
		retryPolicy:    cfg.retryPolicy,
		circuitBreaker: cfg.circuitBreaker,
	}, nil
}

// Consume registers an actor as a consumer endpoint. The returned consumer
// stays registered until the actor stops or the consumer is closed.
func (c *Client) Consume(actorID, endpoint string, opts ...bridge.ConsumerOption) (*bridge.Consumer, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("client is closed")
	}
	c.mu.Unlock()

	opts = append([]bridge.ConsumerOption{bridge.WithConsumerLogger(c.logger)}, opts...)
	consumer, err := bridge.NewConsumer(c.system, c.transport, c.tracker, actorID, endpoint, opts...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.consumers = append(c.consumers, consumer)
	c.mu.Unlock()
	return consumer, nil
}

// SendTo sends a message to an endpoint and waits for the result. Any
// failure (an actor Failure sentinel, a reply timeout, a transport error)
// comes back as a *contracts.ExecutionError wrapping the cause.
func (c *Client) SendTo(ctx context.Context, endpoint string, message any) (any, error) {
	var result any
	submit := func() error {
		var err error
		result, err = c.transport.Request(ctx, endpoint, message)
		return err
	}

	var err error
	switch {
	case c.circuitBreaker != nil:
		err = c.circuitBreaker.Execute(ctx, func() error {
			return c.submitWithRetry(ctx, submit)
		})
	default:
		err = c.submitWithRetry(ctx, submit)
	}
	if err != nil {
		return nil, &contracts.ExecutionError{Endpoint: endpoint, Err: err}
	}
	return result, nil
}

func (c *Client) submitWithRetry(ctx context.Context, submit func() error) error {
	if c.retryPolicy != nil {
		return reliability.Retry(ctx, c.retryPolicy, submit)
	}
	return submit()
}

// AwaitActivation blocks until the actor's endpoint accepts traffic. A
// failed route build surfaces as its *contracts.RouteCreationError, a route
// still building as *contracts.TimeoutError.
func (c *Client) AwaitActivation(actorID string, timeout time.Duration) error {
	return c.tracker.AwaitActivation(actorID, timeout)
}

// AwaitDeactivation blocks until the actor's endpoint has been torn down.
func (c *Client) AwaitDeactivation(actorID string, timeout time.Duration) error {
	return c.tracker.AwaitDeactivation(actorID, timeout)
}

// RouteCount returns the number of endpoints currently accepting traffic.
func (c *Client) RouteCount() int {
	return c.tracker.RouteCount()
}

// Close deactivates all consumers and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	consumers := c.consumers
	c.consumers = nil
	c.mu.Unlock()

	for _, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			c.logger.Warn("consumer close failed", "actor", consumer.ActorID(), "error", err)
		}
	}
	return c.transport.Close()
}
