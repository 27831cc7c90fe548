package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/actorbridge-go/contracts"
	"github.com/glimte/actorbridge-go/routing"
)

// ActorSystem is the actor runtime boundary the bridge consumes. The runtime
// owns mailboxes, serialization and supervision; the bridge only needs to
// enqueue envelopes and learn about stops.
type ActorSystem interface {
	// Deliver enqueues an envelope on the actor's mailbox. The respond
	// callback receives the actor's reply and may be invoked at most
	// once. Deliver fails if the actor no longer exists.
	Deliver(ctx context.Context, actorID string, env contracts.Envelope, respond func(any)) error

	// OnStopped subscribes to actor stop notifications. The returned
	// function cancels the subscription.
	OnStopped(fn func(actorID string)) func()
}

// ConsumerConfig holds configuration for a consumer endpoint.
type ConsumerConfig struct {
	ReplyTimeout   time.Duration
	Protocol       ResponseProtocol
	Blocking       bool
	ConfigureRoute func(*routing.RouteDefinition)
	Logger         *slog.Logger
}

// ConsumerOption configures a consumer endpoint.
type ConsumerOption func(*ConsumerConfig)

// WithReplyTimeout bounds how long each exchange waits for the actor's
// response.
func WithReplyTimeout(timeout time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.ReplyTimeout = timeout
	}
}

// WithResponseProtocol declares how the actor answers exchanges.
func WithResponseProtocol(p ResponseProtocol) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Protocol = p
	}
}

// WithManualAck is shorthand for WithResponseProtocol(ManualAck).
func WithManualAck() ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Protocol = ManualAck
	}
}

// WithBlocking makes the dispatch call itself block the exchange's handling
// goroutine until resolution. The default is non-blocking: the exchange is
// suspended and completed from another goroutine.
func WithBlocking(blocking bool) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Blocking = blocking
	}
}

// WithRouteHook attaches the consumer's error handling and redelivery policy.
// The hook runs exactly once, while the route is being built.
func WithRouteHook(hook func(*routing.RouteDefinition)) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.ConfigureRoute = hook
	}
}

// WithConsumerLogger sets the logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Logger = logger
	}
}

// Consumer binds one actor identity to one middleware endpoint. It owns the
// route for the actor's lifetime: built at construction, torn down when the
// actor stops. Supervision restarts in between leave the route untouched.
type Consumer struct {
	actorID      string
	endpoint     string
	system       ActorSystem
	transport    routing.Transport
	tracker      *ActivationTracker
	replyTimeout time.Duration
	protocol     ResponseProtocol
	blocking     bool
	logger       *slog.Logger

	handle      routing.RouteHandle
	unsubscribe func()
	stopOnce    sync.Once

	// stopMu guards the handoff between construction and a stop
	// notification racing it.
	stopMu       sync.Mutex
	activated    bool
	stoppedEarly bool

	mu      sync.Mutex
	pending map[string]*Waiter
}

// NewConsumer registers an actor as a consumer endpoint. The activation
// tracker transitions to Activating before the route is built and to Active
// or Failed after; either outcome is observable through AwaitActivation.
// An actor that stops while the route is still being built is deactivated
// as soon as the build completes, so its route never lingers in Active.
func NewConsumer(system ActorSystem, transport routing.Transport, tracker *ActivationTracker, actorID, endpoint string, opts ...ConsumerOption) (*Consumer, error) {
	if system == nil {
		return nil, fmt.Errorf("actor system cannot be nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if tracker == nil {
		return nil, fmt.Errorf("activation tracker cannot be nil")
	}
	if actorID == "" {
		return nil, fmt.Errorf("actor id cannot be empty")
	}

	cfg := &ConsumerConfig{
		ReplyTimeout: time.Minute,
		Protocol:     AutoReply,
		Logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Consumer{
		actorID:      actorID,
		endpoint:     endpoint,
		system:       system,
		transport:    transport,
		tracker:      tracker,
		replyTimeout: cfg.ReplyTimeout,
		protocol:     cfg.Protocol,
		blocking:     cfg.Blocking,
		logger:       cfg.Logger,
		pending:      make(map[string]*Waiter),
	}

	if err := tracker.activating(actorID); err != nil {
		return nil, err
	}

	def := routing.NewRouteDefinition()
	if cfg.ConfigureRoute != nil {
		cfg.ConfigureRoute(def)
	}

	// Subscribed before the route build so a stop signal landing while the
	// route is still Activating is not lost. Such a signal is parked and
	// acted on right after activation.
	c.unsubscribe = system.OnStopped(func(id string) {
		if id != c.actorID {
			return
		}
		c.stopMu.Lock()
		if !c.activated {
			c.stoppedEarly = true
			c.stopMu.Unlock()
			return
		}
		c.stopMu.Unlock()
		c.deactivate()
	})

	handle, err := transport.CreateRoute(context.Background(), endpoint, c, def)
	if err != nil {
		c.unsubscribe()
		buildErr := asRouteCreationError(endpoint, err)
		tracker.failed(actorID, buildErr)
		return nil, buildErr
	}
	c.handle = handle
	tracker.active(actorID)

	c.stopMu.Lock()
	c.activated = true
	stopped := c.stoppedEarly
	c.stopMu.Unlock()
	if stopped {
		c.logger.Info("actor stopped during route build", "actor", actorID, "endpoint", endpoint)
		c.deactivate()
		return c, nil
	}

	c.logger.Info("consumer endpoint activated",
		"actor", actorID,
		"endpoint", endpoint,
		"protocol", cfg.Protocol.String(),
		"replyTimeout", cfg.ReplyTimeout,
	)
	return c, nil
}

func asRouteCreationError(endpoint string, err error) *contracts.RouteCreationError {
	if rcErr, ok := err.(*contracts.RouteCreationError); ok {
		return rcErr
	}
	return &contracts.RouteCreationError{Endpoint: endpoint, Err: err}
}

// HandleExchange implements routing.ExchangeHandler. It converts the exchange
// into an envelope, dispatches it to the actor and arms a waiter for the
// response. In blocking mode the exchange completes before HandleExchange
// returns; otherwise the exchange is suspended and completed asynchronously.
func (c *Consumer) HandleExchange(ctx context.Context, ex routing.Exchange) error {
	env := contracts.NewEnvelope(ex.Body(), ex.Headers())
	w := newWaiter(c.protocol, c.replyTimeout)
	c.addPending(w)

	if err := c.system.Deliver(ctx, c.actorID, env, w.Resolve); err != nil {
		c.removePending(w)
		return &contracts.ExecutionError{Endpoint: c.endpoint, Err: err}
	}

	if !c.blocking && ex.IsAsync() {
		ex.Suspend()
		go func() {
			c.complete(ex, w)
			ex.Resume()
		}()
		return nil
	}

	c.complete(ex, w)
	return nil
}

func (c *Consumer) complete(ex routing.Exchange, w *Waiter) {
	result, err := w.Await()
	c.removePending(w)
	if err != nil {
		c.logger.Debug("exchange failed",
			"actor", c.actorID,
			"correlationId", w.CorrelationID(),
			"error", err,
		)
		ex.SetFailure(err)
		return
	}
	ex.SetResult(result)
}

func (c *Consumer) addPending(w *Waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[w.CorrelationID()] = w
}

func (c *Consumer) removePending(w *Waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, w.CorrelationID())
}

// PendingExchanges returns the number of exchanges waiting on the actor.
func (c *Consumer) PendingExchanges() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ActorID returns the bound actor identity.
func (c *Consumer) ActorID() string {
	return c.actorID
}

// Endpoint returns the bound endpoint URI.
func (c *Consumer) Endpoint() string {
	return c.endpoint
}

// deactivate tears the route down: Deactivating, route removal, Inactive.
// In-flight waiters are left to their deadlines; a stopped actor will never
// resolve them.
func (c *Consumer) deactivate() {
	c.stopOnce.Do(func() {
		c.tracker.deactivating(c.actorID)
		if err := c.transport.RemoveRoute(context.Background(), c.handle); err != nil {
			c.logger.Warn("route teardown failed",
				"actor", c.actorID,
				"endpoint", c.endpoint,
				"error", err,
			)
		}
		c.tracker.inactive(c.actorID)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.logger.Info("consumer endpoint deactivated", "actor", c.actorID, "endpoint", c.endpoint)
	})
}

// Close deactivates the consumer without stopping the actor.
func (c *Consumer) Close() error {
	c.deactivate()
	return nil
}
