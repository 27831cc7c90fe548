// Package memory provides an in-process implementation of the routing
// middleware boundary. It dispatches exchanges on the caller's goroutine,
// supports suspended (asynchronous) completion, and executes per-route
// redelivery policy, stamping the redelivered header on retries.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/actorbridge-go/contracts"
	"github.com/glimte/actorbridge-go/routing"
	"github.com/google/uuid"
)

// Scheme is the endpoint scheme this transport serves.
const Scheme = "direct"

// Transport is an in-memory routing middleware. Routes live in a table keyed
// by endpoint URI; Request looks the route up and runs the exchange inline.
type Transport struct {
	mu     sync.RWMutex
	routes map[string]*route
	closed bool
	logger *slog.Logger
}

type route struct {
	id       string
	endpoint string
	handler  routing.ExchangeHandler
	def      *routing.RouteDefinition
}

func (r *route) Endpoint() string { return r.endpoint }

// TransportOption configures the transport.
type TransportOption func(*Transport)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates an empty in-memory transport.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		routes: make(map[string]*route),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateRoute implements routing.Transport.
func (t *Transport) CreateRoute(ctx context.Context, endpoint string, handler routing.ExchangeHandler, def *routing.RouteDefinition) (routing.RouteHandle, error) {
	if handler == nil {
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("handler cannot be nil")}
	}

	ep, err := routing.ParseEndpoint(endpoint)
	if err != nil {
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: err}
	}
	if ep.Scheme != Scheme {
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("unsupported scheme %q", ep.Scheme)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("transport closed")}
	}
	if _, exists := t.routes[endpoint]; exists {
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("endpoint already bound")}
	}

	r := &route{
		id:       uuid.New().String(),
		endpoint: endpoint,
		handler:  handler,
		def:      def,
	}
	t.routes[endpoint] = r

	t.logger.Debug("route created", "endpoint", endpoint, "routeId", r.id)
	return r, nil
}

// RemoveRoute implements routing.Transport.
func (t *Transport) RemoveRoute(ctx context.Context, handle routing.RouteHandle) error {
	r, ok := handle.(*route)
	if !ok {
		return fmt.Errorf("unknown route handle %T", handle)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	current, exists := t.routes[r.endpoint]
	if !exists || current.id != r.id {
		return fmt.Errorf("route for endpoint %s not found", r.endpoint)
	}
	delete(t.routes, r.endpoint)

	t.logger.Debug("route removed", "endpoint", r.endpoint, "routeId", r.id)
	return nil
}

// Request implements routing.Transport. The exchange runs on the calling
// goroutine; a suspended exchange parks the caller until Resume. On failure
// the route's error policy decides between redelivery, suppression and
// propagation.
func (t *Transport) Request(ctx context.Context, endpoint string, body any) (any, error) {
	redeliveries := 0
	for {
		// Looked up per attempt: a route removed mid-redelivery stops
		// receiving traffic immediately.
		t.mu.RLock()
		r, ok := t.routes[endpoint]
		t.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("no route for endpoint %s", endpoint)
		}

		ex := newExchange(body, redeliveries > 0)
		result, failure, err := t.dispatch(ctx, r, ex)
		if err != nil {
			return nil, err
		}
		if failure == nil {
			return result, nil
		}

		policy, matched := r.def.PolicyFor(failure)
		if !matched {
			return nil, failure
		}
		if redeliveries < policy.MaxRedeliveries {
			redeliveries++
			t.logger.Debug("redelivering exchange",
				"endpoint", endpoint,
				"attempt", redeliveries,
				"error", failure,
			)
			continue
		}
		if policy.Handled {
			if policy.Transform != nil {
				return policy.Transform(failure), nil
			}
			return nil, nil
		}
		return nil, failure
	}
}

// dispatch runs one delivery attempt and waits for its completion. The error
// return is a transport-level problem (context cancellation); an exchange
// failure comes back in the middle return.
func (t *Transport) dispatch(ctx context.Context, r *route, ex *exchange) (any, error, error) {
	if err := r.handler.HandleExchange(ctx, ex); err != nil {
		ex.SetFailure(err)
	}

	if ex.isSuspended() {
		select {
		case <-ex.resumed:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	result, failure, completed := ex.outcome()
	if !completed {
		return nil, nil, fmt.Errorf("handler returned without completing exchange for %s", r.endpoint)
	}
	return result, failure, nil
}

// Close implements routing.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.routes = make(map[string]*route)
	return nil
}

// exchange is the in-memory Exchange implementation. Completion and
// suspension state share one mutex; resumed is closed exactly once.
type exchange struct {
	body        any
	redelivered bool

	mu        sync.Mutex
	completed bool
	suspended bool
	result    any
	failure   error

	resumeOnce sync.Once
	resumed    chan struct{}
}

func newExchange(body any, redelivered bool) *exchange {
	return &exchange{
		body:        body,
		redelivered: redelivered,
		resumed:     make(chan struct{}),
	}
}

func (x *exchange) Body() any { return x.body }

func (x *exchange) Headers() map[string]any {
	headers := make(map[string]any, 1)
	if x.redelivered {
		headers[contracts.RedeliveredHeader] = true
	}
	return headers
}

func (x *exchange) Redelivered() bool { return x.redelivered }

func (x *exchange) SetResult(v any) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.completed {
		return
	}
	x.completed = true
	x.result = v
}

func (x *exchange) SetFailure(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.completed {
		return
	}
	x.completed = true
	x.failure = err
}

func (x *exchange) IsAsync() bool { return true }

func (x *exchange) Suspend() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.suspended = true
}

func (x *exchange) Resume() {
	x.resumeOnce.Do(func() {
		close(x.resumed)
	})
}

func (x *exchange) isSuspended() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.suspended
}

func (x *exchange) outcome() (any, error, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.result, x.failure, x.completed
}
