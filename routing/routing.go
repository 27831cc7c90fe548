package routing

import (
	"context"
	"fmt"
	"strings"
)

// Exchange is one inbound request/response unit owned by the middleware. A
// handler completes it with SetResult or SetFailure. Handlers that want to
// complete the exchange from another goroutine call Suspend before returning
// and Resume once the exchange is complete; that path is only available when
// IsAsync reports true.
type Exchange interface {
	// Body returns the request payload.
	Body() any

	// Headers returns the transport headers of this delivery.
	Headers() map[string]any

	// Redelivered reports whether the middleware has dispatched this
	// exchange before.
	Redelivered() bool

	// SetResult completes the exchange successfully. Only the first
	// completion takes effect.
	SetResult(v any)

	// SetFailure completes the exchange with an error. Only the first
	// completion takes effect.
	SetFailure(err error)

	// IsAsync reports whether the transport supports out-of-band
	// completion via Suspend/Resume.
	IsAsync() bool

	// Suspend marks the exchange as completing asynchronously.
	Suspend()

	// Resume signals that a suspended exchange has been completed.
	Resume()
}

// ExchangeHandler processes inbound exchanges for one route. A non-nil error
// from an otherwise uncompleted exchange fails it with that error.
type ExchangeHandler interface {
	HandleExchange(ctx context.Context, ex Exchange) error
}

// ExchangeHandlerFunc adapts a function to ExchangeHandler.
type ExchangeHandlerFunc func(ctx context.Context, ex Exchange) error

// HandleExchange implements ExchangeHandler.
func (f ExchangeHandlerFunc) HandleExchange(ctx context.Context, ex Exchange) error {
	return f(ctx, ex)
}

// RouteHandle identifies a built route for later teardown.
type RouteHandle interface {
	Endpoint() string
}

// Transport is the routing middleware boundary consumed by the bridge. It
// performs the actual exchange dispatch and executes redelivery policy; the
// bridge only configures routes and reacts to exchange outcomes.
type Transport interface {
	// CreateRoute builds a route from an endpoint URI to a handler. The
	// route definition carries the consumer's error handling and
	// redelivery policy. Invalid URIs and unsupported schemes fail with
	// *contracts.RouteCreationError.
	CreateRoute(ctx context.Context, endpoint string, handler ExchangeHandler, def *RouteDefinition) (RouteHandle, error)

	// RemoveRoute tears a route down. The endpoint stops accepting
	// traffic once RemoveRoute returns.
	RemoveRoute(ctx context.Context, handle RouteHandle) error

	// Request sends a message to an endpoint and waits for the exchange
	// outcome.
	Request(ctx context.Context, endpoint string, body any) (any, error)

	// Close releases transport resources.
	Close() error
}

// Endpoint is a parsed endpoint URI of the form "scheme:name".
type Endpoint struct {
	Scheme string
	Name   string
}

// String reassembles the URI.
func (e Endpoint) String() string {
	return e.Scheme + ":" + e.Name
}

// ParseEndpoint splits an endpoint URI into scheme and name. Transports wrap
// parse failures in *contracts.RouteCreationError.
func ParseEndpoint(uri string) (Endpoint, error) {
	scheme, name, ok := strings.Cut(uri, ":")
	if !ok || scheme == "" || name == "" {
		return Endpoint{}, fmt.Errorf("malformed endpoint URI %q, want scheme:name", uri)
	}
	return Endpoint{Scheme: scheme, Name: strings.TrimPrefix(name, "//")}, nil
}
