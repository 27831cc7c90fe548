package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glimte/actorbridge-go/contracts"
	"github.com/glimte/actorbridge-go/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler() routing.ExchangeHandler {
	return routing.ExchangeHandlerFunc(func(ctx context.Context, ex routing.Exchange) error {
		ex.SetResult(fmt.Sprintf("received %v", ex.Body()))
		return nil
	})
}

func TestCreateRoute(t *testing.T) {
	t.Run("valid endpoint builds a route", func(t *testing.T) {
		transport := NewTransport()

		handle, err := transport.CreateRoute(context.Background(), "direct:orders", echoHandler(), nil)

		assert.NoError(t, err)
		assert.Equal(t, "direct:orders", handle.Endpoint())
	})

	t.Run("malformed URI fails with RouteCreationError", func(t *testing.T) {
		transport := NewTransport()

		_, err := transport.CreateRoute(context.Background(), "orders", echoHandler(), nil)

		var rcErr *contracts.RouteCreationError
		assert.ErrorAs(t, err, &rcErr)
	})

	t.Run("unsupported scheme fails with RouteCreationError", func(t *testing.T) {
		transport := NewTransport()

		_, err := transport.CreateRoute(context.Background(), "bogus:orders", echoHandler(), nil)

		var rcErr *contracts.RouteCreationError
		assert.ErrorAs(t, err, &rcErr)
		assert.Contains(t, err.Error(), "unsupported scheme")
	})

	t.Run("bound endpoint cannot be reused before removal", func(t *testing.T) {
		transport := NewTransport()
		handle, err := transport.CreateRoute(context.Background(), "direct:orders", echoHandler(), nil)
		require.NoError(t, err)

		_, err = transport.CreateRoute(context.Background(), "direct:orders", echoHandler(), nil)
		assert.Error(t, err)

		require.NoError(t, transport.RemoveRoute(context.Background(), handle))

		_, err = transport.CreateRoute(context.Background(), "direct:orders", echoHandler(), nil)
		assert.NoError(t, err)
	})
}

func TestRequest(t *testing.T) {
	t.Run("synchronous completion", func(t *testing.T) {
		transport := NewTransport()
		_, err := transport.CreateRoute(context.Background(), "direct:echo", echoHandler(), nil)
		require.NoError(t, err)

		result, err := transport.Request(context.Background(), "direct:echo", "some message")

		assert.NoError(t, err)
		assert.Equal(t, "received some message", result)
	})

	t.Run("suspended exchange completes after resume", func(t *testing.T) {
		transport := NewTransport()
		handler := routing.ExchangeHandlerFunc(func(ctx context.Context, ex routing.Exchange) error {
			ex.Suspend()
			go func() {
				time.Sleep(10 * time.Millisecond)
				ex.SetResult("async result")
				ex.Resume()
			}()
			return nil
		})
		_, err := transport.CreateRoute(context.Background(), "direct:async", handler, nil)
		require.NoError(t, err)

		result, err := transport.Request(context.Background(), "direct:async", "msg")

		assert.NoError(t, err)
		assert.Equal(t, "async result", result)
	})

	t.Run("handler error fails the exchange", func(t *testing.T) {
		transport := NewTransport()
		boom := errors.New("boom")
		handler := routing.ExchangeHandlerFunc(func(ctx context.Context, ex routing.Exchange) error {
			return boom
		})
		_, err := transport.CreateRoute(context.Background(), "direct:fail", handler, nil)
		require.NoError(t, err)

		_, err = transport.Request(context.Background(), "direct:fail", "msg")

		assert.ErrorIs(t, err, boom)
	})

	t.Run("unknown endpoint fails", func(t *testing.T) {
		transport := NewTransport()

		_, err := transport.Request(context.Background(), "direct:nowhere", "msg")

		assert.Error(t, err)
	})

	t.Run("only first completion wins", func(t *testing.T) {
		transport := NewTransport()
		handler := routing.ExchangeHandlerFunc(func(ctx context.Context, ex routing.Exchange) error {
			ex.SetResult("first")
			ex.SetResult("second")
			ex.SetFailure(errors.New("late failure"))
			return nil
		})
		_, err := transport.CreateRoute(context.Background(), "direct:once", handler, nil)
		require.NoError(t, err)

		result, err := transport.Request(context.Background(), "direct:once", "msg")

		assert.NoError(t, err)
		assert.Equal(t, "first", result)
	})
}

func TestRedeliveryPolicy(t *testing.T) {
	t.Run("failed exchange is redelivered with header set", func(t *testing.T) {
		transport := NewTransport()
		rejected := errors.New("rejected")
		handler := routing.ExchangeHandlerFunc(func(ctx context.Context, ex routing.Exchange) error {
			if !ex.Redelivered() {
				return rejected
			}
			ex.SetResult("accepted")
			return nil
		})
		def := routing.NewRouteDefinition().
			OnError(routing.ErrorPolicy{Match: routing.MatchIs(rejected), MaxRedeliveries: 1})
		_, err := transport.CreateRoute(context.Background(), "direct:retry", handler, def)
		require.NoError(t, err)

		result, err := transport.Request(context.Background(), "direct:retry", "msg")

		assert.NoError(t, err)
		assert.Equal(t, "accepted", result)
	})

	t.Run("redeliveries are bounded", func(t *testing.T) {
		transport := NewTransport()
		rejected := errors.New("rejected")
		deliveries := 0
		handler := routing.ExchangeHandlerFunc(func(ctx context.Context, ex routing.Exchange) error {
			deliveries++
			return rejected
		})
		def := routing.NewRouteDefinition().
			OnError(routing.ErrorPolicy{Match: routing.MatchIs(rejected), MaxRedeliveries: 2})
		_, err := transport.CreateRoute(context.Background(), "direct:bounded", handler, def)
		require.NoError(t, err)

		_, err = transport.Request(context.Background(), "direct:bounded", "msg")

		assert.ErrorIs(t, err, rejected)
		assert.Equal(t, 3, deliveries)
	})

	t.Run("route removed mid-redelivery receives no further deliveries", func(t *testing.T) {
		transport := NewTransport()
		rejected := errors.New("rejected")
		deliveries := 0
		var handle routing.RouteHandle
		handler := routing.ExchangeHandlerFunc(func(ctx context.Context, ex routing.Exchange) error {
			deliveries++
			require.NoError(t, transport.RemoveRoute(ctx, handle))
			return rejected
		})
		def := routing.NewRouteDefinition().
			OnError(routing.ErrorPolicy{Match: routing.MatchIs(rejected), MaxRedeliveries: 3})
		handle, err := transport.CreateRoute(context.Background(), "direct:gone", handler, def)
		require.NoError(t, err)

		_, err = transport.Request(context.Background(), "direct:gone", "msg")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no route")
		assert.Equal(t, 1, deliveries)
	})

	t.Run("handled error with transform becomes the result", func(t *testing.T) {
		transport := NewTransport()
		rejected := errors.New("rejected")
		handler := routing.ExchangeHandlerFunc(func(ctx context.Context, ex routing.Exchange) error {
			return rejected
		})
		def := routing.NewRouteDefinition().
			OnError(routing.ErrorPolicy{
				Match:   routing.MatchIs(rejected),
				Handled: true,
				Transform: func(err error) any {
					return "handled: " + err.Error()
				},
			})
		_, err := transport.CreateRoute(context.Background(), "direct:handled", handler, def)
		require.NoError(t, err)

		result, err := transport.Request(context.Background(), "direct:handled", "msg")

		assert.NoError(t, err)
		assert.Equal(t, "handled: rejected", result)
	})

	t.Run("unmatched error propagates", func(t *testing.T) {
		transport := NewTransport()
		rejected := errors.New("rejected")
		handler := routing.ExchangeHandlerFunc(func(ctx context.Context, ex routing.Exchange) error {
			return errors.New("other")
		})
		def := routing.NewRouteDefinition().
			OnError(routing.ErrorPolicy{Match: routing.MatchIs(rejected), Handled: true})
		_, err := transport.CreateRoute(context.Background(), "direct:unmatched", handler, def)
		require.NoError(t, err)

		_, err = transport.Request(context.Background(), "direct:unmatched", "msg")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "other")
	})
}
