package routing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEndpoint(t *testing.T) {
	t.Run("scheme and name", func(t *testing.T) {
		ep, err := ParseEndpoint("direct:orders")

		assert.NoError(t, err)
		assert.Equal(t, "direct", ep.Scheme)
		assert.Equal(t, "orders", ep.Name)
	})

	t.Run("double-slash form", func(t *testing.T) {
		ep, err := ParseEndpoint("amqp://orders")

		assert.NoError(t, err)
		assert.Equal(t, "amqp", ep.Scheme)
		assert.Equal(t, "orders", ep.Name)
	})

	t.Run("missing separator fails", func(t *testing.T) {
		_, err := ParseEndpoint("orders")
		assert.Error(t, err)
	})

	t.Run("empty name fails", func(t *testing.T) {
		_, err := ParseEndpoint("direct:")
		assert.Error(t, err)
	})
}

func TestRouteDefinition(t *testing.T) {
	sentinel := errors.New("rejected")

	t.Run("first matching policy wins", func(t *testing.T) {
		def := NewRouteDefinition().
			OnError(ErrorPolicy{Match: MatchIs(sentinel), MaxRedeliveries: 1}).
			OnError(ErrorPolicy{MaxRedeliveries: 9})

		p, ok := def.PolicyFor(fmt.Errorf("wrapped: %w", sentinel))

		assert.True(t, ok)
		assert.Equal(t, 1, p.MaxRedeliveries)
	})

	t.Run("nil match means match all", func(t *testing.T) {
		def := NewRouteDefinition().OnError(ErrorPolicy{Handled: true})

		_, ok := def.PolicyFor(errors.New("anything"))

		assert.True(t, ok)
	})

	t.Run("no policy for unmatched error", func(t *testing.T) {
		def := NewRouteDefinition().OnError(ErrorPolicy{Match: MatchIs(sentinel)})

		_, ok := def.PolicyFor(errors.New("other"))

		assert.False(t, ok)
	})

	t.Run("nil definition has no policies", func(t *testing.T) {
		var def *RouteDefinition

		_, ok := def.PolicyFor(sentinel)

		assert.False(t, ok)
	})
}
