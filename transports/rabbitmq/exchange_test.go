package rabbitmq

import (
	"testing"

	"github.com/glimte/actorbridge-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireFrames(t *testing.T) {
	t.Run("request body round-trips", func(t *testing.T) {
		data, err := encodeBody("some message")
		require.NoError(t, err)

		body, err := decodeBody(data)

		assert.NoError(t, err)
		assert.Equal(t, "some message", body)
	})

	t.Run("error reply round-trips", func(t *testing.T) {
		data, err := encodeReply(wireReply{Error: "did not receive a reply within 10ms"})
		require.NoError(t, err)

		reply, err := decodeReply(data)

		assert.NoError(t, err)
		assert.Equal(t, "did not receive a reply within 10ms", reply.Error)
		assert.Nil(t, reply.Body)
	})
}

func TestNewExchange(t *testing.T) {
	t.Run("first delivery is not redelivered", func(t *testing.T) {
		body, _ := encodeBody("msg")

		ex, err := newExchange(amqp.Delivery{Body: body})

		require.NoError(t, err)
		assert.Equal(t, "msg", ex.Body())
		assert.False(t, ex.Redelivered())
	})

	t.Run("redelivery count header marks the exchange redelivered", func(t *testing.T) {
		body, _ := encodeBody("msg")

		ex, err := newExchange(amqp.Delivery{
			Body:    body,
			Headers: amqp.Table{redeliveryCountHeader: int32(1), "custom": "kept"},
		})

		require.NoError(t, err)
		assert.True(t, ex.Redelivered())
		assert.Equal(t, 1, ex.redeliveryCount)

		headers := ex.Headers()
		assert.Equal(t, true, headers[contracts.RedeliveredHeader])
		assert.Equal(t, "kept", headers["custom"])
		assert.NotContains(t, headers, redeliveryCountHeader)
	})

	t.Run("broker requeue flag marks the exchange redelivered", func(t *testing.T) {
		body, _ := encodeBody("msg")

		ex, err := newExchange(amqp.Delivery{Body: body, Redelivered: true})

		require.NoError(t, err)
		assert.True(t, ex.Redelivered())
	})

	t.Run("malformed payload is rejected", func(t *testing.T) {
		_, err := newExchange(amqp.Delivery{Body: []byte("not json")})
		assert.Error(t, err)
	})
}
