package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelope(t *testing.T) {
	t.Run("NewEnvelope copies headers", func(t *testing.T) {
		headers := map[string]any{"k": "v"}
		env := NewEnvelope("body", headers)

		headers["k"] = "mutated"

		v, ok := env.Header("k")
		assert.True(t, ok)
		assert.Equal(t, "v", v)
	})

	t.Run("Headers returns a copy", func(t *testing.T) {
		env := NewEnvelope("body", map[string]any{"k": "v"})

		env.Headers()["k"] = "mutated"

		v, _ := env.Header("k")
		assert.Equal(t, "v", v)
	})

	t.Run("Header reports absence", func(t *testing.T) {
		env := NewEnvelope("body", nil)

		_, ok := env.Header("missing")

		assert.False(t, ok)
	})
}

func TestRedelivered(t *testing.T) {
	t.Run("absent header means not redelivered", func(t *testing.T) {
		env := NewEnvelope("body", nil)
		assert.False(t, env.Redelivered())
	})

	t.Run("false header means not redelivered", func(t *testing.T) {
		env := NewEnvelope("body", map[string]any{RedeliveredHeader: false})
		assert.False(t, env.Redelivered())
	})

	t.Run("true header means redelivered", func(t *testing.T) {
		env := NewEnvelope("body", map[string]any{RedeliveredHeader: true})
		assert.True(t, env.Redelivered())
	})

	t.Run("non-boolean header means not redelivered", func(t *testing.T) {
		env := NewEnvelope("body", map[string]any{RedeliveredHeader: "true"})
		assert.False(t, env.Redelivered())
	})
}

func TestBodyAs(t *testing.T) {
	t.Run("direct type match", func(t *testing.T) {
		env := NewEnvelope("some message", nil)

		body, err := BodyAs[string](env)

		assert.NoError(t, err)
		assert.Equal(t, "some message", body)
	})

	t.Run("bytes convert to string", func(t *testing.T) {
		env := NewEnvelope([]byte("raw"), nil)

		body, err := BodyAs[string](env)

		assert.NoError(t, err)
		assert.Equal(t, "raw", body)
	})

	t.Run("string converts to bytes", func(t *testing.T) {
		env := NewEnvelope("raw", nil)

		body, err := BodyAs[[]byte](env)

		assert.NoError(t, err)
		assert.Equal(t, []byte("raw"), body)
	})

	t.Run("incompatible body fails with TypeConversionError", func(t *testing.T) {
		env := NewEnvelope(42, nil)

		_, err := BodyAs[string](env)

		var convErr *TypeConversionError
		assert.ErrorAs(t, err, &convErr)
		assert.Equal(t, 42, convErr.Value)
	})
}

func TestHeaderAs(t *testing.T) {
	t.Run("typed lookup", func(t *testing.T) {
		env := NewEnvelope(nil, map[string]any{"count": 3})

		v, ok, err := HeaderAs[int](env, "count")

		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3, v)
	})

	t.Run("absent header is not an error", func(t *testing.T) {
		env := NewEnvelope(nil, nil)

		_, ok, err := HeaderAs[int](env, "count")

		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wrong type fails with TypeConversionError", func(t *testing.T) {
		env := NewEnvelope(nil, map[string]any{"count": "three"})

		_, ok, err := HeaderAs[int](env, "count")

		assert.True(t, ok)
		var convErr *TypeConversionError
		assert.ErrorAs(t, err, &convErr)
	})
}
