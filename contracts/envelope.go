package contracts

import (
	"fmt"
)

// RedeliveredHeader flags an exchange the middleware has dispatched before.
// An absent header or a value other than boolean true means first delivery.
const RedeliveredHeader = "redelivered"

// Envelope is the bridge's internal representation of one inbound exchange:
// an opaque body plus transport headers. Envelopes are immutable; the headers
// map is copied on construction and never handed out by reference.
type Envelope struct {
	body    any
	headers map[string]any
}

// NewEnvelope creates an envelope from an exchange payload and headers.
func NewEnvelope(body any, headers map[string]any) Envelope {
	copied := make(map[string]any, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return Envelope{body: body, headers: copied}
}

// Body returns the raw payload.
func (e Envelope) Body() any {
	return e.body
}

// Header looks up a header by name.
func (e Envelope) Header(name string) (any, bool) {
	v, ok := e.headers[name]
	return v, ok
}

// Headers returns a copy of all headers.
func (e Envelope) Headers() map[string]any {
	copied := make(map[string]any, len(e.headers))
	for k, v := range e.headers {
		copied[k] = v
	}
	return copied
}

// Redelivered reports whether the middleware has delivered this exchange
// before. Absent or non-true values mean not redelivered.
func (e Envelope) Redelivered() bool {
	v, ok := e.headers[RedeliveredHeader]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// BodyAs converts the envelope body to the requested type. Besides a direct
// type match it supports the string/[]byte pair, which is what transports
// disagree on in practice.
func BodyAs[T any](e Envelope) (T, error) {
	var zero T
	if v, ok := e.body.(T); ok {
		return v, nil
	}
	switch any(zero).(type) {
	case string:
		if raw, ok := e.body.([]byte); ok {
			return any(string(raw)).(T), nil
		}
	case []byte:
		if s, ok := e.body.(string); ok {
			return any([]byte(s)).(T), nil
		}
	}
	return zero, &TypeConversionError{Value: e.body, Target: fmt.Sprintf("%T", zero)}
}

// HeaderAs looks up a header and converts it to the requested type. The
// boolean reports presence; a present header of an incompatible type yields
// a TypeConversionError.
func HeaderAs[T any](e Envelope, name string) (T, bool, error) {
	var zero T
	raw, ok := e.headers[name]
	if !ok {
		return zero, false, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, true, &TypeConversionError{Value: raw, Target: fmt.Sprintf("%T", zero)}
	}
	return v, true, nil
}
