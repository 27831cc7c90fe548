package contracts

import (
	"fmt"
	"time"
)

// RouteCreationError reports that a consumer endpoint could not be built, for
// example because the endpoint URI is malformed or names an unsupported
// scheme. It is terminal for that consumer and is surfaced to anyone waiting
// on its activation.
type RouteCreationError struct {
	Endpoint string
	Err      error
}

func (e *RouteCreationError) Error() string {
	return fmt.Sprintf("route creation failed for endpoint %q: %v", e.Endpoint, e.Err)
}

func (e *RouteCreationError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that an awaited event did not happen in time. Expected
// names what was awaited so reply timeouts, acknowledgement timeouts and
// lifecycle timeouts read differently.
type TimeoutError struct {
	Expected string
	Waited   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("did not receive %s within %v", e.Expected, e.Waited)
}

// ExecutionError wraps the underlying cause of a failed exchange. The cause
// chain preserves the original error so callers can unwrap down to whatever
// the actor signalled.
type ExecutionError struct {
	Endpoint string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("exchange with %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("exchange failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TypeConversionError reports that an envelope body or header could not be
// converted to the requested type. It is local to the accessor call.
type TypeConversionError struct {
	Value  any
	Target string
}

func (e *TypeConversionError) Error() string {
	return fmt.Sprintf("cannot convert %T to %s", e.Value, e.Target)
}
