// Package reliability provides the retry and circuit breaker primitives the
// client wraps around request submission. Neither is involved in exchange
// redelivery; that policy belongs to the routing middleware.
package reliability
