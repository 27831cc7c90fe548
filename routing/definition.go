package routing

import (
	"errors"
)

// ErrorPolicy tells the middleware what to do when an exchange on a route
// fails with a matching error. Redelivery is executed by the transport, never
// by the bridge; the bridge only sees the redelivered flag on subsequent
// envelopes.
type ErrorPolicy struct {
	// Match selects the errors this policy applies to.
	Match func(error) bool

	// MaxRedeliveries is the number of additional delivery attempts after
	// the first failure.
	MaxRedeliveries int

	// Handled suppresses propagation of the error once redeliveries are
	// exhausted; the exchange then completes successfully.
	Handled bool

	// Transform computes the result body of a handled exchange from the
	// final error. A nil Transform yields an empty result.
	Transform func(error) any
}

// RouteDefinition is the mutable handle a consumer's route hook configures at
// route-build time. The zero value carries no policies.
type RouteDefinition struct {
	policies []ErrorPolicy
}

// NewRouteDefinition creates an empty route definition.
func NewRouteDefinition() *RouteDefinition {
	return &RouteDefinition{}
}

// OnError appends an error policy. Policies are consulted in the order they
// were added; the first match wins.
func (d *RouteDefinition) OnError(policy ErrorPolicy) *RouteDefinition {
	d.policies = append(d.policies, policy)
	return d
}

// PolicyFor returns the first policy matching err.
func (d *RouteDefinition) PolicyFor(err error) (ErrorPolicy, bool) {
	if d == nil {
		return ErrorPolicy{}, false
	}
	for _, p := range d.policies {
		if p.Match == nil || p.Match(err) {
			return p, true
		}
	}
	return ErrorPolicy{}, false
}

// MatchIs builds a policy predicate matching errors whose chain contains
// target.
func MatchIs(target error) func(error) bool {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}
