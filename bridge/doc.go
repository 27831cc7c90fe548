// Package bridge exposes actor message handlers as endpoints of a routing
// middleware and mediates request/reply between the two.
//
// A Consumer binds one actor identity to one endpoint: it builds the route,
// converts inbound exchanges into envelopes, dispatches them to the actor and
// arms a Waiter that resolves with the actor's reply, an explicit Ack or
// Failure sentinel, or a timeout. The ActivationTracker is the process-wide
// registry of route lifecycle state with blocking await operations.
//
// The bridge configures redelivery and error handling on the route but never
// executes retries itself; that stays with the middleware. Likewise actor
// supervision stays with the actor runtime: a restarted actor keeps receiving
// exchanges because routes bind to the stable actor identity, not to an
// instance.
package bridge
