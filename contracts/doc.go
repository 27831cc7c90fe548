// Package contracts defines the shared value types of the actor bridge.
//
// The central type is Envelope, the immutable representation of one inbound
// exchange (body plus headers) that is dispatched to an actor. The package
// also carries the Ack and Failure reply sentinels used by manual-ack
// consumers, and the error taxonomy every layer of the bridge reports
// failures with:
//   - RouteCreationError: endpoint could not be built
//   - TimeoutError: reply, acknowledgement or lifecycle event not in time
//   - ExecutionError: exchange failed, wrapping the original cause
//   - TypeConversionError: body/header accessor type mismatch
package contracts
