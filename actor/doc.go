// Package actor is a minimal mailbox-serialized actor runtime.
//
// It exists so the bridge has a concrete runtime to bind to out of the box;
// the bridge core itself only consumes the Deliver/OnStopped surface and
// works with any runtime exposing it. Each actor processes one envelope at a
// time on its own goroutine. A panic during Receive is recovered and counted
// as a restart; the actor keeps its identity and mailbox, which is what lets
// routes survive restarts. Only an explicit Stop removes the actor and fires
// stop notifications.
package actor
