package bridge

import (
	"time"

	"github.com/glimte/actorbridge-go/contracts"
	"github.com/google/uuid"
)

// ResponseProtocol declares how a consumer's actor is expected to answer
// exchanges. Declaring it up front removes any ambiguity about what a reply
// value means (see Ack and Failure in package contracts).
type ResponseProtocol int

const (
	// AutoReply expects the actor to reply with the result body of the
	// exchange.
	AutoReply ResponseProtocol = iota

	// ManualAck expects the actor to reply with contracts.Ack or
	// contracts.Failure; a successful exchange carries no result body.
	ManualAck
)

// String implements fmt.Stringer.
func (p ResponseProtocol) String() string {
	if p == ManualAck {
		return "manual-ack"
	}
	return "auto-reply"
}

// expected returns the awaited-event wording for timeout errors.
func (p ResponseProtocol) expected() string {
	if p == ManualAck {
		return "an acknowledgement"
	}
	return "a reply"
}

type resolutionKind int

const (
	resolutionReply resolutionKind = iota
	resolutionAck
	resolutionFailure
)

type resolution struct {
	kind  resolutionKind
	value any
	err   error
}

// Waiter is the per-exchange synchronization object. It accepts exactly one
// resolution (a reply, an Ack, a Failure or the deadline) and discards
// anything arriving after that. Replies are matched to exchanges purely
// through the waiter a dispatch armed, never through message order, so a
// reply can only ever resolve its own exchange.
type Waiter struct {
	id       string
	protocol ResponseProtocol
	timeout  time.Duration
	timer    *time.Timer
	ch       chan resolution
	sem      chan struct{}
}

func newWaiter(protocol ResponseProtocol, timeout time.Duration) *Waiter {
	w := &Waiter{
		id:       uuid.New().String(),
		protocol: protocol,
		timeout:  timeout,
		timer:    time.NewTimer(timeout),
		ch:       make(chan resolution, 1),
		sem:      make(chan struct{}, 1),
	}
	return w
}

// CorrelationID returns the waiter's correlation token.
func (w *Waiter) CorrelationID() string {
	return w.id
}

// Resolve records the actor's response. Failure and Ack sentinels are
// recognized; any other value is a plain reply. Resolve is safe to call from
// any goroutine and is a no-op once the waiter is resolved or timed out.
func (w *Waiter) Resolve(v any) {
	switch r := v.(type) {
	case contracts.Failure:
		w.deliver(resolution{kind: resolutionFailure, err: r.Err})
	case *contracts.Failure:
		w.deliver(resolution{kind: resolutionFailure, err: r.Err})
	case contracts.Ack:
		w.deliver(resolution{kind: resolutionAck})
	default:
		w.deliver(resolution{kind: resolutionReply, value: v})
	}
}

// deliver claims the single resolution slot. First writer wins; the loser's
// resolution is discarded.
func (w *Waiter) deliver(r resolution) bool {
	select {
	case w.sem <- struct{}{}:
		w.ch <- r
		return true
	default:
		return false
	}
}

// Await blocks until the waiter resolves or the deadline fires, whichever
// claims the slot first. A timeout yields a *contracts.TimeoutError whose
// wording names the declared protocol; an actor Failure yields a
// *contracts.ExecutionError wrapping the actor's error.
func (w *Waiter) Await() (any, error) {
	defer w.timer.Stop()

	select {
	case r := <-w.ch:
		return w.outcome(r)
	case <-w.timer.C:
		if w.deliver(resolution{}) {
			// Deadline won the slot; late resolutions are now no-ops.
			return nil, &contracts.TimeoutError{Expected: w.protocol.expected(), Waited: w.timeout}
		}
		// A resolution claimed the slot just before the deadline.
		return w.outcome(<-w.ch)
	}
}

func (w *Waiter) outcome(r resolution) (any, error) {
	switch r.kind {
	case resolutionAck:
		return nil, nil
	case resolutionFailure:
		return nil, &contracts.ExecutionError{Err: r.err}
	default:
		return r.value, nil
	}
}
