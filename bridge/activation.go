package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/glimte/actorbridge-go/contracts"
)

// RouteState is the lifecycle state of one actor's route.
type RouteState int

const (
	StateUnregistered RouteState = iota
	StateActivating
	StateActive
	StateDeactivating
	StateInactive
	StateFailed
)

// String implements fmt.Stringer.
func (s RouteState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	case StateInactive:
		return "inactive"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type activationEntry struct {
	state    RouteState
	buildErr error
	// changed is closed and replaced on every transition, waking waiters.
	changed chan struct{}
}

// ActivationTracker is the process-wide registry of route activation state,
// keyed by actor identity. Consumers drive the transitions; the tracker only
// records them and wakes blocked await calls. All transitions are broadcast,
// there is no polling.
type ActivationTracker struct {
	mu      sync.Mutex
	entries map[string]*activationEntry
	// registered is closed and replaced when an identity first gets an
	// entry, waking await calls that arrived before registration. Queries
	// never insert entries; only transitions do.
	registered chan struct{}
}

// NewActivationTracker creates an empty tracker.
func NewActivationTracker() *ActivationTracker {
	return &ActivationTracker{
		entries:    make(map[string]*activationEntry),
		registered: make(chan struct{}),
	}
}

// caller must hold t.mu.
func (t *ActivationTracker) entry(actorID string) *activationEntry {
	e, ok := t.entries[actorID]
	if !ok {
		e = &activationEntry{state: StateUnregistered, changed: make(chan struct{})}
		t.entries[actorID] = e
		close(t.registered)
		t.registered = make(chan struct{})
	}
	return e
}

// caller must hold t.mu.
func (t *ActivationTracker) transition(e *activationEntry, state RouteState) {
	e.state = state
	close(e.changed)
	e.changed = make(chan struct{})
}

// activating marks the start of a route build. The previous registration for
// this identity must have reached a terminal state first.
func (t *ActivationTracker) activating(actorID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(actorID)
	switch e.state {
	case StateActivating, StateActive, StateDeactivating:
		return fmt.Errorf("actor %s is already registered (state %s)", actorID, e.state)
	}
	e.buildErr = nil
	t.transition(e, StateActivating)
	return nil
}

// active marks a successful route build.
func (t *ActivationTracker) active(actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transition(t.entry(actorID), StateActive)
}

// failed marks a route build failure. Terminal for this registration.
func (t *ActivationTracker) failed(actorID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(actorID)
	e.buildErr = err
	t.transition(e, StateFailed)
}

// deactivating marks the start of route teardown.
func (t *ActivationTracker) deactivating(actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transition(t.entry(actorID), StateDeactivating)
}

// inactive marks teardown completion. The identity may be registered again
// afterwards.
func (t *ActivationTracker) inactive(actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transition(t.entry(actorID), StateInactive)
}

// State returns the current route state for an actor identity.
func (t *ActivationTracker) State(actorID string) RouteState {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[actorID]
	if !ok {
		return StateUnregistered
	}
	return e.state
}

// RouteCount returns the number of routes currently accepting traffic.
func (t *ActivationTracker) RouteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, e := range t.entries {
		if e.state == StateActive {
			count++
		}
	}
	return count
}

// AwaitActivation blocks until the actor's route is active. A failed route
// build surfaces as the build's *contracts.RouteCreationError; a route still
// building at the deadline surfaces as *contracts.TimeoutError. The two are
// never conflated.
func (t *ActivationTracker) AwaitActivation(actorID string, timeout time.Duration) error {
	return t.await(actorID, timeout, "route activation", func(e *activationEntry) (bool, error) {
		switch e.state {
		case StateActive:
			return true, nil
		case StateFailed:
			return true, e.buildErr
		}
		return false, nil
	})
}

// AwaitDeactivation blocks until the actor's route has been torn down.
func (t *ActivationTracker) AwaitDeactivation(actorID string, timeout time.Duration) error {
	return t.await(actorID, timeout, "route deactivation", func(e *activationEntry) (bool, error) {
		if e.state == StateInactive {
			return true, nil
		}
		return false, nil
	})
}

func (t *ActivationTracker) await(actorID string, timeout time.Duration, expected string, done func(*activationEntry) (bool, error)) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		t.mu.Lock()
		wake := t.registered
		if e, ok := t.entries[actorID]; ok {
			if finished, err := done(e); finished {
				t.mu.Unlock()
				return err
			}
			wake = e.changed
		}
		t.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return &contracts.TimeoutError{Expected: expected, Waited: timeout}
		}
	}
}
