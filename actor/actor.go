package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/glimte/actorbridge-go/contracts"
)

// Receiver handles envelopes delivered to an actor. Receive runs on the
// actor's own mailbox goroutine, one envelope at a time.
type Receiver interface {
	Receive(ctx *Context)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx *Context)

// Receive implements Receiver.
func (f ReceiverFunc) Receive(ctx *Context) {
	f(ctx)
}

// Context carries one delivered envelope and its reply channel into a
// Receive call.
type Context struct {
	ctx     context.Context
	env     contracts.Envelope
	respond func(any)
	once    sync.Once
	pid     *PID
}

// Context returns the delivery context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Envelope returns the delivered envelope.
func (c *Context) Envelope() contracts.Envelope {
	return c.env
}

// Self returns the receiving actor's PID.
func (c *Context) Self() *PID {
	return c.pid
}

// Reply sends a response to whoever dispatched the envelope. Only the first
// call takes effect; deliveries without a reply channel ignore it.
func (c *Context) Reply(v any) {
	if c.respond == nil {
		return
	}
	c.once.Do(func() {
		c.respond(v)
	})
}

type delivery struct {
	ctx     context.Context
	env     contracts.Envelope
	respond func(any)
}

// PID is the stable handle of a spawned actor. It survives restarts: a panic
// in Receive is recovered and the mailbox keeps serving under the same PID,
// so routes bound to the actor's identity keep working.
type PID struct {
	id       string
	system   *System
	receiver Receiver
	mailbox  chan delivery
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	restarts atomic.Int64
}

// ID returns the actor identity.
func (p *PID) ID() string {
	return p.id
}

// Restarts returns how many times the actor has been restarted after a
// panic.
func (p *PID) Restarts() int64 {
	return p.restarts.Load()
}

// Stop shuts the actor down. Envelopes still queued in the mailbox are
// dropped; their exchanges resolve by timeout upstream.
func (p *PID) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
}

// Done is closed once the mailbox loop has exited and stop notifications
// have fired.
func (p *PID) Done() <-chan struct{} {
	return p.done
}

func (p *PID) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			p.system.unregister(p.id)
			return
		case d := <-p.mailbox:
			p.invoke(d)
		}
	}
}

func (p *PID) invoke(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			p.restarts.Add(1)
			p.system.logger.Error("actor panicked, restarting",
				"actor", p.id,
				"panic", r,
				"restarts", p.restarts.Load(),
			)
		}
	}()
	p.receiver.Receive(&Context{ctx: d.ctx, env: d.env, respond: d.respond, pid: p})
}

// System owns a flat set of actors keyed by identity and fans stop
// notifications out to subscribers.
type System struct {
	mu          sync.RWMutex
	actors      map[string]*PID
	subs        map[int]func(string)
	nextSub     int
	mailboxSize int
	logger      *slog.Logger
}

// SystemOption configures the actor system.
type SystemOption func(*System)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SystemOption {
	return func(s *System) {
		s.logger = logger
	}
}

// WithMailboxSize sets the per-actor mailbox capacity.
func WithMailboxSize(size int) SystemOption {
	return func(s *System) {
		s.mailboxSize = size
	}
}

// NewSystem creates an empty actor system.
func NewSystem(opts ...SystemOption) *System {
	s := &System{
		actors:      make(map[string]*PID),
		subs:        make(map[int]func(string)),
		mailboxSize: 64,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts an actor under the given identity.
func (s *System) Spawn(id string, receiver Receiver) (*PID, error) {
	if id == "" {
		return nil, fmt.Errorf("actor id cannot be empty")
	}
	if receiver == nil {
		return nil, fmt.Errorf("receiver cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actors[id]; exists {
		return nil, fmt.Errorf("actor %s already exists", id)
	}

	p := &PID{
		id:       id,
		system:   s,
		receiver: receiver,
		mailbox:  make(chan delivery, s.mailboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.actors[id] = p
	go p.loop()

	s.logger.Debug("actor spawned", "actor", id)
	return p, nil
}

// Deliver enqueues an envelope on the actor's mailbox. It fails if the actor
// does not exist or stops before the envelope is accepted. The respond
// callback, if not nil, receives the actor's reply.
func (s *System) Deliver(ctx context.Context, id string, env contracts.Envelope, respond func(any)) error {
	s.mu.RLock()
	p, ok := s.actors[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("actor %s does not exist", id)
	}

	select {
	case p.mailbox <- delivery{ctx: ctx, env: env, respond: respond}:
		return nil
	case <-p.quit:
		return fmt.Errorf("actor %s is stopped", id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnStopped subscribes to actor stop notifications. The returned function
// cancels the subscription.
func (s *System) OnStopped(fn func(actorID string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.nextSub
	s.nextSub++
	s.subs[token] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, token)
	}
}

// Shutdown stops every actor and waits for their mailbox loops to exit.
func (s *System) Shutdown() {
	s.mu.RLock()
	pids := make([]*PID, 0, len(s.actors))
	for _, p := range s.actors {
		pids = append(pids, p)
	}
	s.mu.RUnlock()

	for _, p := range pids {
		p.Stop()
	}
	for _, p := range pids {
		<-p.Done()
	}
}

func (s *System) unregister(id string) {
	s.mu.Lock()
	delete(s.actors, id)
	subs := make([]func(string), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.logger.Debug("actor stopped", "actor", id)
	for _, fn := range subs {
		fn(id)
	}
}
