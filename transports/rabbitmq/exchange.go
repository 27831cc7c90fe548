package rabbitmq

import (
	"sync"

	"github.com/glimte/actorbridge-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// exchange adapts one AMQP delivery to routing.Exchange.
type exchange struct {
	body            any
	headers         map[string]any
	redelivered     bool
	redeliveryCount int

	mu        sync.Mutex
	completed bool
	suspended bool
	result    any
	failure   error

	resumeOnce sync.Once
	resumed    chan struct{}
}

func newExchange(d amqp.Delivery) (*exchange, error) {
	body, err := decodeBody(d.Body)
	if err != nil {
		return nil, err
	}

	count := 0
	headers := make(map[string]any, len(d.Headers)+1)
	for k, v := range d.Headers {
		if k == redeliveryCountHeader {
			if n, ok := v.(int32); ok {
				count = int(n)
			}
			continue
		}
		headers[k] = v
	}

	redelivered := d.Redelivered || count > 0
	if redelivered {
		headers[contracts.RedeliveredHeader] = true
	}

	return &exchange{
		body:            body,
		headers:         headers,
		redelivered:     redelivered,
		redeliveryCount: count,
		resumed:         make(chan struct{}),
	}, nil
}

func (x *exchange) Body() any { return x.body }

func (x *exchange) Headers() map[string]any {
	copied := make(map[string]any, len(x.headers))
	for k, v := range x.headers {
		copied[k] = v
	}
	return copied
}

func (x *exchange) Redelivered() bool { return x.redelivered }

func (x *exchange) SetResult(v any) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.completed {
		return
	}
	x.completed = true
	x.result = v
}

func (x *exchange) SetFailure(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.completed {
		return
	}
	x.completed = true
	x.failure = err
}

func (x *exchange) IsAsync() bool { return true }

func (x *exchange) Suspend() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.suspended = true
}

func (x *exchange) Resume() {
	x.resumeOnce.Do(func() {
		close(x.resumed)
	})
}

func (x *exchange) isSuspended() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.suspended
}

func (x *exchange) outcome() (any, error, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.result, x.failure, x.completed
}
