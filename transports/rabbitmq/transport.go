// Package rabbitmq implements the routing middleware boundary over an AMQP
// broker. Each consumer endpoint maps to a queue; redelivery policy is
// executed by republishing the message with an incremented redelivery count,
// and request/reply uses a per-transport exclusive reply queue correlated by
// message ID.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/actorbridge-go/contracts"
	"github.com/glimte/actorbridge-go/routing"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Scheme is the endpoint scheme this transport serves.
const Scheme = "amqp"

// redeliveryCountHeader carries how many times a message has been
// republished by policy. The broker-level Redelivered flag only covers
// requeues, so the count travels in an application header.
const redeliveryCountHeader = "x-redelivery-count"

// Transport is an AMQP implementation of routing.Transport.
type Transport struct {
	conn       *amqp.Connection
	pubMu      sync.Mutex
	pubChannel *amqp.Channel

	replyQueue string
	mu         sync.Mutex
	routes     map[string]*route
	pending    map[string]chan wireReply
	closed     bool

	requestTimeout time.Duration
	logger         *slog.Logger
}

type route struct {
	id        string
	endpoint  string
	queue     string
	handler   routing.ExchangeHandler
	def       *routing.RouteDefinition
	channel   *amqp.Channel
	transport *Transport
	done      chan struct{}
}

func (r *route) Endpoint() string { return r.endpoint }

// TransportConfig holds configuration for the transport.
type TransportConfig struct {
	ReplyQueue     string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// TransportOption configures the transport.
type TransportOption func(*TransportConfig)

// WithReplyQueue sets a custom reply queue name.
func WithReplyQueue(name string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ReplyQueue = name
	}
}

// WithRequestTimeout bounds how long Request waits when the caller's context
// has no deadline of its own.
func WithRequestTimeout(timeout time.Duration) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.RequestTimeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Logger = logger
	}
}

// NewTransport connects to the broker and starts the reply consumer.
func NewTransport(connectionString string, opts ...TransportOption) (*Transport, error) {
	cfg := &TransportConfig{
		ReplyQueue:     fmt.Sprintf("actorbridge.reply.%s", uuid.New().String()[:8]),
		RequestTimeout: 30 * time.Second,
		Logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	pubChannel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	t := &Transport{
		conn:           conn,
		pubChannel:     pubChannel,
		replyQueue:     cfg.ReplyQueue,
		routes:         make(map[string]*route),
		pending:        make(map[string]chan wireReply),
		requestTimeout: cfg.RequestTimeout,
		logger:         cfg.Logger,
	}

	if err := t.startReplyConsumer(); err != nil {
		pubChannel.Close()
		conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transport) startReplyConsumer() error {
	channel, err := t.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open reply channel: %w", err)
	}
	if _, err := channel.QueueDeclare(t.replyQueue, false, true, true, false, nil); err != nil {
		channel.Close()
		return fmt.Errorf("failed to declare reply queue: %w", err)
	}
	deliveries, err := channel.Consume(t.replyQueue, "", true, true, false, false, nil)
	if err != nil {
		channel.Close()
		return fmt.Errorf("failed to consume reply queue: %w", err)
	}

	go func() {
		for d := range deliveries {
			reply, err := decodeReply(d.Body)
			if err != nil {
				t.logger.Warn("discarding malformed reply", "error", err)
				continue
			}
			t.mu.Lock()
			ch, ok := t.pending[d.CorrelationId]
			t.mu.Unlock()
			if !ok {
				// Caller gave up already.
				continue
			}
			select {
			case ch <- reply:
			default:
			}
		}
	}()
	return nil
}

// CreateRoute implements routing.Transport.
func (t *Transport) CreateRoute(ctx context.Context, endpoint string, handler routing.ExchangeHandler, def *routing.RouteDefinition) (routing.RouteHandle, error) {
	if handler == nil {
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("handler cannot be nil")}
	}
	ep, err := routing.ParseEndpoint(endpoint)
	if err != nil {
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: err}
	}
	if ep.Scheme != Scheme {
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("unsupported scheme %q", ep.Scheme)}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("transport closed")}
	}
	if _, exists := t.routes[endpoint]; exists {
		t.mu.Unlock()
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("endpoint already bound")}
	}
	t.mu.Unlock()

	channel, err := t.conn.Channel()
	if err != nil {
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("failed to open channel: %w", err)}
	}
	if _, err := channel.QueueDeclare(ep.Name, true, false, false, false, nil); err != nil {
		channel.Close()
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("failed to declare queue: %w", err)}
	}
	deliveries, err := channel.Consume(ep.Name, "", false, false, false, false, nil)
	if err != nil {
		channel.Close()
		return nil, &contracts.RouteCreationError{Endpoint: endpoint, Err: fmt.Errorf("failed to consume queue: %w", err)}
	}

	r := &route{
		id:        uuid.New().String(),
		endpoint:  endpoint,
		queue:     ep.Name,
		handler:   handler,
		def:       def,
		channel:   channel,
		transport: t,
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	t.routes[endpoint] = r
	t.mu.Unlock()

	go r.consume(deliveries)

	t.logger.Info("route created", "endpoint", endpoint, "queue", ep.Name, "routeId", r.id)
	return r, nil
}

func (r *route) consume(deliveries <-chan amqp.Delivery) {
	defer close(r.done)
	for d := range deliveries {
		go r.handleDelivery(d)
	}
}

func (r *route) handleDelivery(d amqp.Delivery) {
	ex, err := newExchange(d)
	if err != nil {
		r.transport.logger.Warn("discarding malformed message", "queue", r.queue, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if herr := r.handler.HandleExchange(context.Background(), ex); herr != nil {
		ex.SetFailure(herr)
	}
	if ex.isSuspended() {
		<-ex.resumed
	}

	result, failure, completed := ex.outcome()
	if !completed {
		failure = fmt.Errorf("handler returned without completing exchange for %s", r.endpoint)
	}

	if failure != nil {
		if policy, matched := r.def.PolicyFor(failure); matched {
			if ex.redeliveryCount < policy.MaxRedeliveries {
				err := r.redeliver(d, ex.redeliveryCount+1)
				if err == nil {
					_ = d.Ack(false)
					return
				}
				r.transport.logger.Warn("redelivery publish failed", "queue", r.queue, "error", err)
			} else if policy.Handled {
				var body any
				if policy.Transform != nil {
					body = policy.Transform(failure)
				}
				r.reply(d, wireReply{Body: body})
				_ = d.Ack(false)
				return
			}
		}
		r.reply(d, wireReply{Error: failure.Error()})
		_ = d.Ack(false)
		return
	}

	r.reply(d, wireReply{Body: result})
	_ = d.Ack(false)
}

// redeliver republishes the message to the route's queue with the
// redelivery count incremented, which is what stamps the redelivered flag
// the next handler sees.
func (r *route) redeliver(d amqp.Delivery, count int) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[redeliveryCountHeader] = int32(count)

	return r.transport.publish(r.queue, amqp.Publishing{
		ContentType:   d.ContentType,
		CorrelationId: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		Headers:       headers,
		Body:          d.Body,
	})
}

func (r *route) reply(d amqp.Delivery, reply wireReply) {
	if d.ReplyTo == "" {
		return
	}
	body, err := encodeReply(reply)
	if err != nil {
		r.transport.logger.Warn("failed to encode reply", "queue", r.queue, "error", err)
		return
	}
	if err := r.transport.publish(d.ReplyTo, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: d.CorrelationId,
		Body:          body,
	}); err != nil {
		r.transport.logger.Warn("failed to publish reply", "queue", r.queue, "error", err)
	}
}

// RemoveRoute implements routing.Transport.
func (t *Transport) RemoveRoute(ctx context.Context, handle routing.RouteHandle) error {
	r, ok := handle.(*route)
	if !ok {
		return fmt.Errorf("unknown route handle %T", handle)
	}

	t.mu.Lock()
	current, exists := t.routes[r.endpoint]
	if !exists || current.id != r.id {
		t.mu.Unlock()
		return fmt.Errorf("route for endpoint %s not found", r.endpoint)
	}
	delete(t.routes, r.endpoint)
	t.mu.Unlock()

	if err := r.channel.Close(); err != nil {
		return fmt.Errorf("failed to close route channel: %w", err)
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.logger.Info("route removed", "endpoint", r.endpoint)
	return nil
}

// Request implements routing.Transport.
func (t *Transport) Request(ctx context.Context, endpoint string, body any) (any, error) {
	ep, err := routing.ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if ep.Scheme != Scheme {
		return nil, fmt.Errorf("unsupported scheme %q", ep.Scheme)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.requestTimeout)
		defer cancel()
	}

	correlationID := uuid.New().String()
	replyCh := make(chan wireReply, 1)

	t.mu.Lock()
	t.pending[correlationID] = replyCh
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, correlationID)
		t.mu.Unlock()
	}()

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	if err := t.publish(ep.Name, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       t.replyQueue,
		Body:          payload,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	select {
	case reply := <-replyCh:
		if reply.Error != "" {
			return nil, fmt.Errorf("%s", reply.Error)
		}
		return reply.Body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) publish(queue string, msg amqp.Publishing) error {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	return t.pubChannel.PublishWithContext(context.Background(), "", queue, false, false, msg)
}

// Close implements routing.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	routes := make([]*route, 0, len(t.routes))
	for _, r := range t.routes {
		routes = append(routes, r)
	}
	t.routes = make(map[string]*route)
	t.mu.Unlock()

	for _, r := range routes {
		_ = r.channel.Close()
	}

	t.pubMu.Lock()
	_ = t.pubChannel.Close()
	t.pubMu.Unlock()

	return t.conn.Close()
}
