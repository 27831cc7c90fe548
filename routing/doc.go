// Package routing defines the boundary between the actor bridge and the
// message-routing middleware.
//
// The bridge never moves messages itself. It builds routes on a Transport,
// hands each route an ExchangeHandler, and completes the Exchange objects the
// transport delivers. Error handling and redelivery policy are declared per
// route on a RouteDefinition; executing that policy (including stamping the
// redelivered header) is entirely the transport's job.
//
// Two transports ship with the module: routing/memory for in-process use and
// tests, and transports/rabbitmq for AMQP brokers.
package routing
