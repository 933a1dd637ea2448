package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	// ExchangeEvents — события движка, routing key = тип события.
	ExchangeEvents Exchange = "webmata.events"

	// ExchangeDLQ — сообщения, которые не удалось обработать.
	ExchangeDLQ Exchange = "webmata.dlq"
)

const (
	// QueueEventsAudit — все события для аудитора.
	QueueEventsAudit Queue = "events.audit"

	// QueueDLQEvents — dead letter очередь событий.
	QueueDLQEvents Queue = "dlq.events"
)

const (
	// RoutingKeyAll — все события (topic wildcard).
	RoutingKeyAll RoutingKey = "#"

	// RoutingKeyDLQEvents — ключ dead letter для событий.
	RoutingKeyDLQEvents RoutingKey = "events"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

var exchanges = []exchangeDecl{
	{ExchangeEvents, amqp.ExchangeTopic},
	{ExchangeDLQ, amqp.ExchangeDirect},
}

var queues = []queueDecl{
	// events.audit — отклонённые сообщения уходят в dlq.events
	{QueueEventsAudit, amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQEvents),
	}},
	{QueueDLQEvents, nil},
}

var bindings = []bindingDecl{
	{QueueEventsAudit, RoutingKeyAll, ExchangeEvents},
	{QueueDLQEvents, RoutingKeyDLQEvents, ExchangeDLQ},
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// DeclareTopology объявляет топологию сейчас и после каждого
// переподключения conn. Хук регистрируется, даже если первое объявление
// не удалось.
func DeclareTopology(ctx context.Context, conn *Connection) error {
	conn.OnReconnect(func(ctx context.Context) error {
		return SetupTopology(ctx, conn)
	})
	return SetupTopology(ctx, conn)
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	var b strings.Builder
	for _, ex := range exchanges {
		fmt.Fprintf(&b, "%s (%s)\n", ex.name, ex.kind)
		for _, bind := range bindings {
			if bind.exchange == ex.name {
				fmt.Fprintf(&b, "  -> %s [routing: %s]\n", bind.queue, bind.routingKey)
			}
		}
	}
	return b.String()
}
