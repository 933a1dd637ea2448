package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Webmata/internal/domain"
	"github.com/shaiso/Webmata/internal/telemetry"
)

// publishTimeout — таймаут публикации одного события.
const publishTimeout = 5 * time.Second

// Message — конверт сообщения в шине.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип события движка.
	Type domain.EventType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время события.
	Timestamp time.Time `json:"timestamp"`
}

// NewEventMessage заворачивает событие движка в конверт.
func NewEventMessage(event domain.Event) *Message {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      event.Type,
		Payload:   event,
		Timestamp: ts,
	}
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishEvent публикует событие движка в webmata.events с ключом = типом события.
func (p *Publisher) PublishEvent(ctx context.Context, event domain.Event) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKey(event.Type), NewEventMessage(event))
}

// EventSink отправляет события оркестратора в шину.
//
// Ошибки публикации логируются и не возвращаются: шина не должна
// влиять на выполнение задач.
type EventSink struct {
	publisher *Publisher
	logger    *slog.Logger
}

// NewEventSink создаёт EventSink.
func NewEventSink(publisher *Publisher, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{publisher: publisher, logger: logger}
}

// Publish публикует событие с таймаутом publishTimeout.
func (s *EventSink) Publish(ctx context.Context, event domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := s.publisher.PublishEvent(ctx, event)
	telemetry.EventsPublishedTotal.WithLabelValues(telemetry.Result(err == nil)).Inc()
	if err != nil {
		s.logger.Warn("failed to publish event",
			"type", event.Type,
			"execution_id", event.ExecutionID,
			"error", err,
		)
	}
}
