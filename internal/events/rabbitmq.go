package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher sends booking events to a durable queue through the
// default exchange.
type RabbitPublisher struct {
	conn  *amqp.Connection
	ch    Channel
	queue string
}

// DialRabbit connects, opens a channel and declares queue.
func DialRabbit(url, queue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq declare %s: %w", queue, err)
	}
	return &RabbitPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func NewRabbitPublisherWithChannel(ch Channel, queue string) *RabbitPublisher {
	return &RabbitPublisher{ch: ch, queue: queue}
}

func (p *RabbitPublisher) PublishBooking(ctx context.Context, b Booking) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    b.EventID,
		Type:         b.Type,
		Timestamp:    b.BookedAt,
		Body:         body,
	})
}

func (p *RabbitPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
