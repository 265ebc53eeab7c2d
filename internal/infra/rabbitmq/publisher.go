package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-frame-expander/internal/domain/entity"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	msg.ContentType = "application/json"
	msg.DeliveryMode = amqp.Persistent
	msg.Timestamp = time.Now().UTC()
	if err := p.channel.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", key, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

type StatusPublisher struct {
	pub        *Publisher
	routingKey string
}

func NewStatusPublisher(pub *Publisher, statusQueue string) *StatusPublisher {
	return &StatusPublisher{pub: pub, routingKey: statusQueue}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg entity.ExpansionStatusMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return sp.pub.publish(ctx, sp.pub.exchange, sp.routingKey, amqp.Publishing{
		Body:      body,
		MessageId: msg.JobID.String(),
	})
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

// PublishToDLQ goes through the default exchange straight to the queue.
func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, body []byte, reason string) error {
	return dp.pub.publish(ctx, "", dp.queue, amqp.Publishing{
		Body: body,
		Headers: amqp.Table{
			"x-dlq-reason": reason,
		},
	})
}
