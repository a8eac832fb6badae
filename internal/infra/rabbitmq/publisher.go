package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/port"
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

func (p *Publisher) publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	return p.channel.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
	})
}

// PublishRequest enqueues an analysis request; used by the CLI submit command.
func (p *Publisher) PublishRequest(ctx context.Context, routingKey string, body []byte) error {
	if routingKey == "" {
		routingKey = DefaultRequestRoutingKey
	}
	if err := p.publish(ctx, p.exchange, routingKey, body, nil); err != nil {
		return fmt.Errorf("publish request: %w", err)
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

var _ port.StatusPublisher = (*StatusPublisher)(nil)

func NewStatusPublisher(pub *Publisher, routingKey string) *StatusPublisher {
	if routingKey == "" {
		routingKey = DefaultStatusRoutingKey
	}
	return &StatusPublisher{pub: pub, routingKey: routingKey}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.pub.publish(ctx, sp.pub.exchange, sp.routingKey, msg, nil)
}

// DLQPublisher writes straight to the dead-letter queue through the default
// exchange.
type DLQPublisher struct {
	pub   *Publisher
	queue string
}

var _ port.DLQPublisher = (*DLQPublisher)(nil)

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.publish(ctx, "", dp.queue, msg, amqp.Table{"x-dlq-reason": reason})
}
