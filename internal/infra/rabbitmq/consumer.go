package rabbitmq

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	DefaultRequestRoutingKey = "analysis.request"
	DefaultStatusRoutingKey  = "analysis.status"

	maxBackoff = 60 * time.Second
)

type MessageHandler func(ctx context.Context, body []byte) error

// Consumer runs a fixed pool of workers over one durable queue. A handler
// error requeues the delivery after an exponential backoff.
type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queue       string
	workerCount int
	baseDelay   time.Duration
	handler     MessageHandler
	logger      *zap.Logger
	wg          sync.WaitGroup
}

type ConsumerConfig struct {
	URL               string
	Queue             string
	Exchange          string
	DLQ               string
	StatusQueue       string
	RequestRoutingKey string
	StatusRoutingKey  string
	Prefetch          int
	WorkerCount       int
	BaseDelayMs       int
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.RequestRoutingKey == "" {
		c.RequestRoutingKey = DefaultRequestRoutingKey
	}
	if c.StatusRoutingKey == "" {
		c.StatusRoutingKey = DefaultStatusRoutingKey
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	return c
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	cfg = cfg.withDefaults()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       cfg.Queue,
		workerCount: cfg.WorkerCount,
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:     handler,
		logger:      logger.With(zap.String("queue", cfg.Queue)),
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RequestRoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind request queue: %w", err)
	}
	if err := ch.QueueBind(cfg.StatusQueue, cfg.StatusRoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}

// Connection exposes the consumer's connection so publishers can share it.
func (c *Consumer) Connection() *amqp.Connection {
	return c.conn
}

// Start blocks until ctx is cancelled and every worker has returned.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool", zap.Int("workers", c.workerCount))

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	if err := c.handler(ctx, d.Body); err != nil {
		attempt := attemptFromHeaders(d.Headers)
		delay := backoff(c.baseDelay, attempt)
		log.Warn("analysis request failed, requeueing",
			zap.Error(err),
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			_ = d.Nack(false, true)
			return
		}
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func attemptFromHeaders(h amqp.Table) int {
	if h == nil {
		return 1
	}
	if deaths, ok := h["x-death"].([]interface{}); ok && len(deaths) > 0 {
		return len(deaths)
	}
	return 1
}

func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if delay > maxBackoff || delay < 0 {
		return maxBackoff
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
