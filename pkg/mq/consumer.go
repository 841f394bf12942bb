package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	keys     []string
}

// NewConsumer declares a durable queue bound to keys on exchange. Messages
// that are rejected without requeue go to "<queue>.dlq" through "<exchange>.dlx".
func NewConsumer(url, exchange, queue string, keys []string, prefetch int) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	fail := func(format string, args ...any) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf(format, args...)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange: %w", err)
	}
	dlx := exchange + ".dlx"
	if err := ch.ExchangeDeclare(dlx, "topic", true, false, false, false, nil); err != nil {
		return fail("declare dlx: %w", err)
	}
	dlq, err := ch.QueueDeclare(queue+".dlq", true, false, false, false, nil)
	if err != nil {
		return fail("declare dlq: %w", err)
	}
	if err := ch.QueueBind(dlq.Name, "#", dlx, false, nil); err != nil {
		return fail("bind dlq: %w", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{"x-dead-letter-exchange": dlx})
	if err != nil {
		return fail("declare queue: %w", err)
	}
	if err := bindKeys(ch, q.Name, exchange, keys); err != nil {
		return fail("%w", err)
	}
	if prefetch <= 0 {
		prefetch = 8
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail("set qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, exchange: exchange, queue: q.Name, keys: keys}, nil
}

type binder interface {
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func bindKeys(ch binder, queue, exchange string, keys []string) error {
	for _, rk := range keys {
		if err := ch.QueueBind(queue, rk, exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", rk, err)
		}
	}
	return nil
}

func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
