package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP is a Queue on RabbitMQ. Channels are durable quorum queues on the
// default exchange; the broker enforces the delivery limit and dead-letters
// to "<channel>-dlq".
type AMQP struct {
	conn            *amqp.Connection
	ch              *amqp.Channel
	maxReceiveCount int

	mu       sync.Mutex
	declared map[string]bool
}

// NewAMQP dials the broker and opens a channel.
func NewAMQP(url string, maxReceiveCount int) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue/amqp: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue/amqp: open channel: %w", err)
	}

	return &AMQP{
		conn:            conn,
		ch:              ch,
		maxReceiveCount: maxReceiveCount,
		declared:        make(map[string]bool),
	}, nil
}

// declare must be called with mu held.
func (q *AMQP) declare(name string) error {
	if q.declared[name] {
		return nil
	}

	dlq := DeadLetter(name)
	if _, err := q.ch.QueueDeclare(
		dlq,
		true,
		false,
		false,
		false,
		amqp.Table{"x-queue-type": "quorum"},
	); err != nil {
		return fmt.Errorf("queue/amqp: declare %s: %w", dlq, err)
	}

	args := amqp.Table{
		"x-queue-type":              "quorum",
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	if q.maxReceiveCount > 0 {
		args["x-delivery-limit"] = int64(q.maxReceiveCount)
	}
	if _, err := q.ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		args,
	); err != nil {
		return fmt.Errorf("queue/amqp: declare %s: %w", name, err)
	}

	q.declared[name] = true
	return nil
}

func (q *AMQP) Publish(ctx context.Context, channel string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(channel); err != nil {
		return err
	}
	err := q.ch.PublishWithContext(ctx,
		"",
		channel,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("queue/amqp: publish to %s: %w", channel, err)
	}
	return nil
}

func (q *AMQP) Receive(ctx context.Context, channel string, max int) ([]*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(channel); err != nil {
		return nil, err
	}

	var msgs []*Message
	for len(msgs) < max {
		if err := ctx.Err(); err != nil {
			return msgs, err
		}
		d, ok, err := q.ch.Get(channel, false)
		if err != nil {
			return msgs, fmt.Errorf("queue/amqp: get from %s: %w", channel, err)
		}
		if !ok {
			break
		}
		msgs = append(msgs, &Message{
			ID:           d.MessageId,
			Body:         d.Body,
			ReceiveCount: deliveryCount(d),
			handle:       d.DeliveryTag,
		})
	}
	return msgs, nil
}

// deliveryCount reads the quorum queue's x-delivery-count header, which counts
// previous deliveries.
func deliveryCount(d amqp.Delivery) int {
	switch v := d.Headers["x-delivery-count"].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	default:
		return 1
	}
}

func (q *AMQP) Ack(_ context.Context, channel string, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ch.Ack(msg.handle.(uint64), false); err != nil {
		return fmt.Errorf("queue/amqp: ack on %s: %w", channel, err)
	}
	return nil
}

// Nack requeues the message; the broker counts it toward the delivery limit.
func (q *AMQP) Nack(_ context.Context, channel string, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ch.Nack(msg.handle.(uint64), false, true); err != nil {
		return fmt.Errorf("queue/amqp: nack on %s: %w", channel, err)
	}
	return nil
}

func (q *AMQP) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
