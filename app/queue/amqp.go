package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// AMQPQueue maps a logical queue onto a durable quorum queue. Unacked
// deliveries stay invisible until the channel closes, so the visibility
// timeout passed to Receive is not used.
type AMQPQueue struct {
	name     string
	physical string

	mu      sync.Mutex
	channel *amqp.Channel
}

func NewAMQPQueue(conn *amqp.Connection, name, physical string) (*AMQPQueue, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	_, err = channel.QueueDeclare(physical, true, false, false, false, amqp.Table{
		"x-queue-type": "quorum",
	})
	if err != nil {
		channel.Close()
		return nil, err
	}
	return &AMQPQueue{name: name, physical: physical, channel: channel}, nil
}

func (q *AMQPQueue) Name() string {
	return q.name
}

func (q *AMQPQueue) Send(ctx context.Context, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.NewString()
	err := q.channel.Publish("", q.physical, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now(),
		Body:         body,
	})
	return id, err
}

func (q *AMQPQueue) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var result []*Message
	for len(result) < max {
		d, ok, err := q.channel.Get(q.physical, false)
		if err != nil {
			return result, err
		}
		if !ok {
			break
		}
		result = append(result, &Message{
			ID:           d.MessageId,
			Body:         d.Body,
			DequeueCount: deliveryCount(d.Headers, d.Redelivered),
			receipt:      strconv.FormatUint(d.DeliveryTag, 10),
		})
	}
	return result, nil
}

func (q *AMQPQueue) Delete(ctx context.Context, msg *Message) error {
	tag, err := strconv.ParseUint(msg.receipt, 10, 64)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.channel.Ack(tag, false)
}

func (q *AMQPQueue) Release(ctx context.Context, msg *Message) error {
	tag, err := strconv.ParseUint(msg.receipt, 10, 64)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.channel.Nack(tag, false, true)
}

// deliveryCount reads the quorum queue x-delivery-count header, which counts
// previous deliveries. Classic queues only report whether a message was
// redelivered.
func deliveryCount(headers amqp.Table, redelivered bool) int {
	switch v := headers["x-delivery-count"].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	}
	if redelivered {
		return 2
	}
	return 1
}
