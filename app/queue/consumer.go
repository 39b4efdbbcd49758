package queue

import (
	"context"
	"errors"
	"time"

	"pctasks/pkg/log"
)

type ConsumerOptions struct {
	Visibility    time.Duration
	MaxDeliveries int
	PollInterval  time.Duration
	BatchSize     int
	// Capacity, when set, caps each batch to the messages the handlers can
	// take at once. Received messages never queue up behind busy handlers.
	Capacity func() int
}

func (o *ConsumerOptions) batch() int {
	if o.Capacity == nil {
		return o.BatchSize
	}
	n := o.Capacity()
	if n > o.BatchSize {
		n = o.BatchSize
	}
	return n
}

func (o *ConsumerOptions) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 5 * time.Minute
	}
	if o.MaxDeliveries <= 0 {
		o.MaxDeliveries = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
}

// Consume receives from queue name and dispatches until ctx is done.
func Consume(ctx context.Context, set *Set, name string, d *Dispatcher, opts ConsumerOptions) error {
	opts.defaults()
	for {
		n, err := ProcessOnce(ctx, set, name, d, opts)
		if err != nil {
			log.Warnf(ctx, "receive from %s failed: %s", name, err)
		}
		if n > 0 && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.PollInterval):
		}
	}
}

// ProcessOnce handles one batch and returns the number of messages received.
// Handled messages are deleted; failed ones are released for redelivery and
// moved to the dead-letter queue after MaxDeliveries attempts.
func ProcessOnce(ctx context.Context, set *Set, name string, d *Dispatcher, opts ConsumerOptions) (int, error) {
	opts.defaults()
	q, err := set.Get(name)
	if err != nil {
		return 0, err
	}
	batch := opts.batch()
	if batch <= 0 {
		return 0, nil
	}
	msgs, err := q.Receive(ctx, batch, opts.Visibility)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		if msg.DequeueCount > opts.MaxDeliveries {
			deadLetter(ctx, set, q, msg, "too many deliveries")
			continue
		}
		err := d.Dispatch(ctx, msg.Body)
		switch {
		case err == nil:
			if err := q.Delete(ctx, msg); err != nil {
				log.Warnf(ctx, "delete message %s from %s failed: %s", msg.ID, name, err)
			}
		case errors.Is(err, ErrUnknownType):
			deadLetter(ctx, set, q, msg, err.Error())
		default:
			log.Warnf(ctx, "handle message %s from %s failed (delivery %d): %s", msg.ID, name, msg.DequeueCount, err)
			if err := q.Release(ctx, msg); err != nil {
				log.Warnf(ctx, "release message %s failed: %s", msg.ID, err)
			}
		}
	}
	return len(msgs), nil
}

func deadLetter(ctx context.Context, set *Set, q Queue, msg *Message, reason string) {
	log.Errorf(ctx, "dead-lettering message %s from %s: %s", msg.ID, q.Name(), reason)
	dlq, err := set.Get(DeadLetterName(q.Name()))
	if err == nil {
		_, err = dlq.Send(ctx, msg.Body)
	}
	if err != nil {
		log.Errorf(ctx, "dead-letter message %s failed: %s", msg.ID, err)
		q.Release(ctx, msg)
		return
	}
	if err := q.Delete(ctx, msg); err != nil {
		log.Warnf(ctx, "delete dead-lettered message %s failed: %s", msg.ID, err)
	}
}
