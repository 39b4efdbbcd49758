package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_Visibility(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	q := NewMemoryQueue("test")
	now := time.Now()
	q.now = func() time.Time { return now }

	_, err := q.Send(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)

	msgs, err := q.Receive(ctx, 10, time.Minute)
	if asserter.NoError(err) && asserter.Len(msgs, 1) {
		asserter.Equal(1, msgs[0].DequeueCount)
	}

	// hidden while in flight
	again, err := q.Receive(ctx, 10, time.Minute)
	asserter.NoError(err)
	asserter.Empty(again)

	now = now.Add(2 * time.Minute)
	again, err = q.Receive(ctx, 10, time.Minute)
	if asserter.NoError(err) && asserter.Len(again, 1) {
		asserter.Equal(2, again[0].DequeueCount)
		asserter.NoError(q.Delete(ctx, again[0]))
	}
	asserter.Equal(0, q.Len())
}

func TestMemoryQueue_Release(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	q := NewMemoryQueue("test")

	_, err := q.Send(ctx, []byte(`{}`))
	require.NoError(t, err)
	msgs, _ := q.Receive(ctx, 1, time.Hour)
	require.Len(t, msgs, 1)
	asserter.NoError(q.Release(ctx, msgs[0]))

	again, err := q.Receive(ctx, 1, time.Hour)
	if asserter.NoError(err) && asserter.Len(again, 1) {
		asserter.Equal(msgs[0].ID, again[0].ID)
	}
}

func TestRedisQueue(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cli.Close()

	q := NewRedisQueue(cli, "pctasks", "workflow-submit")
	now := time.Now()
	q.now = func() time.Time { return now }

	first, err := q.Send(ctx, []byte(`one`))
	require.NoError(t, err)
	_, err = q.Send(ctx, []byte(`two`))
	require.NoError(t, err)

	msgs, err := q.Receive(ctx, 1, time.Minute)
	if asserter.NoError(err) && asserter.Len(msgs, 1) {
		asserter.Equal(first, msgs[0].ID)
		asserter.Equal([]byte(`one`), msgs[0].Body)
		asserter.Equal(1, msgs[0].DequeueCount)
	}

	second, err := q.Receive(ctx, 10, time.Minute)
	if asserter.NoError(err) && asserter.Len(second, 1) {
		asserter.Equal([]byte(`two`), second[0].Body)
		asserter.NoError(q.Delete(ctx, second[0]))
	}

	// first delivery times out and comes back
	now = now.Add(2 * time.Minute)
	redelivered, err := q.Receive(ctx, 10, time.Minute)
	if asserter.NoError(err) && asserter.Len(redelivered, 1) {
		asserter.Equal(first, redelivered[0].ID)
		asserter.Equal(2, redelivered[0].DequeueCount)
		asserter.NoError(q.Release(ctx, redelivered[0]))
	}

	released, err := q.Receive(ctx, 10, time.Minute)
	if asserter.NoError(err) && asserter.Len(released, 1) {
		asserter.Equal(3, released[0].DequeueCount)
		asserter.NoError(q.Delete(ctx, released[0]))
	}
	asserter.False(mr.Exists("pctasks:workflow-submit:bodies"))
}

func TestRedisOptions(t *testing.T) {
	asserter := assert.New(t)

	opts, err := redisOptions("redis://:secret@localhost:6380/2")
	if asserter.NoError(err) {
		asserter.Equal("localhost:6380", opts.Addr)
		asserter.Equal("secret", opts.Password)
		asserter.Equal(2, opts.DB)
	}

	opts, err = redisOptions("user:pw@cache:6379/1")
	if asserter.NoError(err) {
		asserter.Equal("cache:6379", opts.Addr)
		asserter.Equal("user", opts.Username)
		asserter.Equal("pw", opts.Password)
		asserter.Equal(1, opts.DB)
	}
}

func TestDeliveryCount(t *testing.T) {
	asserter := assert.New(t)
	asserter.Equal(1, deliveryCount(nil, false))
	asserter.Equal(2, deliveryCount(nil, true))
	asserter.Equal(4, deliveryCount(amqp.Table{"x-delivery-count": int64(3)}, true))
	asserter.Equal(1, deliveryCount(amqp.Table{"x-delivery-count": int32(0)}, false))
}

type submitPayload struct {
	RunID string `json:"run_id"`
}

func TestEnvelope(t *testing.T) {
	asserter := assert.New(t)

	body, err := Encode("WorkflowSubmit", &submitPayload{RunID: "r1"})
	require.NoError(t, err)

	env, err := Decode(body)
	if asserter.NoError(err) {
		asserter.Equal("WorkflowSubmit", env.Type)
		asserter.NotEmpty(env.MessageID)
		payload := &submitPayload{}
		if asserter.NoError(env.Payload(payload)) {
			asserter.Equal("r1", payload.RunID)
		}
	}

	_, err = Decode([]byte(`{"run_id":"r1"}`))
	asserter.Error(err)
	_, err = Encode("x", []string{"not", "an", "object"})
	asserter.Error(err)
}

func TestDispatcher(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	d := NewDispatcher()

	var got string
	Handle(d, "WorkflowSubmit", func(ctx context.Context, messageID string, p *submitPayload) error {
		got = p.RunID
		return nil
	})
	asserter.True(d.HasType("WorkflowSubmit"))

	body, _ := Encode("WorkflowSubmit", &submitPayload{RunID: "r2"})
	if asserter.NoError(d.Dispatch(ctx, body)) {
		asserter.Equal("r2", got)
	}

	body, _ = Encode("Other", nil)
	asserter.True(errors.Is(d.Dispatch(ctx, body), ErrUnknownType))
}

func TestProcessOnce_DeadLetter(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	set := NewMemorySet()
	opts := ConsumerOptions{Visibility: time.Nanosecond, MaxDeliveries: 2}

	d := NewDispatcher()
	calls := 0
	d.Register("Flaky", func(ctx context.Context, env *Envelope) error {
		calls++
		return errors.New("boom")
	})

	_, err := set.Send(ctx, WorkflowSubmitQueue, "Flaky", nil)
	require.NoError(t, err)
	_, err = set.Send(ctx, WorkflowSubmitQueue, "Unknown", nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := ProcessOnce(ctx, set, WorkflowSubmitQueue, d, opts)
		require.NoError(t, err)
	}
	asserter.Equal(2, calls)

	q, _ := set.Get(WorkflowSubmitQueue)
	asserter.Equal(0, q.(*MemoryQueue).Len())
	dlq, _ := set.Get(DeadLetterName(WorkflowSubmitQueue))
	asserter.Equal(2, dlq.(*MemoryQueue).Len())
}

func TestProcessOnce_Capacity(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	set := NewMemorySet()

	free := 0
	opts := ConsumerOptions{Visibility: time.Minute, Capacity: func() int { return free }}
	d := NewDispatcher()
	handled := 0
	d.Register("Work", func(ctx context.Context, env *Envelope) error {
		handled++
		return nil
	})
	for i := 0; i < 3; i++ {
		_, err := set.Send(ctx, WorkflowSubmitQueue, "Work", nil)
		require.NoError(t, err)
	}

	// no free handler: nothing is received, so no delivery is spent
	n, err := ProcessOnce(ctx, set, WorkflowSubmitQueue, d, opts)
	if asserter.NoError(err) {
		asserter.Equal(0, n)
	}

	free = 2
	n, err = ProcessOnce(ctx, set, WorkflowSubmitQueue, d, opts)
	if asserter.NoError(err) {
		asserter.Equal(2, n)
		asserter.Equal(2, handled)
	}

	q, _ := set.Get(WorkflowSubmitQueue)
	msgs, err := q.Receive(ctx, 10, time.Minute)
	if asserter.NoError(err) && asserter.Len(msgs, 1) {
		asserter.Equal(1, msgs[0].DequeueCount)
	}
}
