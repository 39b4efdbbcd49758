package signal

import (
	"context"
	"testing"
	"time"

	"pctasks/app/objects"
	"pctasks/app/queue"
	"pctasks/app/store"
	"pctasks/app/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_RaiseAndWait(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	bus := NewBus(storetest.New(t), nil, time.Hour)
	defer bus.Close()

	done := make(chan *objects.SignalRecord, 1)
	go func() {
		record, err := bus.Wait(ctx, "r1", objects.SignalCancel, time.Time{}, 5*time.Second, nil)
		if err == nil {
			done <- record
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := bus.Raise(ctx, "r1", objects.SignalCancel, nil)
	require.NoError(t, err)

	select {
	case record := <-done:
		if asserter.NotNil(record) {
			asserter.Equal("r1", record.RunID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestBus_WaitTimeoutAndMatch(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	bus := NewBus(storetest.New(t), nil, 10*time.Millisecond)
	defer bus.Close()

	name := objects.TaskResumeSignal("r1", "t1")
	_, err := bus.Raise(ctx, "r1", name, map[string]interface{}{"partition_id": "other"})
	require.NoError(t, err)

	match := func(r *objects.SignalRecord) bool { return r.Payload["partition_id"] == "p1" }
	_, err = bus.Wait(ctx, "r1", name, time.Time{}, 50*time.Millisecond, match)
	asserter.ErrorIs(err, ErrTimeout)

	_, err = bus.Raise(ctx, "r1", name, map[string]interface{}{"partition_id": "p1"})
	require.NoError(t, err)
	record, err := bus.Wait(ctx, "r1", name, time.Time{}, time.Second, match)
	if asserter.NoError(err) {
		asserter.Equal("p1", record.Payload["partition_id"])
	}

	// signals raised before since are ignored
	found, err := bus.Find(ctx, "r1", name, time.Now().Add(time.Hour), nil)
	asserter.NoError(err)
	asserter.Nil(found)
}

func TestBus_QueueRoundTrip(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	containers := storetest.New(t)
	queues := queue.NewMemorySet()

	raiser := NewBus(containers, queues, time.Hour)
	defer raiser.Close()
	record, err := raiser.Raise(ctx, "r2", objects.SignalPollQuit, nil)
	require.NoError(t, err)

	d := queue.NewDispatcher()
	raiser.Register(d)
	n, err := queue.ProcessOnce(ctx, queues, queue.TaskSignalQueue, d, queue.ConsumerOptions{})
	require.NoError(t, err)
	asserter.Equal(1, n)

	// redelivery maps to the same record
	msg := &objects.OperationMessage{Operation: objects.OperationSignal, RunID: "r2", Name: objects.SignalPollQuit, SignalID: record.ID}
	asserter.NoError(raiser.HandleOperation(ctx, "m1", msg))

	records, err := containers.Signals.Query(ctx, "r2", store.Filter{})
	if asserter.NoError(err) && asserter.Len(records, 1) {
		asserter.Equal(record.ID, records[0].ID)
	}
}

func TestBus_WatchWakesWaiters(t *testing.T) {
	asserter := assert.New(t)
	containers := storetest.New(t)
	// the waiter would only poll once an hour
	bus := NewBus(containers, nil, time.Hour)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Watch(ctx, containers, 10*time.Millisecond)

	done := make(chan *objects.SignalRecord, 1)
	go func() {
		record, err := bus.Wait(ctx, "r1", objects.SignalCancel, time.Time{}, 5*time.Second, nil)
		if err == nil {
			done <- record
		}
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	// a second store over the same table stands for another process, whose
	// writes never reach this store's subscribers
	other := store.NewContainers(store.New(containers.Store.DB()))
	require.NoError(t, other.Signals.Put(ctx, &objects.SignalRecord{ID: "signal:remote", RunID: "r1", Name: objects.SignalCancel}))

	select {
	case record := <-done:
		if asserter.NotNil(record) {
			asserter.Equal("signal:remote", record.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("waiter was not woken by the watch")
	}
}
