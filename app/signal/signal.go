package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"pctasks/app/objects"
	"pctasks/app/queue"
	"pctasks/app/store"
	"pctasks/pkg/log"

	"github.com/google/uuid"
)

var ErrTimeout = errors.New("timed out waiting for signal")

// Bus raises named signals into runs and lets drivers block on them.
// Signals are stored as records in the run's partition and are never
// consumed, so every waiter sees every signal raised after its start point.
type Bus struct {
	signals *store.Container[*objects.SignalRecord]
	queues  *queue.Set
	poll    time.Duration

	mu      sync.Mutex
	next    int
	waiters map[string]map[int]chan struct{}

	unsubscribe func()
}

// NewBus builds a bus over the record store. queues may be nil, in which
// case signals only travel through the store. poll bounds how long a waiter
// can miss a signal written by another process.
func NewBus(containers *store.Containers, queues *queue.Set, poll time.Duration) *Bus {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	b := &Bus{
		signals: containers.Signals,
		queues:  queues,
		poll:    poll,
		waiters: map[string]map[int]chan struct{}{},
	}
	b.unsubscribe = containers.Signals.Subscribe(func(ctx context.Context, record *objects.SignalRecord) {
		b.wake(record.RunID)
	})
	return b
}

func (b *Bus) Close() {
	b.unsubscribe()
}

// Raise records signal name for runID and publishes it on the task-signal
// queue.
func (b *Bus) Raise(ctx context.Context, runID, name string, payload map[string]interface{}) (*objects.SignalRecord, error) {
	record := &objects.SignalRecord{
		ID:      "signal:" + uuid.NewString(),
		RunID:   runID,
		Name:    name,
		Payload: payload,
	}
	if err := b.signals.Put(ctx, record); err != nil {
		return nil, err
	}
	log.Infof(ctx, "raised signal %s for run %s", name, runID)
	if b.queues != nil {
		_, err := b.queues.Send(ctx, queue.TaskSignalQueue, objects.MessageTypeOperation, &objects.OperationMessage{
			Operation: objects.OperationSignal,
			RunID:     runID,
			Name:      name,
			SignalID:  record.ID,
			Payload:   payload,
		})
		if err != nil {
			log.Warnf(ctx, "publish signal %s for run %s failed: %s", name, runID, err)
		}
	}
	return record, nil
}

// Register installs the Operation handler on d.
func (b *Bus) Register(d *queue.Dispatcher) {
	queue.Handle(d, objects.MessageTypeOperation, b.HandleOperation)
}

// HandleOperation stores a signal received from the queue. Redelivered
// messages map to the same record.
func (b *Bus) HandleOperation(ctx context.Context, messageID string, msg *objects.OperationMessage) error {
	if msg.Operation != objects.OperationSignal {
		log.Warnf(ctx, "ignoring unknown operation %s for run %s", msg.Operation, msg.RunID)
		return nil
	}
	id := msg.SignalID
	if id == "" {
		id = "signal:" + messageID
	}
	if _, err := b.signals.Get(ctx, msg.RunID, id); err == nil {
		b.wake(msg.RunID)
		return nil
	} else if !objects.IsNotFoundError(err) {
		return err
	}
	return b.signals.Put(ctx, &objects.SignalRecord{
		ID:      id,
		RunID:   msg.RunID,
		Name:    msg.Name,
		Payload: msg.Payload,
	})
}

// Find returns the earliest signal name of runID created at or after since
// that satisfies match, or nil.
func (b *Bus) Find(ctx context.Context, runID, name string, since time.Time, match func(*objects.SignalRecord) bool) (*objects.SignalRecord, error) {
	records, err := b.signals.Query(ctx, runID, store.Filter{Statuses: []string{name}})
	if err != nil {
		return nil, err
	}
	var found *objects.SignalRecord
	for _, r := range records {
		if r.Name != name || r.CreatedAt.Before(since) {
			continue
		}
		if match != nil && !match(r) {
			continue
		}
		if found == nil || r.CreatedAt.Before(found.CreatedAt) {
			found = r
		}
	}
	return found, nil
}

// Wait blocks until Find succeeds, timeout passes or ctx is done. A
// non-positive timeout waits forever.
func (b *Bus) Wait(ctx context.Context, runID, name string, since time.Time, timeout time.Duration, match func(*objects.SignalRecord) bool) (*objects.SignalRecord, error) {
	id, ch := b.addWaiter(runID)
	defer b.removeWaiter(runID, id)

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		record, err := b.Find(ctx, runID, name, since, match)
		if err != nil {
			log.Warnf(ctx, "look up signal %s failed: %s", name, err)
		}
		if record != nil {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, ErrTimeout
		case <-ch:
		case <-ticker.C:
		}
	}
}

func (b *Bus) addWaiter(runID string) (int, chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	ch := make(chan struct{}, 1)
	if b.waiters[runID] == nil {
		b.waiters[runID] = map[int]chan struct{}{}
	}
	b.waiters[runID][b.next] = ch
	return b.next, ch
}

func (b *Bus) removeWaiter(runID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters[runID], id)
	if len(b.waiters[runID]) == 0 {
		delete(b.waiters, runID)
	}
}

func (b *Bus) wake(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.waiters[runID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watch forwards signals written by other processes to local waiters until
// ctx is done, checking the store every interval.
func (b *Bus) Watch(ctx context.Context, containers *store.Containers, interval time.Duration) error {
	if interval <= 0 {
		interval = b.poll
	}
	return containers.Store.Watch(ctx, store.WorkflowRunsContainer, time.Now(), interval, func(ctx context.Context, event store.ChangeEvent) {
		if event.Type == objects.RecordTypeSignal {
			b.wake(event.PartitionKey)
		}
	})
}
