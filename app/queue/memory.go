package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryMessage struct {
	id             string
	body           []byte
	dequeueCount   int
	invisibleUntil time.Time
	receipt        string
}

// MemoryQueue is a process local queue for tests and single host runs.
type MemoryQueue struct {
	name     string
	mu       sync.Mutex
	messages []*memoryMessage
	now      func() time.Time
}

func NewMemoryQueue(name string) *MemoryQueue {
	return &MemoryQueue{name: name, now: time.Now}
}

func (q *MemoryQueue) Name() string {
	return q.name
}

func (q *MemoryQueue) Send(ctx context.Context, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.NewString()
	q.messages = append(q.messages, &memoryMessage{id: id, body: append([]byte(nil), body...)})
	return id, nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var result []*Message
	for _, m := range q.messages {
		if len(result) >= max {
			break
		}
		if m.invisibleUntil.After(now) {
			continue
		}
		m.dequeueCount++
		m.invisibleUntil = now.Add(visibility)
		m.receipt = uuid.NewString()
		result = append(result, &Message{ID: m.id, Body: m.body, DequeueCount: m.dequeueCount, receipt: m.receipt})
	}
	return result, nil
}

func (q *MemoryQueue) Delete(ctx context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.id == msg.ID && m.receipt == msg.receipt {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) Release(ctx context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		if m.id == msg.ID && m.receipt == msg.receipt {
			m.invisibleUntil = time.Time{}
		}
	}
	return nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
