package queue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"pctasks/app/config"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"
)

// Logical queue names.
const (
	WorkflowSubmitQueue = "workflow-submit"
	TaskSignalQueue     = "task-signal"
	NotificationQueue   = "notification"
	StorageEventsQueue  = "storage-events"

	deadLetterSuffix = "-deadletter"
)

// Message is one delivery of a queued body. DequeueCount starts at 1.
type Message struct {
	ID           string
	Body         []byte
	DequeueCount int

	receipt string
}

// Queue is an at-least-once queue with visibility timeouts. A received
// message is hidden from other receivers until it is deleted, released or
// its visibility timeout expires.
type Queue interface {
	Name() string
	Send(ctx context.Context, body []byte) (string, error)
	// Receive returns at most max visible messages without blocking.
	Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error)
	Delete(ctx context.Context, msg *Message) error
	Release(ctx context.Context, msg *Message) error
}

func DeadLetterName(name string) string {
	return name + deadLetterSuffix
}

// Set owns the named queues of one backend.
type Set struct {
	mu      sync.Mutex
	queues  map[string]Queue
	factory func(name string) (Queue, error)
	closer  func() error
}

func NewMemorySet() *Set {
	return &Set{
		queues:  map[string]Queue{},
		factory: func(name string) (Queue, error) { return NewMemoryQueue(name), nil },
	}
}

func NewRedisSet(cli *redis.Client, prefix string) *Set {
	return &Set{
		queues:  map[string]Queue{},
		factory: func(name string) (Queue, error) { return NewRedisQueue(cli, prefix, name), nil },
		closer:  cli.Close,
	}
}

func NewAMQPSet(conn *amqp.Connection, prefix string) *Set {
	return &Set{
		queues: map[string]Queue{},
		factory: func(name string) (Queue, error) {
			return NewAMQPQueue(conn, name, prefix+"."+name)
		},
		closer: conn.Close,
	}
}

// NewSet builds the queue set described by cfg.
func NewSet(cfg config.QueueConfig) (*Set, error) {
	switch cfg.Kind {
	case "memory", "":
		return NewMemorySet(), nil
	case "redis":
		opts, err := redisOptions(cfg.Connection)
		if err != nil {
			return nil, err
		}
		return NewRedisSet(redis.NewClient(opts), cfg.Prefix), nil
	case "amqp":
		conn, err := amqp.Dial(cfg.Connection)
		if err != nil {
			return nil, err
		}
		return NewAMQPSet(conn, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported queue kind '%s'", cfg.Kind)
	}
}

func redisOptions(connection string) (*redis.Options, error) {
	if strings.HasPrefix(connection, "redis://") || strings.HasPrefix(connection, "rediss://") {
		return redis.ParseURL(connection)
	}
	uri, err := url.Parse("redis://" + connection)
	if err != nil {
		return nil, err
	}
	opts := &redis.Options{Addr: uri.Host}
	if uri.User != nil {
		opts.Username = uri.User.Username()
		opts.Password, _ = uri.User.Password()
	}
	if db := strings.TrimPrefix(uri.Path, "/"); db != "" {
		opts.DB, _ = strconv.Atoi(db)
	}
	return opts, nil
}

func (s *Set) Get(name string) (Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[name]; ok {
		return q, nil
	}
	q, err := s.factory(name)
	if err != nil {
		return nil, err
	}
	s.queues[name] = q
	return q, nil
}

// Send wraps payload in an envelope of msgType and enqueues it on name.
func (s *Set) Send(ctx context.Context, name, msgType string, payload interface{}) (string, error) {
	q, err := s.Get(name)
	if err != nil {
		return "", err
	}
	body, err := Encode(msgType, payload)
	if err != nil {
		return "", err
	}
	return q.Send(ctx, body)
}

func (s *Set) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
