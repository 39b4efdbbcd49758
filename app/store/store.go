package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"pctasks/app/db/models"
	"pctasks/app/objects"
	"pctasks/pkg/log"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Model is a document that can live in a container.
type Model interface {
	RecordID() string
	PartitionKey() string
	RecordType() string
	RecordStatus() string
	Touch(now time.Time)
}

// ChangeEvent is delivered to change feed subscribers after every put.
type ChangeEvent struct {
	Container    string
	PartitionKey string
	ID           string
	Type         string
	Status       string
	Data         []byte
	UpdatedAt    time.Time
}

type Subscriber func(ctx context.Context, event ChangeEvent)

// Filter narrows a query. Zero fields match everything.
type Filter struct {
	Statuses      []string
	UpdatedBefore time.Time
	UpdatedAfter  time.Time
	Limit         int
}

// Store is the record store. Every container shares one table and one
// connection pool.
type Store struct {
	db  *gorm.DB
	now func() time.Time

	mu     sync.RWMutex
	nextID int
	hooks  map[string]map[int]Subscriber
}

func New(conn *gorm.DB) *Store {
	return &Store{
		db:    conn,
		now:   func() time.Time { return time.Now().UTC() },
		hooks: map[string]map[int]Subscriber{},
	}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Subscribe registers fn on the change feed of container. The returned
// function removes the subscription.
func (s *Store) Subscribe(container string, fn Subscriber) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.hooks[container] == nil {
		s.hooks[container] = map[int]Subscriber{}
	}
	s.hooks[container][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.hooks[container], id)
	}
}

func (s *Store) notify(ctx context.Context, event ChangeEvent) {
	s.mu.RLock()
	subscribers := make([]Subscriber, 0, len(s.hooks[event.Container]))
	for _, fn := range s.hooks[event.Container] {
		subscribers = append(subscribers, fn)
	}
	s.mu.RUnlock()
	for _, fn := range subscribers {
		fn(ctx, event)
	}
}

func (s *Store) put(ctx context.Context, container string, m Model) error {
	now := s.now()
	m.Touch(now)
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrapf(err, "encode %s %s", m.RecordType(), m.RecordID())
	}
	row := &models.Record{
		Container:    container,
		PartitionKey: m.PartitionKey(),
		ID:           m.RecordID(),
		Type:         m.RecordType(),
		Status:       m.RecordStatus(),
		Data:         data,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return errors.Wrapf(err, "put %s/%s/%s", container, row.PartitionKey, row.ID)
	}
	s.notify(ctx, toEvent(row))
	return nil
}

func (s *Store) get(ctx context.Context, container, recordType, partition, id string, out Model) error {
	row := &models.Record{}
	err := s.db.WithContext(ctx).
		Where("container = ? AND partition_key = ? AND id = ? AND type = ?", container, partition, id, recordType).
		Take(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return objects.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "get %s/%s/%s", container, partition, id)
	}
	return json.Unmarshal(row.Data, out)
}

func (s *Store) query(ctx context.Context, container, recordType string, partition *string, filter Filter, after *pageToken) ([]*models.Record, error) {
	q := s.db.WithContext(ctx).Where("container = ? AND type = ?", container, recordType)
	if partition != nil {
		q = q.Where("partition_key = ?", *partition)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if !filter.UpdatedBefore.IsZero() {
		q = q.Where("updated_at < ?", filter.UpdatedBefore.UTC())
	}
	if !filter.UpdatedAfter.IsZero() {
		q = q.Where("updated_at > ?", filter.UpdatedAfter.UTC())
	}
	if after != nil {
		q = q.Where("(partition_key > ?) OR (partition_key = ? AND id > ?)", after.PartitionKey, after.PartitionKey, after.ID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []*models.Record
	if err := q.Order("partition_key, id").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "query %s", container)
	}
	return rows, nil
}

// Watch polls container for rows written after since and forwards them to
// fn until ctx is done. It catches writes made by other processes, which the
// in-process hooks never see.
func (s *Store) Watch(ctx context.Context, container string, since time.Time, interval time.Duration, fn Subscriber) error {
	last := since.UTC()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var rows []*models.Record
		err := s.db.WithContext(ctx).
			Where("container = ? AND updated_at > ?", container, last).
			Order("updated_at").
			Find(&rows).Error
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnf(ctx, "watch %s failed: %s", container, err)
		}
		for _, row := range rows {
			if row.UpdatedAt.After(last) {
				last = row.UpdatedAt
			}
			fn(ctx, toEvent(row))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func toEvent(row *models.Record) ChangeEvent {
	return ChangeEvent{
		Container:    row.Container,
		PartitionKey: row.PartitionKey,
		ID:           row.ID,
		Type:         row.Type,
		Status:       row.Status,
		Data:         row.Data,
		UpdatedAt:    row.UpdatedAt,
	}
}

type pageToken struct {
	PartitionKey string `json:"p"`
	ID           string `json:"i"`
}

func encodeToken(row *models.Record) string {
	data, _ := json.Marshal(pageToken{PartitionKey: row.PartitionKey, ID: row.ID})
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeToken(token string) (*pageToken, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, objects.NewUserError("invalid continuation token")
	}
	t := &pageToken{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, objects.NewUserError("invalid continuation token")
	}
	return t, nil
}
