package store

import (
	"context"
	"encoding/json"

	"pctasks/app/db/models"
	"pctasks/pkg/log"
)

// Container is a typed view over one record type of one container.
type Container[T Model] struct {
	store      *Store
	name       string
	recordType string
	newFn      func() T
}

func NewContainer[T Model](s *Store, name, recordType string, newFn func() T) *Container[T] {
	return &Container[T]{store: s, name: name, recordType: recordType, newFn: newFn}
}

func (c *Container[T]) Name() string {
	return c.name
}

// Get returns objects.ErrNotFound when the record does not exist.
func (c *Container[T]) Get(ctx context.Context, partition, id string) (T, error) {
	out := c.newFn()
	if err := c.store.get(ctx, c.name, c.recordType, partition, id, out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Put upserts m. Concurrent writers of the same record resolve last writer
// wins; updated_at is stamped at write time.
func (c *Container[T]) Put(ctx context.Context, m T) error {
	return c.store.put(ctx, c.name, m)
}

func (c *Container[T]) Query(ctx context.Context, partition string, filter Filter) ([]T, error) {
	rows, err := c.store.query(ctx, c.name, c.recordType, &partition, filter, nil)
	if err != nil {
		return nil, err
	}
	return c.decode(ctx, rows), nil
}

func (c *Container[T]) QueryAcrossPartitions(ctx context.Context, filter Filter) ([]T, error) {
	rows, err := c.store.query(ctx, c.name, c.recordType, nil, filter, nil)
	if err != nil {
		return nil, err
	}
	return c.decode(ctx, rows), nil
}

type Page[T Model] struct {
	Items             []T
	ContinuationToken string
}

// Page returns up to size records across partitions after token. An empty
// ContinuationToken in the result means there is nothing more.
func (c *Container[T]) Page(ctx context.Context, filter Filter, token string, size int) (*Page[T], error) {
	after, err := decodeToken(token)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 100
	}
	filter.Limit = size + 1
	rows, err := c.store.query(ctx, c.name, c.recordType, nil, filter, after)
	if err != nil {
		return nil, err
	}
	page := &Page[T]{}
	if len(rows) > size {
		rows = rows[:size]
		page.ContinuationToken = encodeToken(rows[size-1])
	}
	page.Items = c.decode(ctx, rows)
	return page, nil
}

// Subscribe forwards puts of this record type to fn.
func (c *Container[T]) Subscribe(fn func(ctx context.Context, record T)) func() {
	return c.store.Subscribe(c.name, func(ctx context.Context, event ChangeEvent) {
		if event.Type != c.recordType {
			return
		}
		out := c.newFn()
		if err := json.Unmarshal(event.Data, out); err != nil {
			log.Warnf(ctx, "change feed: can't decode %s %s: %s", event.Type, event.ID, err)
			return
		}
		fn(ctx, out)
	})
}

func (c *Container[T]) decode(ctx context.Context, rows []*models.Record) []T {
	result := make([]T, 0, len(rows))
	for _, row := range rows {
		out := c.newFn()
		if err := json.Unmarshal(row.Data, out); err != nil {
			log.Warnf(ctx, "skip undecodable %s %s/%s: %s", row.Type, row.PartitionKey, row.ID, err)
			continue
		}
		result = append(result, out)
	}
	return result
}
