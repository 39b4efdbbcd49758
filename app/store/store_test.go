package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"pctasks/app/objects"
	"pctasks/app/store"
	"pctasks/app/store/storetest"
	"pctasks/app/workflow/states"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer_PutGet(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	c := storetest.New(t)

	run := &objects.WorkflowRunRecord{WorkflowID: "wf", RunID: "r1", Status: states.RECEIVED}
	if asserter.NoError(c.WorkflowRuns.Put(ctx, run)) {
		asserter.False(run.CreatedAt.IsZero())

		got, err := c.WorkflowRuns.Get(ctx, "r1", "r1")
		if asserter.NoError(err) {
			asserter.Equal("wf", got.WorkflowID)
			asserter.Equal(states.RECEIVED, got.Status)
		}
	}

	// same partition and id, different record type
	_, err := c.JobPartitionRuns.Get(ctx, "r1", "r1")
	asserter.True(objects.IsNotFoundError(err))

	_, err = c.WorkflowRuns.Get(ctx, "r1", "missing")
	asserter.True(objects.IsNotFoundError(err))
}

func TestContainer_Upsert(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	c := storetest.New(t)

	run := &objects.WorkflowRunRecord{WorkflowID: "wf", RunID: "r1", Status: states.RUNNING}
	require.NoError(t, c.WorkflowRuns.Put(ctx, run))
	created := run.CreatedAt

	run.Status = states.SUCCEEDED
	require.NoError(t, c.WorkflowRuns.Put(ctx, run))

	got, err := c.WorkflowRuns.Get(ctx, "r1", "r1")
	if asserter.NoError(err) {
		asserter.Equal(states.SUCCEEDED, got.Status)
		asserter.True(created.Equal(got.CreatedAt))
	}

	all, err := c.WorkflowRuns.QueryAcrossPartitions(ctx, store.Filter{})
	if asserter.NoError(err) {
		asserter.Len(all, 1)
	}
}

func TestContainer_Query(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	c := storetest.New(t)

	for _, runID := range []string{"r1", "r2"} {
		for i, status := range []string{states.SUCCEEDED, states.FAILED, states.RUNNING} {
			part := &objects.JobPartitionRunRecord{RunID: runID, JobID: "J", PartitionID: fmt.Sprint(i), Status: status}
			require.NoError(t, c.JobPartitionRuns.Put(ctx, part))
		}
	}

	parts, err := c.JobPartitionRuns.Query(ctx, "r1", store.Filter{})
	if asserter.NoError(err) {
		asserter.Len(parts, 3)
		asserter.Equal("0", parts[0].PartitionID)
	}

	failed, err := c.JobPartitionRuns.QueryAcrossPartitions(ctx, store.Filter{Statuses: []string{states.FAILED}})
	if asserter.NoError(err) {
		asserter.Len(failed, 2)
	}
}

func TestContainer_Page(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	c := storetest.New(t)

	for i := 0; i < 5; i++ {
		rec := &objects.StorageEventRecord{Event: objects.CloudEvent{ID: fmt.Sprintf("e%d", i), Type: "created"}}
		require.NoError(t, c.StorageEvents.Put(ctx, rec))
	}

	var ids []string
	token := ""
	pages := 0
	for {
		page, err := c.StorageEvents.Page(ctx, store.Filter{}, token, 2)
		require.NoError(t, err)
		pages++
		for _, rec := range page.Items {
			ids = append(ids, rec.Event.ID)
		}
		if page.ContinuationToken == "" {
			break
		}
		token = page.ContinuationToken
	}
	asserter.Equal(3, pages)
	asserter.Equal([]string{"e0", "e1", "e2", "e3", "e4"}, ids)

	_, err := c.StorageEvents.Page(ctx, store.Filter{}, "%%%", 2)
	asserter.True(objects.IsUserError(err))
}

func TestContainer_Subscribe(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	c := storetest.New(t)

	var got []string
	unsubscribe := c.Signals.Subscribe(func(ctx context.Context, rec *objects.SignalRecord) {
		got = append(got, rec.Name)
	})

	require.NoError(t, c.Signals.Put(ctx, &objects.SignalRecord{ID: "s1", RunID: "r", Name: objects.SignalCancel}))
	// other record types of the same container are not delivered
	require.NoError(t, c.WorkflowRuns.Put(ctx, &objects.WorkflowRunRecord{RunID: "r"}))
	unsubscribe()
	require.NoError(t, c.Signals.Put(ctx, &objects.SignalRecord{ID: "s2", RunID: "r", Name: "later"}))

	asserter.Equal([]string{objects.SignalCancel}, got)
}

func TestStore_Watch(t *testing.T) {
	asserter := assert.New(t)
	c := storetest.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	since := time.Now().UTC().Add(-time.Minute)
	go c.Store.Watch(ctx, store.WorkflowRunsContainer, since, 10*time.Millisecond, func(ctx context.Context, e store.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.ID)
	})

	require.NoError(t, c.Signals.Put(context.Background(), &objects.SignalRecord{ID: "s1", RunID: "r", Name: "x"}))
	asserter.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == "s1"
	}, 2*time.Second, 10*time.Millisecond)
}
