package client

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pctasks/app/blob"
	"pctasks/app/objects"
	"pctasks/app/queue"
	"pctasks/app/signal"
	"pctasks/app/store/storetest"
	"pctasks/app/workflow/states"
	"pctasks/plugins"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *Client {
	plugins.RegisterBuiltinTasks()
	records := storetest.New(t)
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	queues := queue.NewMemorySet()
	bus := signal.NewBus(records, queues, 10*time.Millisecond)
	t.Cleanup(bus.Close)
	return NewClient(records, blobs, queues, bus)
}

func receiveSubmit(t *testing.T, c *Client) *objects.WorkflowSubmitMessage {
	t.Helper()
	q, err := c.Queues.Get(queue.WorkflowSubmitQueue)
	require.NoError(t, err)
	msgs, err := q.Receive(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	env, err := queue.Decode(msgs[0].Body)
	require.NoError(t, err)
	msg := &objects.WorkflowSubmitMessage{}
	require.NoError(t, env.Payload(msg))
	return msg
}

func TestClient_SubmitWorkflow(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	c := newClient(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "query.json"), []byte(`{"q":1}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundle.zip"), []byte("code"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.yaml"), []byte(`
name: ingest
args: [collection]
jobs:
  a:
    tasks:
      - id: t
        task: pctasks.standard:echo
        code: bundle.zip
        args:
          query: ${{ local.file('query.json') }}
          collection: ${{ args.collection }}
`), 0644))

	runID, err := c.SubmitWorkflow(ctx, filepath.Join(dir, "workflow.yaml"), map[string]interface{}{"collection": "naip"})
	require.NoError(t, err)
	asserter.Len(runID, 32)

	msg := receiveSubmit(t, c)
	asserter.Equal(runID, msg.RunID)
	asserter.Equal(map[string]interface{}{"collection": "naip"}, msg.Args)
	task := msg.Workflow.Definition.Jobs["a"].Tasks[0]
	asserter.Equal(`{"q":1}`, task.Args["query"])
	asserter.Equal("${{ args.collection }}", task.Args["collection"])
	asserter.True(strings.HasPrefix(task.Code, c.Blobs.URI("")))
	asserter.True(strings.HasSuffix(task.Code, "/bundle.zip"))
	data, err := c.Blobs.Get(ctx, blob.PathFromURI(c.Blobs, task.Code))
	if asserter.NoError(err) {
		asserter.Equal("code", string(data))
	}
}

func TestClient_SubmitWorkflow_UserErrors(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	c := newClient(t)
	dir := t.TempDir()

	_, err := c.SubmitWorkflow(ctx, filepath.Join(dir, "missing.yaml"), nil)
	asserter.True(objects.IsUserError(err))

	path := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: w
args: [x]
jobs:
  a:
    tasks:
      - id: t
        task: pctasks.standard:echo
`), 0644))
	_, err = c.SubmitWorkflow(ctx, path, nil)
	asserter.True(objects.IsUserError(err))

	q, err := c.Queues.Get(queue.WorkflowSubmitQueue)
	require.NoError(t, err)
	msgs, err := q.Receive(ctx, 10, time.Minute)
	if asserter.NoError(err) {
		asserter.Empty(msgs)
	}
}

func TestClient_SubmitWorkflow_RejectedBeforeQueueing(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	dir := t.TempDir()

	documents := map[string]struct {
		doc    string
		reason string
	}{
		"cycle": {
			doc: `
name: w
jobs:
  a:
    needs: [b]
    tasks:
      - id: t
        task: pctasks.standard:echo
  b:
    needs: [a]
    tasks:
      - id: t
        task: pctasks.standard:echo
`,
			reason: "cycle in job graph",
		},
		"unknown task": {
			doc: `
name: w
jobs:
  a:
    tasks:
      - id: t
        task: pctasks.standard:nope
`,
			reason: "unknown task 'pctasks.standard:nope'",
		},
		"job output out of scope": {
			doc: `
name: w
jobs:
  a:
    tasks:
      - id: t
        task: pctasks.standard:echo
  b:
    tasks:
      - id: t
        task: pctasks.standard:echo
        args:
          value: ${{ jobs.a.tasks.t.output.value }}
`,
			reason: "does not depend on job a",
		},
		"later task output": {
			doc: `
name: w
jobs:
  a:
    tasks:
      - id: first
        task: pctasks.standard:echo
        args:
          value: ${{ tasks.second.output.value }}
      - id: second
        task: pctasks.standard:echo
`,
			reason: "does not run before this task",
		},
		"secret in args": {
			doc: `
name: w
jobs:
  a:
    tasks:
      - id: t
        task: pctasks.standard:echo
        args:
          value: ${{ secrets.key }}
`,
			reason: "secrets are only available in task environment",
		},
	}

	for name, tc := range documents {
		t.Run(name, func(t *testing.T) {
			asserter := assert.New(t)
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.doc), 0644))

			runID, err := c.SubmitWorkflow(ctx, path, nil)
			asserter.Empty(runID)
			if asserter.Error(err) {
				asserter.True(objects.IsUserError(err))
				asserter.Contains(err.Error(), tc.reason)
			}
		})
	}

	q, err := c.Queues.Get(queue.WorkflowSubmitQueue)
	require.NoError(t, err)
	msgs, err := q.Receive(ctx, 10, time.Minute)
	if assert.NoError(t, err) {
		assert.Empty(t, msgs)
	}
}

func TestClient_CancelAndResume(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	c := newClient(t)

	require.NoError(t, c.Records.WorkflowRuns.Put(ctx, &objects.WorkflowRunRecord{WorkflowID: "w", RunID: "r1", Status: states.RUNNING}))
	require.NoError(t, c.Records.WorkflowRuns.Put(ctx, &objects.WorkflowRunRecord{WorkflowID: "w", RunID: "r2", Status: states.SUCCEEDED}))

	asserter.True(objects.IsUserError(c.Cancel(ctx, "missing")))
	asserter.True(objects.IsUserError(c.Cancel(ctx, "r2")))

	if asserter.NoError(c.Cancel(ctx, "r1")) {
		sig, err := c.Signals.Find(ctx, "r1", objects.SignalCancel, time.Time{}, nil)
		if asserter.NoError(err) {
			asserter.NotNil(sig)
		}
	}

	if asserter.NoError(c.Resume(ctx, "r1", "t", "a", "0")) {
		sig, err := c.Signals.Find(ctx, "r1", objects.TaskResumeSignal("r1", "t"), time.Time{}, nil)
		if asserter.NoError(err) && asserter.NotNil(sig) {
			asserter.Equal(map[string]interface{}{"job_id": "a", "partition_id": "0"}, sig.Payload)
		}
	}
}

func TestClient_StatusAndList(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	c := newClient(t)

	require.NoError(t, c.Records.WorkflowRuns.Put(ctx, &objects.WorkflowRunRecord{
		WorkflowID: "w",
		RunID:      "r1",
		Status:     states.RUNNING,
		Jobs: []*objects.JobRunSummary{
			{JobID: "b", Status: states.RUNNING},
			{JobID: "a", Status: states.RUNNING},
		},
	}))
	for _, p := range []*objects.JobPartitionRunRecord{
		{RunID: "r1", JobID: "a", PartitionID: "x", Index: 1, Status: states.RUNNING},
		{RunID: "r1", JobID: "a", PartitionID: "y", Index: 0, Status: states.RUNNING},
		{RunID: "r1", JobID: "b", PartitionID: "0", Index: 0, Status: states.RUNNING},
	} {
		require.NoError(t, c.Records.JobPartitionRuns.Put(ctx, p))
	}

	status, err := c.Status(ctx, "r1")
	if asserter.NoError(err) {
		asserter.Equal("r1", status.Run.RunID)
		var order []string
		for _, p := range status.Partitions {
			order = append(order, p.JobID+"/"+p.PartitionID)
		}
		asserter.Equal([]string{"b/0", "a/y", "a/x"}, order)
	}
	_, err = c.Status(ctx, "missing")
	asserter.True(objects.IsUserError(err))

	require.NoError(t, c.Records.RunSummaries.Put(ctx, &objects.WorkflowRunSummary{WorkflowID: "w", RunID: "r1", Status: states.RUNNING}))
	require.NoError(t, c.Records.RunSummaries.Put(ctx, &objects.WorkflowRunSummary{WorkflowID: "w", RunID: "r2", Status: states.FAILED}))
	require.NoError(t, c.Records.RunSummaries.Put(ctx, &objects.WorkflowRunSummary{WorkflowID: "v", RunID: "r3", Status: states.FAILED}))

	runs, err := c.List(ctx, "", nil, 0)
	if asserter.NoError(err) {
		asserter.Len(runs, 3)
	}
	runs, err = c.List(ctx, "w", nil, 0)
	if asserter.NoError(err) {
		asserter.Len(runs, 2)
	}
	runs, err = c.List(ctx, "", []string{states.FAILED}, 1)
	if asserter.NoError(err) {
		asserter.Len(runs, 1)
	}
}

func TestParseArguments(t *testing.T) {
	asserter := assert.New(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "args.yaml")
	require.NoError(t, os.WriteFile(file, []byte("collection: naip\nyears: [2020, 2021]\nopts:\n  dry: true\n"), 0644))

	args, err := ParseArguments(file, []string{"collection=sentinel", "limit=10", "name=plain text"})
	if asserter.NoError(err) {
		asserter.Equal(map[string]interface{}{
			"collection": "sentinel",
			"years":      []interface{}{2020, 2021},
			"opts":       map[string]interface{}{"dry": true},
			"limit":      float64(10),
			"name":       "plain text",
		}, args)
	}

	_, err = ParseArguments("", []string{"novalue"})
	asserter.True(objects.IsUserError(err))
	_, err = ParseArguments(filepath.Join(dir, "missing.yaml"), nil)
	asserter.True(objects.IsUserError(err))
}
