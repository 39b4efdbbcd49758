package handles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pctasks/app/blob"
	"pctasks/app/executor"
	"pctasks/app/objects"
	"pctasks/app/store/storetest"
	"pctasks/app/taskrun"
	"pctasks/plugins"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, blob.Store) {
	plugins.RegisterBuiltinTasks()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	harness := &taskrun.Harness{Blobs: blobs, Records: storetest.New(t)}
	srv := httptest.NewServer(NewRouter(NewTaskHandles(executor.NewLocalExecutor(harness))))
	t.Cleanup(srv.Close)
	return srv, blobs
}

func echoTask() *executor.PreparedTask {
	msg := &objects.TaskRunMessage{
		WorkflowID:   "wf",
		RunID:        "r1",
		JobID:        "a",
		PartitionID:  "0",
		TaskID:       "t",
		Task:         "pctasks.standard:echo",
		Args:         map[string]interface{}{"value": "x"},
		InputPath:    objects.TaskInputPath("r1", "a", "0", "t"),
		OutputPath:   objects.TaskOutputPath("r1", "a", "0", "t"),
		LogPath:      objects.TaskLogPath("r1", "a", "0", "t"),
		StatusPrefix: objects.TaskStatusPrefix("r1", "a", "0", "t"),
	}
	return &executor.PreparedTask{Message: msg}
}

func TestTaskHandles_RoundTrip(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	srv, blobs := newServer(t)
	e := executor.NewDevEndpointExecutor(srv.URL, blobs)

	task := echoTask()
	sub, err := e.Submit(ctx, task)
	require.NoError(t, err)
	asserter.NotContains(sub.ExecutorID, "/")

	require.Eventually(t, func() bool {
		res, err := e.Poll(ctx, sub.ExecutorID, 0)
		return err == nil && res.State == executor.PollCompleted
	}, 5*time.Second, 10*time.Millisecond)

	result, err := e.FetchResult(ctx, task, sub.ExecutorID)
	if asserter.NoError(err) {
		asserter.Equal(objects.TaskResultCompleted, result.Status)
		asserter.Equal(map[string]interface{}{"value": "x"}, result.Output)
	}

	asserter.NoError(e.Cancel(ctx, sub.ExecutorID))
	res, err := e.Poll(ctx, encodeID("r1/a/0/other/0"), 0)
	if asserter.NoError(err) {
		asserter.Equal(executor.PollMissing, res.State)
	}
}

func TestTaskHandles_BadRequests(t *testing.T) {
	asserter := assert.New(t)
	srv, _ := newServer(t)

	resp, err := http.Post(srv.URL+"/tasks", "application/json", nil)
	if asserter.NoError(err) {
		resp.Body.Close()
		asserter.Equal(http.StatusBadRequest, resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/tasks/not*base64")
	if asserter.NoError(err) {
		resp.Body.Close()
		asserter.Equal(http.StatusNotFound, resp.StatusCode)
		asserter.NotEmpty(resp.Header.Get(requestIDHeader))
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if asserter.NoError(err) {
		resp.Body.Close()
		asserter.Equal(http.StatusOK, resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if asserter.NoError(err) {
		resp.Body.Close()
		asserter.Equal(http.StatusOK, resp.StatusCode)
	}
}
