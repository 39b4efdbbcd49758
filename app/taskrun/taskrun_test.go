package taskrun

import (
	"context"
	"testing"

	"pctasks/app/blob"
	"pctasks/app/objects"
	"pctasks/plugins"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessage(task string, args map[string]interface{}) *objects.TaskRunMessage {
	return &objects.TaskRunMessage{
		WorkflowID:   "wf",
		RunID:        "r1",
		JobID:        "j",
		PartitionID:  "0",
		TaskID:       "t",
		Task:         task,
		Args:         args,
		InputPath:    objects.TaskInputPath("r1", "j", "0", "t"),
		OutputPath:   objects.TaskOutputPath("r1", "j", "0", "t"),
		LogPath:      objects.TaskLogPath("r1", "j", "0", "t"),
		StatusPrefix: objects.TaskStatusPrefix("r1", "j", "0", "t"),
	}
}

func TestHarness_Run(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	plugins.RegisterBuiltinTasks()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	h := &Harness{Blobs: blobs}

	msg := newMessage("pctasks.standard:echo", map[string]interface{}{"message": "hello"})
	result, err := h.Run(ctx, msg, nil)
	if asserter.NoError(err) {
		asserter.Equal(objects.TaskResultCompleted, result.Status)
	}

	stored, err := ReadResult(ctx, blobs, msg.OutputPath)
	if asserter.NoError(err) {
		asserter.Equal(map[string]interface{}{"message": "hello"}, stored.Output)
	}

	status, err := LatestStatus(ctx, blobs, msg.StatusPrefix)
	if asserter.NoError(err) {
		asserter.Equal(StatusCompleted, status)
	}

	logs, err := blobs.Get(ctx, msg.LogPath)
	if asserter.NoError(err) {
		asserter.Contains(string(logs), "running task pctasks.standard:echo")
	}
}

func TestHarness_Failed(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	plugins.RegisterBuiltinTasks()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	h := &Harness{Blobs: blobs}

	msg := newMessage("pctasks.standard:fail", map[string]interface{}{"message": "nope"})
	result, err := h.Run(ctx, msg, nil)
	if asserter.NoError(err) {
		asserter.Equal(objects.TaskResultFailed, result.Status)
	}
	status, _ := LatestStatus(ctx, blobs, msg.StatusPrefix)
	asserter.Equal(StatusFailed, status)

	status, err = LatestStatus(ctx, blobs, objects.TaskStatusPrefix("r1", "j", "0", "other"))
	asserter.NoError(err)
	asserter.Equal("", status)
}
