// Package taskrun is the task side of execution: it runs one registered task
// from a TaskRunMessage and leaves its status, output and log in the blob
// store, where executors pick them up.
package taskrun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pctasks/app/blob"
	"pctasks/app/objects"
	"pctasks/app/store"
	"pctasks/pkg/contextx"
	"pctasks/pkg/log"
	"pctasks/plugins/plugin"

	"github.com/google/uuid"
)

// Status values written to status blobs.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusWaiting   = "waiting"
)

type Harness struct {
	Blobs blob.Store
	// Records is optional; tasks that write item records need it.
	Records *store.Containers
}

// Run executes msg. Errors are infrastructure failures writing blobs; task
// failures are reported in the returned result.
func (h *Harness) Run(ctx context.Context, msg *objects.TaskRunMessage, env map[string]string) (objects.TaskResult, error) {
	ctx = contextx.WithRun(ctx, msg.WorkflowID, msg.RunID)
	ctx = contextx.WithPartition(ctx, msg.JobID, msg.PartitionID)
	ctx = contextx.WithTask(ctx, msg.TaskID)

	var logBuf bytes.Buffer
	logger := log.NewWriterLogger(&logBuf, ctx, "task")
	if err := h.writeStatus(ctx, msg, StatusRunning, 0); err != nil {
		return objects.TaskResult{}, err
	}

	logger.Infof("running task %s (attempt %d)", msg.Task, msg.Attempt)
	start := time.Now()
	result := plugin.Call(ctx, msg.Task, msg.Args, &plugin.TaskContext{
		WorkflowID:  msg.WorkflowID,
		RunID:       msg.RunID,
		JobID:       msg.JobID,
		PartitionID: msg.PartitionID,
		TaskID:      msg.TaskID,
		Attempt:     msg.Attempt,
		Environment: env,
		CodeURI:     msg.CodeURI,
		Blobs:       h.Blobs,
		Records:     h.Records,
		Logger:      logger,
	})
	switch result.Status {
	case objects.TaskResultFailed:
		logger.Errorf("task failed after %s: %s", time.Since(start), strings.Join(result.Errors, "; "))
	case objects.TaskResultWaiting:
		logger.Infof("task asked to wait: %s", result.Wait.Message)
	default:
		logger.Infof("task completed in %s", time.Since(start))
	}

	output, err := json.Marshal(result)
	if err != nil {
		result = objects.FailedResult(fmt.Sprintf("task output is not serializable: %s", err))
		output, _ = json.Marshal(result)
	}
	if err := h.Blobs.Put(ctx, msg.OutputPath, output); err != nil {
		return result, err
	}
	if err := h.Blobs.Put(ctx, msg.LogPath, logBuf.Bytes()); err != nil {
		log.Warnf(ctx, "write task log failed: %s", err)
	}
	return result, h.writeStatus(ctx, msg, string(result.Status), 1)
}

// writeStatus names status blobs so they sort by time, then by seq.
func (h *Harness) writeStatus(ctx context.Context, msg *objects.TaskRunMessage, status string, seq int) error {
	name := fmt.Sprintf("%s-%d-%s", time.Now().UTC().Format("20060102T150405.000000"), seq, uuid.NewString()[:8])
	return h.Blobs.Put(ctx, objects.TaskStatusPath(msg.StatusPrefix, name), []byte(status))
}

// LatestStatus returns the most recent status blob under prefix, or "" when
// the task never started.
func LatestStatus(ctx context.Context, blobs blob.Store, prefix string) (string, error) {
	paths, err := blobs.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, p := range paths {
		if p > latest {
			latest = p
		}
	}
	if latest == "" {
		return "", nil
	}
	data, err := blobs.Get(ctx, latest)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadResult reads the task result written by Run.
func ReadResult(ctx context.Context, blobs blob.Store, outputPath string) (*objects.TaskResult, error) {
	data, err := blobs.Get(ctx, outputPath)
	if err != nil {
		return nil, err
	}
	result := &objects.TaskResult{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("invalid task output: %w", err)
	}
	return result, nil
}
