package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"pctasks/app/blob"
	"pctasks/app/config"
	"pctasks/app/objects"

	"github.com/go-resty/resty/v2"
)

type batchJob struct {
	ID     string `json:"id"`
	PoolID string `json:"pool_id"`
}

type batchTask struct {
	ID          string            `json:"id"`
	Image       string            `json:"image"`
	Command     []string          `json:"command"`
	Environment map[string]string `json:"environment,omitempty"`
}

type batchTaskStatus struct {
	State       string `json:"state"`
	ExitCode    *int   `json:"exit_code,omitempty"`
	FailureInfo string `json:"failure_info,omitempty"`
}

type batchTaskRef struct {
	Job  string `json:"job"`
	Task string `json:"task"`
}

// BatchExecutor submits tasks to a batch compute service over its REST API.
// One batch job is created per workflow run, one batch task per task attempt.
type BatchExecutor struct {
	cfg    config.RunnerConfig
	client *resty.Client
	blobs  blob.Store
}

func NewBatchExecutor(cfg config.RunnerConfig, blobs blob.Store) *BatchExecutor {
	return &BatchExecutor{cfg: cfg, client: newRestClient(), blobs: blobs}
}

func (e *BatchExecutor) Kind() string {
	return "batch"
}

func batchJobID(runID string) string {
	return "pctasks-" + runID
}

func batchTaskID(msg *objects.TaskRunMessage) string {
	id := fmt.Sprintf("%s-%s-%s-%d", msg.JobID, msg.PartitionID, msg.TaskID, msg.Attempt)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

func harnessCommand(cfg config.RunnerConfig, encoded string) []string {
	command := append([]string{}, cfg.Command...)
	if len(command) == 0 {
		command = []string{"pctasks"}
	}
	return append(command, "task", "run", encoded)
}

func taskImage(cfg config.RunnerConfig, task *PreparedTask) string {
	if task.Image != "" {
		return task.Image
	}
	return cfg.Image
}

func (e *BatchExecutor) Submit(ctx context.Context, task *PreparedTask) (*SubmitResult, error) {
	encoded, err := task.Message.Encode()
	if err != nil {
		return nil, objects.Permanent("submit", "encode task", err)
	}
	ref := batchTaskRef{Job: batchJobID(task.Message.RunID), Task: batchTaskID(task.Message)}

	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(&batchJob{ID: ref.Job, PoolID: e.cfg.Pool}).
		Put(joinURL(e.cfg.Endpoint, "pools", e.cfg.Pool, "jobs", ref.Job))
	if err := classify("submit", resp, err, http.StatusConflict); err != nil {
		return nil, err
	}

	resp, err = e.client.R().
		SetContext(ctx).
		SetBody(&batchTask{
			ID:          ref.Task,
			Image:       taskImage(e.cfg, task),
			Command:     harnessCommand(e.cfg, encoded),
			Environment: task.Environment,
		}).
		Post(joinURL(e.cfg.Endpoint, "jobs", ref.Job, "tasks"))
	// A conflict means this attempt was already submitted.
	if err := classify("submit", resp, err, http.StatusConflict); err != nil {
		return nil, err
	}

	id, _ := json.Marshal(ref)
	return &SubmitResult{ExecutorID: string(id)}, nil
}

func parseBatchRef(executorID string) (*batchTaskRef, error) {
	ref := &batchTaskRef{}
	if err := json.Unmarshal([]byte(executorID), ref); err != nil || ref.Job == "" || ref.Task == "" {
		return nil, objects.Permanent("poll", fmt.Sprintf("invalid batch task id '%s'", executorID), err)
	}
	return ref, nil
}

func (e *BatchExecutor) Poll(ctx context.Context, executorID string, pollCount int) (*PollResult, error) {
	ref, err := parseBatchRef(executorID)
	if err != nil {
		return nil, err
	}
	status := &batchTaskStatus{}
	resp, err := e.client.R().
		SetContext(ctx).
		SetResult(status).
		Get(joinURL(e.cfg.Endpoint, "jobs", ref.Job, "tasks", ref.Task))
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return &PollResult{State: PollMissing}, nil
	}
	if err := classify("poll", resp, err); err != nil {
		return nil, err
	}

	switch status.State {
	case "completed":
		if status.ExitCode != nil && *status.ExitCode != 0 {
			reason := status.FailureInfo
			if reason == "" {
				reason = fmt.Sprintf("task exited with code %d", *status.ExitCode)
			}
			return &PollResult{State: PollFailed, Reason: reason}, nil
		}
		return &PollResult{State: PollCompleted}, nil
	case "failed":
		return &PollResult{State: PollFailed, Reason: status.FailureInfo}, nil
	default:
		return &PollResult{State: PollRunning}, nil
	}
}

func (e *BatchExecutor) FetchResult(ctx context.Context, task *PreparedTask, executorID string) (*objects.TaskResult, error) {
	return fetchOutput(ctx, e.blobs, task)
}

func (e *BatchExecutor) Cancel(ctx context.Context, executorID string) error {
	ref, err := parseBatchRef(executorID)
	if err != nil {
		return err
	}
	resp, err := e.client.R().
		SetContext(ctx).
		Delete(joinURL(e.cfg.Endpoint, "jobs", ref.Job, "tasks", ref.Task))
	return classify("cancel", resp, err, http.StatusNotFound)
}
