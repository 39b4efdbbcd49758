package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"pctasks/app/objects"
	"pctasks/app/taskrun"
	"pctasks/pkg/log"
)

type localTask struct {
	cancel context.CancelFunc
	done   bool
	err    error
	result objects.TaskResult
}

// LocalExecutor runs tasks in-process through the task harness.
type LocalExecutor struct {
	harness *taskrun.Harness

	mu    sync.Mutex
	tasks map[string]*localTask
}

func NewLocalExecutor(harness *taskrun.Harness) *LocalExecutor {
	return &LocalExecutor{harness: harness, tasks: map[string]*localTask{}}
}

func (e *LocalExecutor) Kind() string {
	return "local"
}

func localTaskID(msg *objects.TaskRunMessage) string {
	return fmt.Sprintf("%s/%s/%s/%s/%d", msg.RunID, msg.JobID, msg.PartitionID, msg.TaskID, msg.Attempt)
}

func (e *LocalExecutor) Submit(ctx context.Context, task *PreparedTask) (*SubmitResult, error) {
	id := localTaskID(task.Message)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[id]; ok {
		return &SubmitResult{ExecutorID: id}, nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t := &localTask{cancel: cancel}
	e.tasks[id] = t
	go func() {
		defer cancel()
		result, err := e.harness.Run(runCtx, task.Message, task.Environment)
		if err != nil {
			log.Errorf(ctx, "local task %s failed: %s", id, err)
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		t.done, t.err, t.result = true, err, result
	}()
	return &SubmitResult{ExecutorID: id}, nil
}

func (e *LocalExecutor) Poll(ctx context.Context, executorID string, pollCount int) (*PollResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[executorID]
	switch {
	case !ok:
		return &PollResult{State: PollMissing}, nil
	case !t.done:
		return &PollResult{State: PollRunning}, nil
	case t.err != nil:
		return &PollResult{State: PollFailed, Reason: t.err.Error()}, nil
	default:
		return &PollResult{State: PollCompleted}, nil
	}
}

func (e *LocalExecutor) FetchResult(ctx context.Context, task *PreparedTask, executorID string) (*objects.TaskResult, error) {
	return fetchOutput(ctx, e.harness.Blobs, task)
}

func (e *LocalExecutor) Cancel(ctx context.Context, executorID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.tasks[executorID]; ok {
		t.cancel()
	}
	return nil
}

// Forget drops the tasks of runID, stopping any still running.
func (e *LocalExecutor) Forget(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix := runID + "/"
	for id, t := range e.tasks {
		if strings.HasPrefix(id, prefix) {
			if !t.done {
				t.cancel()
			}
			delete(e.tasks, id)
		}
	}
}
