package executor

import (
	"context"
	"fmt"

	"pctasks/app/blob"
	"pctasks/app/config"
	"pctasks/app/objects"
	"pctasks/app/taskrun"
	"pctasks/pkg/kube"
	"pctasks/pkg/metrics"
)

// Poll states.
const (
	PollRunning   = "running"
	PollCompleted = "completed"
	PollFailed    = "failed"
	PollMissing   = "missing"
)

// PreparedTask is a task ready for an executor: the harness message plus the
// resolved environment, which is never persisted.
type PreparedTask struct {
	Message     *objects.TaskRunMessage
	Image       string
	Environment map[string]string
	InputURI    string
	OutputURI   string
	LogURI      string
}

type SubmitResult struct {
	ExecutorID string
}

type PollResult struct {
	State  string
	Reason string
}

// Executor runs prepared tasks. Submit must be idempotent for the same task
// and attempt. Transient failures are returned as ExecutorTransientError and
// retried by the caller.
type Executor interface {
	Kind() string
	Submit(ctx context.Context, task *PreparedTask) (*SubmitResult, error)
	Poll(ctx context.Context, executorID string, pollCount int) (*PollResult, error)
	FetchResult(ctx context.Context, task *PreparedTask, executorID string) (*objects.TaskResult, error)
	Cancel(ctx context.Context, executorID string) error
}

// Forgetter is implemented by executors that keep state about the tasks
// they ran.
type Forgetter interface {
	Forget(runID string)
}

// Forget drops whatever e still holds for the tasks of a finished run.
func Forget(e Executor, runID string) {
	if i, ok := e.(*instrumented); ok {
		e = i.Executor
	}
	if f, ok := e.(Forgetter); ok {
		f.Forget(runID)
	}
}

// GetExecutor builds the executor selected by cfg.Kind.
func GetExecutor(cfg config.RunnerConfig, blobs blob.Store, harness *taskrun.Harness) (Executor, error) {
	var worker Executor
	switch cfg.Kind {
	case "local", "":
		if cfg.Endpoint != "" {
			worker = NewDevEndpointExecutor(cfg.Endpoint, blobs)
		} else {
			worker = NewLocalExecutor(harness)
		}
	case "batch":
		worker = NewBatchExecutor(cfg, blobs)
	case "kubernetes", "argo":
		client, err := kube.NewClientset(cfg.Kubeconfig)
		if err != nil {
			return nil, err
		}
		worker = NewKubernetesExecutor(client, cfg, blobs)
	default:
		return nil, fmt.Errorf("unsupported runner kind '%s'", cfg.Kind)
	}
	return Instrument(worker), nil
}

// fetchOutput reads the result the harness left in the output blob.
func fetchOutput(ctx context.Context, blobs blob.Store, task *PreparedTask) (*objects.TaskResult, error) {
	result, err := taskrun.ReadResult(ctx, blobs, task.Message.OutputPath)
	if objects.IsNotFoundError(err) {
		return nil, objects.Permanent("fetch_result", "task produced no output", nil)
	}
	if err != nil {
		return nil, objects.Transient("fetch_result", err)
	}
	return result, nil
}

type instrumented struct {
	Executor
}

// Instrument counts executor calls by operation and outcome.
func Instrument(e Executor) Executor {
	if _, ok := e.(*instrumented); ok {
		return e
	}
	return &instrumented{e}
}

func (i *instrumented) observe(op string, err error) {
	metrics.ExecutorCalls.WithLabelValues(i.Kind(), op, metrics.Outcome(err)).Inc()
}

func (i *instrumented) Submit(ctx context.Context, task *PreparedTask) (*SubmitResult, error) {
	res, err := i.Executor.Submit(ctx, task)
	i.observe("submit", err)
	return res, err
}

func (i *instrumented) Poll(ctx context.Context, executorID string, pollCount int) (*PollResult, error) {
	res, err := i.Executor.Poll(ctx, executorID, pollCount)
	i.observe("poll", err)
	return res, err
}

func (i *instrumented) FetchResult(ctx context.Context, task *PreparedTask, executorID string) (*objects.TaskResult, error) {
	res, err := i.Executor.FetchResult(ctx, task, executorID)
	i.observe("fetch_result", err)
	return res, err
}

func (i *instrumented) Cancel(ctx context.Context, executorID string) error {
	err := i.Executor.Cancel(ctx, executorID)
	i.observe("cancel", err)
	return err
}
