package objects

import "time"

type TaskResultStatus string

const (
	TaskResultCompleted TaskResultStatus = "completed"
	TaskResultWaiting   TaskResultStatus = "waiting"
	TaskResultFailed    TaskResultStatus = "failed"
)

// TaskResult is the tagged value a task body returns and the harness writes
// to the task's output blob.
type TaskResult struct {
	Status TaskResultStatus `json:"status"`
	Output interface{}      `json:"output,omitempty"`
	Errors []string         `json:"errors,omitempty"`
	Wait   *WaitInfo        `json:"wait,omitempty"`
}

type WaitInfo struct {
	Message string `json:"message,omitempty"`
	// TimeoutSeconds overrides the driver wait timeout when set.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

func (w *WaitInfo) Timeout(def time.Duration) time.Duration {
	if w == nil || w.TimeoutSeconds <= 0 {
		return def
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

func CompletedResult(output interface{}) TaskResult {
	return TaskResult{Status: TaskResultCompleted, Output: output}
}

func WaitResult(message string, timeoutSeconds int) TaskResult {
	return TaskResult{Status: TaskResultWaiting, Wait: &WaitInfo{Message: message, TimeoutSeconds: timeoutSeconds}}
}

func FailedResult(errs ...string) TaskResult {
	return TaskResult{Status: TaskResultFailed, Errors: errs}
}
