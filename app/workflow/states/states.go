package states

import "fmt"

// Task run states.
const (
	// PENDING Task record exists but nothing was sent to an executor yet.
	PENDING = "pending"

	// SUBMITTING Submission to the executor is in flight. A driver resuming a
	// task in this state submits again; executors treat that idempotently.
	SUBMITTING = "submitting"

	// SUBMITTED The executor accepted the task and returned an executor id.
	SUBMITTED = "submitted"

	// RUNNING The executor reported the task as running.
	RUNNING = "running"

	// WAITING The task asked to be re-driven later.
	WAITING = "waiting"

	// COMPLETED The task finished and its output was recorded.
	COMPLETED = "completed"

	// FAILED Task, partition, job or run finished with an error.
	FAILED = "failed"

	// CANCELLED Task, partition, job or run was cancelled.
	CANCELLED = "cancelled"
)

// Partition, job and run states. PENDING, RUNNING, WAITING, FAILED and
// CANCELLED are shared with tasks.
const (
	RECEIVED  = "received"
	SUCCEEDED = "succeeded"
	// SKIPPED A job whose required dependency did not succeed. It never started.
	SKIPPED = "skipped"
)

var (
	TaskStates = []string{
		PENDING, SUBMITTING, SUBMITTED, RUNNING, WAITING, COMPLETED, FAILED, CANCELLED,
	}

	CompleteTaskStates = []string{
		COMPLETED, FAILED, CANCELLED,
	}

	CompleteStates = []string{
		SUCCEEDED, FAILED, CANCELLED, SKIPPED,
	}

	IncompleteStates = []string{
		RECEIVED, PENDING, RUNNING, WAITING,
	}

	taskRank = map[string]int{
		PENDING:    0,
		SUBMITTING: 1,
		SUBMITTED:  2,
		RUNNING:    3,
		WAITING:    4,
		COMPLETED:  5,
		FAILED:     5,
		CANCELLED:  5,
	}
)

func contains(list []string, state string) bool {
	for _, s := range list {
		if s == state {
			return true
		}
	}
	return false
}

// IsCompleted reports terminal partition, job and run states.
func IsCompleted(state string) bool {
	return contains(CompleteStates, state)
}

func IsTaskCompleted(state string) bool {
	return contains(CompleteTaskStates, state)
}

func IsRunning(state string) bool {
	return state == RUNNING
}

func IsSuccess(state string) bool {
	return state == SUCCEEDED || state == COMPLETED
}

func IsCanceled(state string) bool {
	return state == CANCELLED
}

func IsErrored(state string) bool {
	return state == FAILED
}

func IsWaiting(state string) bool {
	return state == WAITING
}

// ValidateTaskTransition enforces the monotone task state machine. The only
// backwards move is waiting -> running when a waiting task is re-driven.
func ValidateTaskTransition(curState, state string) error {
	cur, ok := taskRank[curState]
	if !ok {
		return fmt.Errorf("unknown task state '%s'", curState)
	}
	next, ok := taskRank[state]
	if !ok {
		return fmt.Errorf("unknown task state '%s'", state)
	}
	if curState == state {
		return nil
	}
	if IsTaskCompleted(curState) {
		return fmt.Errorf("task is already %s, can't move to %s", curState, state)
	}
	if curState == WAITING && state == RUNNING {
		return nil
	}
	if next <= cur {
		return fmt.Errorf("invalid task state transition %s -> %s", curState, state)
	}
	return nil
}
