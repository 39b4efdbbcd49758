package objects

import "time"

// Queue message type discriminators.
const (
	MessageTypeWorkflowSubmit = "WorkflowSubmit"
	MessageTypeEventGrid      = "EventGrid"
	MessageTypeNotification   = "Notification"
	MessageTypeOperation      = "Operation"
)

// Operation names carried by Operation messages on the task-signal queue.
const (
	OperationSignal = "signal"
)

// Well known signal names.
const (
	SignalCancel   = "cancel"
	SignalPollQuit = "poll-quit"
)

// TaskResumeSignal names the signal that re-drives a waiting task.
func TaskResumeSignal(runID, taskID string) string {
	return "task-resume:" + runID + ":" + taskID
}

type OperationMessage struct {
	Operation string                 `json:"operation"`
	RunID     string                 `json:"run_id"`
	Name      string                 `json:"name"`
	SignalID  string                 `json:"signal_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

type NotificationMessage struct {
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Errors     []string  `json:"errors,omitempty"`
	Time       time.Time `json:"time"`
}

type EventGridMessage struct {
	Event CloudEvent `json:"event"`
}
