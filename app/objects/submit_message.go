package objects

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type WorkflowRef struct {
	ID         string              `json:"id"`
	Definition *WorkflowDefinition `json:"definition"`
}

// WorkflowSubmitMessage asks a driver to execute one run of a workflow.
type WorkflowSubmitMessage struct {
	Workflow     WorkflowRef            `json:"workflow"`
	RunID        string                 `json:"run_id"`
	Args         map[string]interface{} `json:"args,omitempty"`
	TriggerEvent *TriggerEvent          `json:"trigger_event,omitempty"`
}

type TriggerEvent struct {
	Kind    string                 `json:"kind"`
	Subject string                 `json:"subject"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Scope is the trigger namespace exposed to templates.
func (e *TriggerEvent) Scope() map[string]interface{} {
	if e == nil {
		return map[string]interface{}{}
	}
	scope := map[string]interface{}{
		"kind":    e.Kind,
		"subject": e.Subject,
	}
	if e.Payload != nil {
		scope["payload"] = e.Payload
		for k, v := range e.Payload {
			if _, ok := scope[k]; !ok {
				scope[k] = v
			}
		}
	}
	return scope
}

// TaskRunMessage is everything the task harness needs to run one task. It
// is written to the task's input blob and passed on executor command lines
// as base64 encoded JSON.
type TaskRunMessage struct {
	WorkflowID    string                 `json:"workflow_id"`
	RunID         string                 `json:"run_id"`
	JobID         string                 `json:"job_id"`
	PartitionID   string                 `json:"partition_id"`
	TaskID        string                 `json:"task_id"`
	Image         string                 `json:"image,omitempty"`
	Task          string                 `json:"task"`
	Args          map[string]interface{} `json:"args,omitempty"`
	SchemaVersion string                 `json:"schema_version,omitempty"`
	InputPath     string                 `json:"input_path"`
	OutputPath    string                 `json:"output_path"`
	LogPath       string                 `json:"log_path"`
	StatusPrefix  string                 `json:"status_prefix"`
	CodeURI       string                 `json:"code_uri,omitempty"`
	Tokens        map[string]string      `json:"tokens,omitempty"`
	Tags          map[string]string      `json:"tags,omitempty"`
	// Attempt increases each time a waiting task is re-driven.
	Attempt int `json:"attempt"`
}

func (m *TaskRunMessage) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func DecodeTaskRunMessage(encoded string) (*TaskRunMessage, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid task run message: %w", err)
	}
	msg := &TaskRunMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("invalid task run message: %w", err)
	}
	return msg, nil
}
