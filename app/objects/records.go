package objects

import (
	"fmt"
	"time"

	"pctasks/app/workflow/states"
)

const (
	RecordTypeWorkflow           = "Workflow"
	RecordTypeWorkflowRunSummary = "WorkflowRunSummary"
	RecordTypeWorkflowRun        = "WorkflowRun"
	RecordTypeJobPartitionRun    = "JobPartitionRun"
	RecordTypeSignal             = "Signal"
	RecordTypeItem               = "Item"
	RecordTypeProcessItemError   = "ProcessItemError"
	RecordTypeCreateItemError    = "CreateItemError"
	RecordTypeStorageEvent       = "StorageEvent"
)

type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Timestamps) Touch(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

func (t *Timestamps) LastUpdated() time.Time {
	return t.UpdatedAt
}

// WorkflowRecord stores a submitted workflow definition. Partition and id
// are both the workflow id.
type WorkflowRecord struct {
	Timestamps
	WorkflowID string              `json:"workflow_id"`
	Definition *WorkflowDefinition `json:"definition"`
}

func (r *WorkflowRecord) RecordID() string     { return r.WorkflowID }
func (r *WorkflowRecord) PartitionKey() string { return r.WorkflowID }
func (r *WorkflowRecord) RecordType() string   { return RecordTypeWorkflow }
func (r *WorkflowRecord) RecordStatus() string { return "" }

// WorkflowRunSummary is the per-workflow view of a run, kept next to the
// definition so a workflow's runs can be listed from one partition.
type WorkflowRunSummary struct {
	Timestamps
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
}

func WorkflowRunSummaryID(runID string) string { return "run:" + runID }

func (r *WorkflowRunSummary) RecordID() string     { return WorkflowRunSummaryID(r.RunID) }
func (r *WorkflowRunSummary) PartitionKey() string { return r.WorkflowID }
func (r *WorkflowRunSummary) RecordType() string   { return RecordTypeWorkflowRunSummary }
func (r *WorkflowRunSummary) RecordStatus() string { return r.Status }

type WorkflowRunRecord struct {
	Timestamps
	WorkflowID          string                 `json:"workflow_id"`
	RunID               string                 `json:"run_id"`
	Status              string                 `json:"status"`
	Args                map[string]interface{} `json:"args,omitempty"`
	Trigger             *TriggerEvent          `json:"trigger,omitempty"`
	Errors              []string               `json:"errors,omitempty"`
	Jobs                []*JobRunSummary       `json:"jobs"`
	DocumentURI         string                 `json:"document_uri,omitempty"`
	ResolvedDocumentURI string                 `json:"resolved_document_uri,omitempty"`
	StartedAt           *time.Time             `json:"started_at,omitempty"`
	EndedAt             *time.Time             `json:"ended_at,omitempty"`
}

func (r *WorkflowRunRecord) RecordID() string     { return r.RunID }
func (r *WorkflowRunRecord) PartitionKey() string { return r.RunID }
func (r *WorkflowRunRecord) RecordType() string   { return RecordTypeWorkflowRun }
func (r *WorkflowRunRecord) RecordStatus() string { return r.Status }

func (r *WorkflowRunRecord) IsTerminal() bool {
	return states.IsCompleted(r.Status)
}

func (r *WorkflowRunRecord) GetJob(jobID string) *JobRunSummary {
	for _, j := range r.Jobs {
		if j.JobID == jobID {
			return j
		}
	}
	return nil
}

type JobRunSummary struct {
	JobID          string     `json:"job_id"`
	Status         string     `json:"status"`
	PartitionCount int        `json:"partition_count"`
	Errors         []string   `json:"errors,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

type JobPartitionRunRecord struct {
	Timestamps
	RunID       string           `json:"run_id"`
	JobID       string           `json:"job_id"`
	PartitionID string           `json:"partition_id"`
	Index       int              `json:"index"`
	Status      string           `json:"status"`
	Item        interface{}      `json:"item,omitempty"`
	Tasks       []*TaskRunRecord `json:"tasks"`
	Errors      []string         `json:"errors,omitempty"`
}

func JobPartitionRunID(jobID, partitionID string) string {
	return fmt.Sprintf("%s:%s", jobID, partitionID)
}

func (r *JobPartitionRunRecord) RecordID() string     { return JobPartitionRunID(r.JobID, r.PartitionID) }
func (r *JobPartitionRunRecord) PartitionKey() string { return r.RunID }
func (r *JobPartitionRunRecord) RecordType() string   { return RecordTypeJobPartitionRun }
func (r *JobPartitionRunRecord) RecordStatus() string { return r.Status }

func (r *JobPartitionRunRecord) GetTask(taskID string) *TaskRunRecord {
	for _, t := range r.Tasks {
		if t.TaskID == taskID {
			return t
		}
	}
	return nil
}

type TaskTransition struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

type TaskRunRecord struct {
	TaskID       string           `json:"task_id"`
	Status       string           `json:"status"`
	ExecutorID   string           `json:"executor_id,omitempty"`
	PollCount    int              `json:"poll_count"`
	MissingPolls int              `json:"missing_polls,omitempty"`
	WaitCount    int              `json:"wait_count,omitempty"`
	Errors       []string         `json:"errors,omitempty"`
	Output       interface{}      `json:"output,omitempty"`
	InputURI     string           `json:"input_uri,omitempty"`
	OutputURI    string           `json:"output_uri,omitempty"`
	LogURI       string           `json:"log_uri,omitempty"`
	History      []TaskTransition `json:"history,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
}

func NewTaskRunRecord(taskID string) *TaskRunRecord {
	return &TaskRunRecord{TaskID: taskID, Status: states.PENDING}
}

// SetStatus moves the record along the task state machine.
func (r *TaskRunRecord) SetStatus(status string, now time.Time) error {
	if err := states.ValidateTaskTransition(r.Status, status); err != nil {
		return err
	}
	if r.Status == status {
		return nil
	}
	r.Status = status
	r.History = append(r.History, TaskTransition{Status: status, At: now})
	switch {
	case status == states.RUNNING && r.StartedAt == nil:
		r.StartedAt = &now
	case states.IsTaskCompleted(status):
		r.EndedAt = &now
	}
	return nil
}

// SignalRecord is a named event raised into a run.
type SignalRecord struct {
	Timestamps
	ID      string                 `json:"id"`
	RunID   string                 `json:"run_id"`
	Name    string                 `json:"name"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

func (r *SignalRecord) RecordID() string     { return r.ID }
func (r *SignalRecord) PartitionKey() string { return r.RunID }
func (r *SignalRecord) RecordType() string   { return RecordTypeSignal }
func (r *SignalRecord) RecordStatus() string { return r.Name }
