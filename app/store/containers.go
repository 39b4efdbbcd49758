package store

import (
	"pctasks/app/objects"
)

const (
	// WorkflowsContainer, partitioned by workflow id, holds definitions and
	// per-workflow run summaries.
	WorkflowsContainer = "workflows"
	// WorkflowRunsContainer, partitioned by run id, holds run records, job
	// partition run records and signals.
	WorkflowRunsContainer = "workflow-runs"
	// ItemsContainer is partitioned by stac id.
	ItemsContainer             = "items"
	ProcessItemErrorsContainer = "process-item-errors"
	CreateItemErrorsContainer  = "create-item-errors"
	StorageEventsContainer     = "storage-events"
)

// Containers bundles the typed containers of a store. All puts are upserts
// and the last writer wins. A run record and its partition records have a
// single writer, the run's driver; signals and storage events are written
// once and never updated.
type Containers struct {
	Store *Store

	Workflows    *Container[*objects.WorkflowRecord]
	RunSummaries *Container[*objects.WorkflowRunSummary]

	WorkflowRuns     *Container[*objects.WorkflowRunRecord]
	JobPartitionRuns *Container[*objects.JobPartitionRunRecord]
	Signals          *Container[*objects.SignalRecord]

	Items             *Container[*objects.ItemRecord]
	ProcessItemErrors *Container[*objects.ProcessItemErrorRecord]
	CreateItemErrors  *Container[*objects.CreateItemErrorRecord]
	StorageEvents     *Container[*objects.StorageEventRecord]
}

func NewContainers(s *Store) *Containers {
	return &Containers{
		Store: s,
		Workflows: NewContainer(s, WorkflowsContainer, objects.RecordTypeWorkflow,
			func() *objects.WorkflowRecord { return &objects.WorkflowRecord{} }),
		RunSummaries: NewContainer(s, WorkflowsContainer, objects.RecordTypeWorkflowRunSummary,
			func() *objects.WorkflowRunSummary { return &objects.WorkflowRunSummary{} }),
		WorkflowRuns: NewContainer(s, WorkflowRunsContainer, objects.RecordTypeWorkflowRun,
			func() *objects.WorkflowRunRecord { return &objects.WorkflowRunRecord{} }),
		JobPartitionRuns: NewContainer(s, WorkflowRunsContainer, objects.RecordTypeJobPartitionRun,
			func() *objects.JobPartitionRunRecord { return &objects.JobPartitionRunRecord{} }),
		Signals: NewContainer(s, WorkflowRunsContainer, objects.RecordTypeSignal,
			func() *objects.SignalRecord { return &objects.SignalRecord{} }),
		Items: NewContainer(s, ItemsContainer, objects.RecordTypeItem,
			func() *objects.ItemRecord { return &objects.ItemRecord{} }),
		ProcessItemErrors: NewContainer(s, ProcessItemErrorsContainer, objects.RecordTypeProcessItemError,
			func() *objects.ProcessItemErrorRecord { return &objects.ProcessItemErrorRecord{} }),
		CreateItemErrors: NewContainer(s, CreateItemErrorsContainer, objects.RecordTypeCreateItemError,
			func() *objects.CreateItemErrorRecord { return &objects.CreateItemErrorRecord{} }),
		StorageEvents: NewContainer(s, StorageEventsContainer, objects.RecordTypeStorageEvent,
			func() *objects.StorageEventRecord { return &objects.StorageEventRecord{} }),
	}
}
