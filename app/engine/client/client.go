package client

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pctasks/app/blob"
	"pctasks/app/objects"
	"pctasks/app/queue"
	"pctasks/app/signal"
	"pctasks/app/store"
	"pctasks/app/workflow"
	"pctasks/pkg/log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Client submits workflows to the engine and inspects or steers their runs.
type Client struct {
	Records *store.Containers
	Blobs   blob.Store
	Queues  *queue.Set
	Signals *signal.Bus
}

func NewClient(records *store.Containers, blobs blob.Store, queues *queue.Set, signals *signal.Bus) *Client {
	return &Client{Records: records, Blobs: blobs, Queues: queues, Signals: signals}
}

// RunStatus is a run record together with its partition records, ordered by
// job and partition index.
type RunStatus struct {
	Run        *objects.WorkflowRunRecord       `json:"run"`
	Partitions []*objects.JobPartitionRunRecord `json:"partitions"`
}

// LoadWorkflow reads a workflow document from path.
func LoadWorkflow(path string) (*objects.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, objects.NewUserError("cannot read workflow '%s': %s", path, err)
	}
	def, err := objects.ParseWorkflowDefinition(data)
	if err != nil {
		return nil, objects.NewUserError("invalid workflow '%s': %s", path, err)
	}
	return def, nil
}

// SubmitWorkflow loads the document at path, prepares it against the
// submitter's files and enqueues it. It returns the new run id.
func (c *Client) SubmitWorkflow(ctx context.Context, path string, args map[string]interface{}) (string, error) {
	def, err := LoadWorkflow(path)
	if err != nil {
		return "", err
	}
	def, err = c.Prepare(ctx, def, filepath.Dir(path))
	if err != nil {
		return "", err
	}
	return c.Submit(ctx, def, "", args, nil)
}

// Prepare inlines local.file calls and uploads the code bundles named by
// tasks, replacing each code path with the uploaded blob's URI.
func (c *Client) Prepare(ctx context.Context, def *objects.WorkflowDefinition, dir string) (*objects.WorkflowDefinition, error) {
	def, err := workflow.InlineLocalFiles(ctx, def, dir)
	if err != nil {
		return nil, err
	}
	for _, id := range def.JobIDs() {
		for _, task := range def.Jobs[id].Tasks {
			if task.Code == "" || strings.Contains(task.Code, "://") {
				continue
			}
			path := task.Code
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, objects.NewUserError("cannot read code of task '%s': %s", task.ID, err)
			}
			if task.Code, err = blob.UploadCode(ctx, c.Blobs, filepath.Base(path), data); err != nil {
				return nil, errors.Wrapf(err, "upload code of task %s", task.ID)
			}
		}
	}
	return def, nil
}

// Submit validates def and enqueues a submit message. An empty runID gets a
// fresh one.
func (c *Client) Submit(ctx context.Context, def *objects.WorkflowDefinition, runID string, args map[string]interface{}, trigger *objects.TriggerEvent) (string, error) {
	if err := workflow.CheckDefinition(ctx, def, args, trigger); err != nil {
		return "", err
	}
	if runID == "" {
		runID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	msg := &objects.WorkflowSubmitMessage{
		Workflow:     objects.WorkflowRef{ID: def.ID, Definition: def},
		RunID:        runID,
		Args:         args,
		TriggerEvent: trigger,
	}
	if _, err := c.Queues.Send(ctx, queue.WorkflowSubmitQueue, objects.MessageTypeWorkflowSubmit, msg); err != nil {
		return "", errors.Wrap(err, "send submit message")
	}
	log.Infof(ctx, "submitted workflow %s as run %s", def.Name, runID)
	return runID, nil
}

func (c *Client) getRun(ctx context.Context, runID string) (*objects.WorkflowRunRecord, error) {
	run, err := c.Records.WorkflowRuns.Get(ctx, runID, runID)
	if objects.IsNotFoundError(err) {
		return nil, objects.NewUserError("run '%s' not found", runID)
	}
	return run, err
}

// Cancel raises the cancel signal of a run that has not finished.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	run, err := c.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return objects.NewUserError("run '%s' already finished as %s", runID, run.Status)
	}
	_, err = c.Signals.Raise(ctx, runID, objects.SignalCancel, nil)
	return err
}

// Resume wakes a waiting task. jobID and partitionID narrow the signal to one
// partition when the task id occurs in several.
func (c *Client) Resume(ctx context.Context, runID, taskID, jobID, partitionID string) error {
	if _, err := c.getRun(ctx, runID); err != nil {
		return err
	}
	payload := map[string]interface{}{}
	if jobID != "" {
		payload["job_id"] = jobID
	}
	if partitionID != "" {
		payload["partition_id"] = partitionID
	}
	_, err := c.Signals.Raise(ctx, runID, objects.TaskResumeSignal(runID, taskID), payload)
	return err
}

// Status returns the run and its partitions.
func (c *Client) Status(ctx context.Context, runID string) (*RunStatus, error) {
	run, err := c.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	parts, err := c.Records.JobPartitionRuns.Query(ctx, runID, store.Filter{})
	if err != nil {
		return nil, err
	}
	order := map[string]int{}
	for i, job := range run.Jobs {
		order[job.JobID] = i
	}
	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].JobID != parts[j].JobID {
			return order[parts[i].JobID] < order[parts[j].JobID]
		}
		return parts[i].Index < parts[j].Index
	})
	return &RunStatus{Run: run, Partitions: parts}, nil
}

// List returns run summaries, newest first. An empty workflowID lists the
// runs of every workflow.
func (c *Client) List(ctx context.Context, workflowID string, statuses []string, limit int) ([]*objects.WorkflowRunSummary, error) {
	filter := store.Filter{Statuses: statuses}
	var (
		runs []*objects.WorkflowRunSummary
		err  error
	)
	if workflowID != "" {
		runs, err = c.Records.RunSummaries.Query(ctx, workflowID, filter)
	} else {
		runs, err = c.Records.RunSummaries.QueryAcrossPartitions(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// TaskLog returns the log written by a task, or an empty log when the task
// has not written one yet.
func (c *Client) TaskLog(ctx context.Context, task *objects.TaskRunRecord) (string, error) {
	if task.LogURI == "" {
		return "", nil
	}
	data, err := c.Blobs.Get(ctx, blob.PathFromURI(c.Blobs, task.LogURI))
	if objects.IsNotFoundError(err) {
		return "", nil
	}
	return string(data), err
}
