package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pctasks/app/blob"
	"pctasks/app/config"
	"pctasks/app/executor"
	"pctasks/app/expressions"
	"pctasks/app/expressions/builtin"
	"pctasks/app/notify"
	"pctasks/app/objects"
	"pctasks/app/secrets"
	"pctasks/app/signal"
	"pctasks/app/store"
	"pctasks/app/workflow/data_flow"
	"pctasks/app/workflow/states"
	"pctasks/pkg/contextx"
	"pctasks/pkg/log"
	"pctasks/pkg/metrics"
	"pctasks/pkg/retry"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
)

var (
	errCancelled = errors.New("workflow cancelled")
	errPollQuit  = errors.New("driver asked to quit polling")
)

// Runner drives workflow runs. It is safe to run many runs on one Runner;
// every run owns its records and only shares the store, queues and executor.
type Runner struct {
	Records  *store.Containers
	Blobs    blob.Store
	Executor executor.Executor
	Config   config.RunConfig

	// Optional collaborators.
	Secrets  secrets.Provider
	Tokens   secrets.TokenProvider
	Signals  *signal.Bus
	Notifier notify.Notifier
}

func (r *Runner) functions() map[string]expressions.Function {
	return builtin.DriverFunctions(r.Tokens)
}

func (r *Runner) backoff() wait.Backoff {
	return retry.Exponential(r.Config.MaxAttempts, r.Config.BackoffBase, r.Config.BackoffCap)
}

// persist runs a record or blob write with retries. Writes go through even
// when the run is being cancelled.
func (r *Runner) persist(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := retry.Do(context.WithoutCancel(ctx), r.backoff(), retry.AlwaysError, fn)
	return err
}

// definition returns a private copy of the submitted definition, loading it
// from the store when the message only names the workflow.
func (r *Runner) definition(ctx context.Context, msg *objects.WorkflowSubmitMessage) (*objects.WorkflowDefinition, error) {
	def := msg.Workflow.Definition
	if def == nil {
		if msg.Workflow.ID == "" {
			return nil, objects.NewUserError("submit message carries no workflow")
		}
		record, err := r.Records.Workflows.Get(ctx, msg.Workflow.ID, msg.Workflow.ID)
		if objects.IsNotFoundError(err) {
			return nil, objects.NewUserError("workflow %s does not exist", msg.Workflow.ID)
		}
		if err != nil {
			return nil, err
		}
		def = record.Definition
	}
	def, err := CopyDefinition(def)
	if err != nil {
		return nil, objects.NewUserError("invalid workflow: %s", err)
	}
	if msg.Workflow.ID != "" {
		def.ID = msg.Workflow.ID
	}
	if def.ID == "" {
		def.ID = def.Name
	}
	return def, nil
}

// Run drives the run of msg until it is terminal, the driver is asked to
// quit polling or ctx is done. Submitting a run id that already finished
// returns the stored record; one that is still running is resumed.
// Invalid submissions fail with a user error before any record is written.
func (r *Runner) Run(ctx context.Context, msg *objects.WorkflowSubmitMessage) (*objects.WorkflowRunRecord, error) {
	if msg.RunID == "" {
		msg.RunID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	def, err := r.definition(ctx, msg)
	if err != nil {
		return nil, err
	}
	ctx = contextx.WithRun(ctx, def.ID, msg.RunID)

	run, err := r.Records.WorkflowRuns.Get(ctx, msg.RunID, msg.RunID)
	switch {
	case err == nil && run.IsTerminal():
		log.Infof(ctx, "run %s is already %s", msg.RunID, run.Status)
		return run, nil
	case objects.IsNotFoundError(err):
		run = nil
	case err != nil:
		return nil, err
	}
	if run != nil {
		if msg.Args == nil {
			msg.Args = run.Args
		}
		if msg.TriggerEvent == nil {
			msg.TriggerEvent = run.Trigger
		}
	}

	resolved, order, err := ResolveDefinition(ctx, def, msg.Args, msg.TriggerEvent, r.functions())
	if err != nil {
		if run == nil || !objects.IsUserError(err) {
			return nil, err
		}
		return r.finish(ctx, run, states.FAILED, []string{err.Error()})
	}

	if run == nil {
		if run, err = r.accept(ctx, msg, def, resolved, order); err != nil {
			return nil, err
		}
	} else {
		log.Infof(ctx, "resuming run %s from status %s", run.RunID, run.Status)
	}

	if run.Status != states.RUNNING {
		now := time.Now()
		run.Status = states.RUNNING
		if run.StartedAt == nil {
			run.StartedAt = &now
		}
		if err := r.saveRun(ctx, run, true); err != nil {
			return nil, err
		}
	}

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	r.watchSignals(runCtx, stop, run.RunID)

	d := &driver{
		Runner:  r,
		run:     run,
		def:     resolved,
		scope:   data_flow.GetRunScope(msg.Args, msg.TriggerEvent),
		outputs: map[string]interface{}{},
	}
	if err := d.drive(runCtx, order); err != nil {
		return run, err
	}

	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		switch {
		case errors.Is(cause, errCancelled):
			for _, job := range run.Jobs {
				if !states.IsCompleted(job.Status) {
					job.Status = states.CANCELLED
				}
			}
			return r.finish(ctx, run, states.CANCELLED, []string{"workflow cancelled"})
		case errors.Is(cause, errPollQuit):
			log.Infof(ctx, "driver of run %s quit polling", run.RunID)
			return run, r.saveRun(ctx, run, false)
		default:
			return run, cause
		}
	}

	status := states.SUCCEEDED
	var errs []string
	for _, job := range run.Jobs {
		if job.Status != states.FAILED {
			continue
		}
		status = states.FAILED
		for _, e := range job.Errors {
			errs = append(errs, fmt.Sprintf("job %s: %s", job.JobID, e))
		}
		if len(job.Errors) == 0 {
			errs = append(errs, fmt.Sprintf("job %s failed", job.JobID))
		}
	}
	return r.finish(ctx, run, status, errs)
}

// accept stores the documents and the initial records of a new run.
func (r *Runner) accept(ctx context.Context, msg *objects.WorkflowSubmitMessage, def, resolved *objects.WorkflowDefinition, order []string) (*objects.WorkflowRunRecord, error) {
	document, err := def.Serialize()
	if err != nil {
		return nil, err
	}
	documentPath := objects.WorkflowDocumentPath(msg.RunID)
	if err := r.persist(ctx, func(ctx context.Context) error { return r.Blobs.Put(ctx, documentPath, document) }); err != nil {
		return nil, err
	}
	if err := r.persist(ctx, func(ctx context.Context) error {
		return r.Records.Workflows.Put(ctx, &objects.WorkflowRecord{WorkflowID: def.ID, Definition: def})
	}); err != nil {
		return nil, err
	}

	run := &objects.WorkflowRunRecord{
		WorkflowID:  def.ID,
		RunID:       msg.RunID,
		Status:      states.RECEIVED,
		Args:        msg.Args,
		Trigger:     msg.TriggerEvent,
		DocumentURI: r.Blobs.URI(documentPath),
	}
	for _, id := range order {
		run.Jobs = append(run.Jobs, &objects.JobRunSummary{JobID: id, Status: states.PENDING})
	}
	if err := r.saveRun(ctx, run, true); err != nil {
		return nil, err
	}
	log.Infof(ctx, "accepted run %s of workflow %s", run.RunID, def.ID)

	resolvedDoc, err := resolved.Serialize()
	if err != nil {
		return nil, err
	}
	resolvedPath := objects.ResolvedWorkflowDocumentPath(msg.RunID)
	if err := r.persist(ctx, func(ctx context.Context) error { return r.Blobs.Put(ctx, resolvedPath, resolvedDoc) }); err != nil {
		return nil, err
	}
	run.ResolvedDocumentURI = r.Blobs.URI(resolvedPath)
	return run, nil
}

func (r *Runner) saveRun(ctx context.Context, run *objects.WorkflowRunRecord, summary bool) error {
	if err := r.persist(ctx, func(ctx context.Context) error { return r.Records.WorkflowRuns.Put(ctx, run) }); err != nil {
		return err
	}
	if !summary {
		return nil
	}
	return r.persist(ctx, func(ctx context.Context) error {
		return r.Records.RunSummaries.Put(ctx, &objects.WorkflowRunSummary{
			WorkflowID: run.WorkflowID,
			RunID:      run.RunID,
			Status:     run.Status,
		})
	})
}

func (r *Runner) finish(ctx context.Context, run *objects.WorkflowRunRecord, status string, errs []string) (*objects.WorkflowRunRecord, error) {
	now := time.Now()
	run.Status = status
	run.Errors = errs
	run.EndedAt = &now
	if err := r.saveRun(ctx, run, true); err != nil {
		return run, err
	}
	metrics.WorkflowRuns.WithLabelValues(status).Inc()
	log.Infof(ctx, "run %s finished with status %s", run.RunID, status)
	executor.Forget(r.Executor, run.RunID)

	if r.Notifier != nil {
		err := r.Notifier.Notify(context.WithoutCancel(ctx), &objects.NotificationMessage{
			WorkflowID: run.WorkflowID,
			RunID:      run.RunID,
			Status:     status,
			Errors:     errs,
			Time:       now,
		})
		if err != nil {
			log.Warnf(ctx, "notify run %s failed: %s", run.RunID, err)
		}
	}
	return run, nil
}

// watchSignals stops ctx when the run is cancelled, at any time, or when
// the driver is asked to quit polling after it started.
func (r *Runner) watchSignals(ctx context.Context, stop context.CancelCauseFunc, runID string) {
	if r.Signals == nil {
		return
	}
	started := time.Now()
	go func() {
		if _, err := r.Signals.Wait(ctx, runID, objects.SignalCancel, time.Time{}, 0, nil); err == nil {
			log.Infof(ctx, "run %s was cancelled", runID)
			stop(errCancelled)
		}
	}()
	go func() {
		if _, err := r.Signals.Wait(ctx, runID, objects.SignalPollQuit, started, 0, nil); err == nil {
			stop(errPollQuit)
		}
	}()
}

func isCancelled(ctx context.Context) bool {
	return ctx.Err() != nil && errors.Is(context.Cause(ctx), errCancelled)
}

// driver holds the state of one run while it is driven.
type driver struct {
	*Runner
	run   *objects.WorkflowRunRecord
	def   *objects.WorkflowDefinition
	scope data_flow.DataContext
	// outputs is the jobs namespace: finished jobs' aggregated outputs.
	outputs map[string]interface{}
}

func (d *driver) drive(ctx context.Context, order []string) error {
	for i, jobID := range order {
		job := d.def.Jobs[jobID]
		summary := d.run.GetJob(jobID)
		if summary == nil {
			summary = &objects.JobRunSummary{JobID: jobID, Status: states.PENDING}
			d.run.Jobs = append(d.run.Jobs, summary)
		}

		if states.IsCompleted(summary.Status) {
			if err := d.loadOutputs(ctx, job); err != nil {
				return err
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		if reason := d.blockedBy(job); reason != "" {
			log.Infof(ctx, "skipping job %s: %s", jobID, reason)
			summary.Status = states.SKIPPED
			summary.Errors = []string{reason}
			if err := d.saveRun(ctx, d.run, false); err != nil {
				return err
			}
			continue
		}

		if err := d.runJob(ctx, job, summary); err != nil {
			return err
		}

		if summary.Status == states.FAILED && !d.hasSoftDependents(jobID, order[i+1:]) {
			for _, rest := range order[i+1:] {
				if s := d.run.GetJob(rest); s != nil && !states.IsCompleted(s.Status) {
					s.Status = states.SKIPPED
					s.Errors = []string{fmt.Sprintf("workflow stopped after job %s failed", jobID)}
				}
			}
			return d.saveRun(ctx, d.run, false)
		}
	}
	return nil
}

// blockedBy explains why job cannot start, or returns "".
func (d *driver) blockedBy(job *objects.JobDefinition) string {
	for _, dep := range job.Needs {
		s := d.run.GetJob(dep.Job)
		if s == nil {
			return fmt.Sprintf("job %s has no run record", dep.Job)
		}
		if dep.Required && s.Status != states.SUCCEEDED {
			return fmt.Sprintf("required job %s is %s", dep.Job, s.Status)
		}
		if !states.IsCompleted(s.Status) {
			return fmt.Sprintf("job %s did not finish", dep.Job)
		}
	}
	return ""
}

// hasSoftDependents reports whether one of the remaining jobs declares
// jobID as a dependency that is not required.
func (d *driver) hasSoftDependents(jobID string, remaining []string) bool {
	for _, id := range remaining {
		for _, dep := range d.def.Jobs[id].Needs {
			if dep.Job == jobID && !dep.Required {
				return true
			}
		}
	}
	return false
}

func (d *driver) partitionRecords(ctx context.Context, jobID string) ([]*objects.JobPartitionRunRecord, error) {
	records, err := d.Records.JobPartitionRuns.Query(context.WithoutCancel(ctx), d.run.RunID, store.Filter{})
	if err != nil {
		return nil, err
	}
	var out []*objects.JobPartitionRunRecord
	for _, rec := range records {
		if rec.JobID == jobID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (d *driver) loadOutputs(ctx context.Context, job *objects.JobDefinition) error {
	records, err := d.partitionRecords(ctx, job.ID)
	if err != nil {
		return err
	}
	d.outputs[job.ID] = data_flow.AggregateJobOutputs(job, records)
	return nil
}

func (d *driver) runJob(ctx context.Context, job *objects.JobDefinition, summary *objects.JobRunSummary) error {
	ctx = contextx.WithFields(ctx, contextx.JobID, job.ID)
	now := time.Now()
	summary.Status = states.RUNNING
	summary.Errors = nil
	if summary.StartedAt == nil {
		summary.StartedAt = &now
	}

	resolver := &expressions.Resolver{Scope: data_flow.NewDataContext(d.scope, map[string]interface{}{data_flow.JobsKey: d.outputs})}
	partitions, err := ExpandPartitions(ctx, d.run.RunID, job, resolver)
	if err != nil {
		log.Warnf(ctx, "expand partitions of job %s failed: %s", job.ID, err)
		return d.finishJob(ctx, job, summary, states.FAILED, nil, []string{err.Error()})
	}
	summary.PartitionCount = len(partitions)
	if err := d.saveRun(ctx, d.run, false); err != nil {
		return err
	}
	log.Infof(ctx, "running job %s with %d partitions", job.ID, len(partitions))

	limit := d.Config.MaxConcurrentPartitions
	if limit <= 0 {
		limit = 100
	}
	records := make([]*objects.JobPartitionRunRecord, len(partitions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range partitions {
		i, p := i, p
		g.Go(func() error {
			metrics.PartitionsInFlight.Inc()
			defer metrics.PartitionsInFlight.Dec()
			rec, err := d.runPartition(gctx, job, p)
			records[i] = rec
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil && !isCancelled(ctx) {
		return nil
	}

	status := states.SUCCEEDED
	var errs []string
	for _, rec := range records {
		switch {
		case rec == nil || rec.Status == states.CANCELLED:
			if status != states.FAILED {
				status = states.CANCELLED
			}
		case rec.Status == states.FAILED:
			status = states.FAILED
			for _, e := range rec.Errors {
				if job.HasForeach() {
					e = fmt.Sprintf("partition %d: %s", rec.Index, e)
				}
				errs = append(errs, e)
			}
		case rec.Status != states.SUCCEEDED:
			// left running by a cancel that raced the last task
			if status == states.SUCCEEDED {
				status = states.CANCELLED
			}
		}
	}
	return d.finishJob(ctx, job, summary, status, records, errs)
}

func (d *driver) finishJob(ctx context.Context, job *objects.JobDefinition, summary *objects.JobRunSummary, status string, records []*objects.JobPartitionRunRecord, errs []string) error {
	now := time.Now()
	summary.Status = status
	summary.Errors = errs
	summary.EndedAt = &now

	var done []*objects.JobPartitionRunRecord
	for _, rec := range records {
		if rec != nil {
			done = append(done, rec)
		}
	}
	d.outputs[job.ID] = data_flow.AggregateJobOutputs(job, done)
	log.Infof(ctx, "job %s finished with status %s", job.ID, status)
	return d.saveRun(ctx, d.run, false)
}

// LoadRunDefinition reads back the document a run was submitted with.
func LoadRunDefinition(ctx context.Context, blobs blob.Store, runID string) (*objects.WorkflowDefinition, error) {
	data, err := blobs.Get(ctx, objects.WorkflowDocumentPath(runID))
	if err != nil {
		return nil, err
	}
	return objects.ParseWorkflowDefinition(data)
}
