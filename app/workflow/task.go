package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pctasks/app/blob"
	"pctasks/app/executor"
	"pctasks/app/expressions"
	"pctasks/app/objects"
	"pctasks/app/signal"
	"pctasks/app/workflow/data_flow"
	"pctasks/app/workflow/states"
	"pctasks/pkg/contextx"
	"pctasks/pkg/log"
	"pctasks/pkg/metrics"
	"pctasks/pkg/retry"
)

// partitionRun drives the tasks of one partition in order.
type partitionRun struct {
	*driver
	job       *objects.JobDefinition
	partition Partition
	rec       *objects.JobPartitionRunRecord
	// tasks is the tasks namespace: outputs of completed tasks.
	tasks map[string]interface{}
}

// runPartition returns the partition record, or nil when the partition was
// never started. Errors are infrastructure failures only.
func (d *driver) runPartition(ctx context.Context, job *objects.JobDefinition, p Partition) (*objects.JobPartitionRunRecord, error) {
	ctx = contextx.WithPartition(ctx, job.ID, p.ID)
	rec, err := d.Records.JobPartitionRuns.Get(context.WithoutCancel(ctx), d.run.RunID, objects.JobPartitionRunID(job.ID, p.ID))
	switch {
	case err == nil:
		if states.IsCompleted(rec.Status) {
			return rec, nil
		}
	case objects.IsNotFoundError(err):
		if ctx.Err() != nil {
			return nil, nil
		}
		rec = &objects.JobPartitionRunRecord{
			RunID:       d.run.RunID,
			JobID:       job.ID,
			PartitionID: p.ID,
			Index:       p.Index,
			Status:      states.PENDING,
		}
		if p.HasItem {
			rec.Item = p.Item
		}
		for _, task := range job.Tasks {
			rec.Tasks = append(rec.Tasks, objects.NewTaskRunRecord(task.ID))
		}
	default:
		return nil, err
	}

	pr := &partitionRun{driver: d, job: job, partition: p, rec: rec, tasks: data_flow.TaskOutputs(rec)}
	if rec.Status == states.PENDING {
		rec.Status = states.RUNNING
		if err := pr.save(ctx); err != nil {
			return rec, err
		}
	}

	for _, task := range job.Tasks {
		t := rec.GetTask(task.ID)
		if t == nil {
			t = objects.NewTaskRunRecord(task.ID)
			rec.Tasks = append(rec.Tasks, t)
		}
		if t.Status == states.COMPLETED {
			continue
		}
		if err := pr.runTask(ctx, task, t); err != nil {
			return rec, err
		}
		switch t.Status {
		case states.COMPLETED:
			pr.tasks[task.ID] = data_flow.TaskOutput(t.Output)
		case states.FAILED:
			errs := make([]string, 0, len(t.Errors))
			for _, e := range t.Errors {
				errs = append(errs, fmt.Sprintf("task %s: %s", task.ID, e))
			}
			return rec, pr.finish(ctx, states.FAILED, errs)
		case states.CANCELLED:
			return rec, pr.finish(ctx, states.CANCELLED, nil)
		default:
			// the driver stopped; the partition is picked up on resume
			return rec, nil
		}
	}
	return rec, pr.finish(ctx, states.SUCCEEDED, nil)
}

func (pr *partitionRun) finish(ctx context.Context, status string, errs []string) error {
	pr.rec.Status = status
	pr.rec.Errors = errs
	log.Infof(ctx, "partition %d of job %s is %s", pr.rec.Index, pr.job.ID, status)
	return pr.save(ctx)
}

func (pr *partitionRun) save(ctx context.Context) error {
	return pr.persist(ctx, func(ctx context.Context) error { return pr.Records.JobPartitionRuns.Put(ctx, pr.rec) })
}

// setTask moves t to status and saves the partition.
func (pr *partitionRun) setTask(ctx context.Context, t *objects.TaskRunRecord, status string) error {
	previous := t.Status
	if err := t.SetStatus(status, time.Now()); err != nil {
		return err
	}
	if previous != status {
		metrics.TaskTransitions.WithLabelValues(status).Inc()
		log.Debugf(ctx, "task %s: %s -> %s", t.TaskID, previous, status)
	}
	return pr.save(ctx)
}

func (pr *partitionRun) fail(ctx context.Context, t *objects.TaskRunRecord, errs ...string) error {
	if len(errs) == 0 {
		errs = []string{"task failed"}
	}
	t.Errors = errs
	log.Warnf(ctx, "task %s failed: %s", t.TaskID, strings.Join(errs, "; "))
	return pr.setTask(ctx, t, states.FAILED)
}

func errorMessage(err error) string {
	var permanent *objects.ExecutorPermanentError
	if errors.As(err, &permanent) && permanent.Err == nil {
		return permanent.Reason
	}
	return err.Error()
}

// runTask drives t until it is terminal or ctx is done. Task failures are
// recorded on t; the returned error is an infrastructure failure.
func (pr *partitionRun) runTask(ctx context.Context, def *objects.TaskDefinition, t *objects.TaskRunRecord) error {
	ctx = contextx.WithTask(ctx, def.ID)
	var prepared *executor.PreparedTask
	for !states.IsTaskCompleted(t.Status) {
		if ctx.Err() != nil {
			return pr.interrupt(ctx, t)
		}

		if prepared == nil && t.Status != states.WAITING {
			var err error
			if prepared, err = pr.prepare(ctx, def, t); err != nil {
				if isTaskError(err) {
					return pr.fail(ctx, t, err.Error())
				}
				return err
			}
		}

		switch t.Status {
		case states.PENDING, states.SUBMITTING:
			if err := pr.setTask(ctx, t, states.SUBMITTING); err != nil {
				return err
			}
			if err := pr.submit(ctx, t, prepared); err != nil {
				if ctx.Err() != nil {
					continue
				}
				return pr.fail(ctx, t, errorMessage(err))
			}
		case states.SUBMITTED, states.RUNNING:
			if t.ExecutorID == "" {
				if err := pr.submit(ctx, t, prepared); err != nil {
					if ctx.Err() != nil {
						continue
					}
					return pr.fail(ctx, t, errorMessage(err))
				}
			}
			result, err := pr.await(ctx, t, prepared)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return pr.fail(ctx, t, errorMessage(err))
			}
			if err := pr.apply(ctx, t, result); err != nil {
				return err
			}
		case states.WAITING:
			resumed, err := pr.wait(ctx, def, t)
			if err != nil || !resumed {
				if ctx.Err() != nil {
					continue
				}
				return err
			}
			prepared = nil
		}
	}
	return nil
}

func isTaskError(err error) bool {
	var prep *objects.TaskPreparationError
	return objects.IsUserError(err) || errors.As(err, &prep)
}

// prepare resolves the templates still left in def against the partition
// scope and writes the task input blob.
func (pr *partitionRun) prepare(ctx context.Context, def *objects.TaskDefinition, t *objects.TaskRunRecord) (*executor.PreparedTask, error) {
	scope := data_flow.GetPartitionScope(pr.scope, pr.outputs, pr.partition.Item, pr.partition.HasItem, pr.tasks)
	resolver := &expressions.Resolver{Scope: scope, Functions: pr.functions()}
	base := fmt.Sprintf("jobs.%s.tasks.%s", pr.job.ID, def.ID)

	var args map[string]interface{}
	if def.Args != nil {
		value, err := resolver.EvaluateRecursively(ctx, def.Args, base+".args")
		if err != nil {
			return nil, err
		}
		args, _ = objects.Normalize(value).(map[string]interface{})
	}
	image, err := resolver.Evaluate(ctx, def.Image, base+".image")
	if err != nil {
		return nil, err
	}
	var tags map[string]string
	if def.Tags != nil {
		value, err := resolver.EvaluateRecursively(ctx, def.Tags, base+".tags")
		if err != nil {
			return nil, err
		}
		tags, _ = value.(map[string]string)
	}
	env, err := pr.environment(ctx, def, scope, base)
	if err != nil {
		return nil, err
	}

	run, job, part := pr.run.RunID, pr.job.ID, pr.partition.ID
	msg := &objects.TaskRunMessage{
		WorkflowID:    pr.run.WorkflowID,
		RunID:         run,
		JobID:         job,
		PartitionID:   part,
		TaskID:        def.ID,
		Image:         expressions.Stringify(image),
		Task:          def.Task,
		Args:          args,
		SchemaVersion: def.SchemaVersion,
		InputPath:     objects.TaskInputPath(run, job, part, def.ID),
		OutputPath:    objects.TaskOutputPath(run, job, part, def.ID),
		LogPath:       objects.TaskLogPath(run, job, part, def.ID),
		StatusPrefix:  objects.TaskStatusPrefix(run, job, part, def.ID),
		CodeURI:       def.Code,
		Tags:          tags,
		Attempt:       t.WaitCount,
	}
	input, err := json.Marshal(msg)
	if err != nil {
		return nil, &objects.TaskPreparationError{TaskID: def.ID, Err: err}
	}
	if err := pr.persist(ctx, func(ctx context.Context) error { return pr.Blobs.Put(ctx, msg.InputPath, input) }); err != nil {
		return nil, err
	}

	prepared := &executor.PreparedTask{
		Message:     msg,
		Image:       msg.Image,
		Environment: env,
		InputURI:    pr.Blobs.URI(msg.InputPath),
		OutputURI:   pr.Blobs.URI(msg.OutputPath),
		LogURI:      pr.Blobs.URI(msg.LogPath),
	}
	t.InputURI, t.OutputURI, t.LogURI = prepared.InputURI, prepared.OutputURI, prepared.LogURI
	return prepared, nil
}

// environment resolves the task environment, fetching the secrets it names.
func (pr *partitionRun) environment(ctx context.Context, def *objects.TaskDefinition, scope data_flow.DataContext, base string) (map[string]string, error) {
	if len(def.Environment) == 0 {
		return nil, nil
	}
	refs, err := expressions.References(map[string]string(def.Environment))
	if err != nil {
		return nil, &objects.TaskPreparationError{TaskID: def.ID, Err: err}
	}
	values := map[string]interface{}{}
	for _, ref := range refs {
		if ref.Root() != data_flow.SecretsKey || len(ref.Path) < 2 {
			continue
		}
		name := ref.Path[1]
		if _, ok := values[name]; ok {
			continue
		}
		if pr.Secrets == nil {
			return nil, &objects.TaskPreparationError{TaskID: def.ID, Err: fmt.Errorf("no secret provider for secret %s", name)}
		}
		value, err := pr.Secrets.Get(ctx, name)
		if err != nil {
			return nil, &objects.TaskPreparationError{TaskID: def.ID, Err: err}
		}
		values[name] = value
	}

	scope = data_flow.NewDataContext(scope, map[string]interface{}{data_flow.SecretsKey: values})
	resolver := &expressions.Resolver{Scope: scope, Functions: pr.functions()}
	resolved, err := resolver.EvaluateRecursively(ctx, map[string]string(def.Environment), base+".environment")
	if err != nil {
		return nil, err
	}
	env, _ := resolved.(map[string]string)
	return env, nil
}

func (pr *partitionRun) submit(ctx context.Context, t *objects.TaskRunRecord, prepared *executor.PreparedTask) error {
	var result *executor.SubmitResult
	_, err := retry.Do(ctx, pr.backoff(), objects.IsTransient, func(ctx context.Context) error {
		var err error
		result, err = pr.Executor.Submit(ctx, prepared)
		return err
	})
	if err != nil {
		return err
	}
	t.ExecutorID = result.ExecutorID
	log.Infof(ctx, "submitted task %s as %s", t.TaskID, t.ExecutorID)
	if t.Status == states.SUBMITTING {
		return pr.setTask(ctx, t, states.SUBMITTED)
	}
	return pr.save(ctx)
}

// await polls the executor until the task leaves it and returns its result.
func (pr *partitionRun) await(ctx context.Context, t *objects.TaskRunRecord, prepared *executor.PreparedTask) (*objects.TaskResult, error) {
	for {
		var poll *executor.PollResult
		_, err := retry.Do(ctx, pr.backoff(), objects.IsTransient, func(ctx context.Context) error {
			var err error
			poll, err = pr.Executor.Poll(ctx, t.ExecutorID, t.PollCount)
			return err
		})
		if err != nil {
			return nil, err
		}
		t.PollCount++

		if poll.State == executor.PollMissing {
			t.MissingPolls++
			log.Warnf(ctx, "executor lost sight of task %s (%d/%d)", t.TaskID, t.MissingPolls, pr.Config.MaxMissingPolls)
			if t.MissingPolls >= pr.Config.MaxMissingPolls {
				return nil, objects.Permanent("poll", "executor lost task", nil)
			}
		} else {
			t.MissingPolls = 0
			if t.Status == states.SUBMITTED {
				if err := pr.setTask(ctx, t, states.RUNNING); err != nil {
					return nil, err
				}
			}
		}

		switch poll.State {
		case executor.PollFailed:
			result, err := pr.Executor.FetchResult(ctx, prepared, t.ExecutorID)
			if err == nil && result.Status == objects.TaskResultFailed {
				return result, nil
			}
			reason := poll.Reason
			if reason == "" {
				reason = "task failed in executor"
			}
			return nil, objects.Permanent("poll", reason, nil)
		case executor.PollCompleted:
			var result *objects.TaskResult
			_, err := retry.Do(ctx, pr.backoff(), objects.IsTransient, func(ctx context.Context) error {
				var err error
				result, err = pr.Executor.FetchResult(ctx, prepared, t.ExecutorID)
				return err
			})
			return result, err
		}

		if err := pr.save(ctx); err != nil {
			return nil, err
		}
		if err := retry.Sleep(ctx, retry.Jitter(pr.Config.PollInterval, pr.Config.PollJitter)); err != nil {
			return nil, err
		}
	}
}

// apply records the result a task left behind.
func (pr *partitionRun) apply(ctx context.Context, t *objects.TaskRunRecord, result *objects.TaskResult) error {
	switch result.Status {
	case objects.TaskResultCompleted:
		t.Output = result.Output
		t.Errors = nil
		return pr.setTask(ctx, t, states.COMPLETED)
	case objects.TaskResultWaiting:
		if result.Wait != nil && result.Wait.Message != "" {
			log.Infof(ctx, "task %s is waiting: %s", t.TaskID, result.Wait.Message)
		}
		pr.rec.Status = states.WAITING
		return pr.setTask(ctx, t, states.WAITING)
	default:
		return pr.fail(ctx, t, result.Errors...)
	}
}

// waitTimeout reads the timeout the task asked for from its output blob.
func (pr *partitionRun) waitTimeout(ctx context.Context, t *objects.TaskRunRecord) time.Duration {
	def := pr.Config.WaitTimeout
	if t.OutputURI == "" {
		return def
	}
	var result objects.TaskResult
	data, err := pr.Blobs.Get(context.WithoutCancel(ctx), blob.PathFromURI(pr.Blobs, t.OutputURI))
	if err != nil || json.Unmarshal(data, &result) != nil || result.Wait == nil {
		return def
	}
	return result.Wait.Timeout(def)
}

// waitingSince is when t last entered the waiting state.
func waitingSince(t *objects.TaskRunRecord) time.Time {
	for i := len(t.History) - 1; i >= 0; i-- {
		if t.History[i].Status == states.WAITING {
			return t.History[i].At
		}
	}
	return time.Time{}
}

// wait blocks until the task is resumed by a signal or its wait times out,
// then re-drives it as a new attempt. It reports false when ctx ended the
// wait or the task ran out of wait retries.
func (pr *partitionRun) wait(ctx context.Context, def *objects.TaskDefinition, t *objects.TaskRunRecord) (bool, error) {
	deadline := time.Now().Add(pr.waitTimeout(ctx, t))
	name := objects.TaskResumeSignal(pr.run.RunID, t.TaskID)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			break
		}
		if beat := pr.Config.WaitHeartbeat; beat > 0 && left > beat {
			left = beat
		}
		if pr.Signals != nil {
			_, err := pr.Signals.Wait(ctx, pr.run.RunID, name, waitingSince(t), left, pr.matchSignal)
			if err == nil {
				break
			}
			if !errors.Is(err, signal.ErrTimeout) {
				return false, nil
			}
		} else if err := retry.Sleep(ctx, left); err != nil {
			return false, nil
		}
		if time.Now().Before(deadline) {
			// still waiting: keep the partition fresh for the recovery sweep
			if err := pr.save(ctx); err != nil {
				return false, err
			}
		}
	}

	t.WaitCount++
	if t.WaitCount > pr.Config.MaxWaitRetries {
		return false, pr.fail(ctx, t, "task exceeded wait retries")
	}
	log.Infof(ctx, "re-driving waiting task %s (attempt %d)", t.TaskID, t.WaitCount)
	t.ExecutorID = ""
	t.PollCount = 0
	t.MissingPolls = 0
	pr.rec.Status = states.RUNNING
	return true, pr.setTask(ctx, t, states.RUNNING)
}

// matchSignal accepts resume signals without a payload, or whose payload
// names this partition.
func (pr *partitionRun) matchSignal(record *objects.SignalRecord) bool {
	if job, ok := record.Payload["job_id"].(string); ok && job != pr.job.ID {
		return false
	}
	if part, ok := record.Payload["partition_id"].(string); ok && part != pr.partition.ID {
		return false
	}
	return true
}

// interrupt handles a stopped driver. A cancelled run cancels the task in
// the executor; otherwise the records stay as they are for a later resume.
func (pr *partitionRun) interrupt(ctx context.Context, t *objects.TaskRunRecord) error {
	if !isCancelled(ctx) {
		return nil
	}
	if t.ExecutorID != "" {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pr.Config.CancelTimeout)
		defer cancel()
		if err := pr.Executor.Cancel(cctx, t.ExecutorID); err != nil {
			log.Warnf(ctx, "cancel task %s in executor failed: %s", t.TaskID, err)
		}
	}
	t.Errors = []string{"workflow cancelled"}
	return pr.setTask(ctx, t, states.CANCELLED)
}
