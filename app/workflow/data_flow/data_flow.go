package data_flow

import (
	"sort"

	"pctasks/app/objects"
	"pctasks/app/workflow/states"
)

// Template scope namespaces.
const (
	ArgsKey    = "args"
	TriggerKey = "trigger"
	JobsKey    = "jobs"
	TasksKey   = "tasks"
	ItemKey    = "item"
	SecretsKey = "secrets"
)

type DataContext map[string]interface{}

func NewDataContext(data ...map[string]interface{}) DataContext {
	ctx := DataContext{}
	for _, d := range data {
		for name, value := range d {
			ctx[name] = value
		}
	}
	return ctx
}

// GetRunScope is the scope shared by every template of a run.
func GetRunScope(args map[string]interface{}, trigger *objects.TriggerEvent) DataContext {
	if args == nil {
		args = map[string]interface{}{}
	}
	return DataContext{
		ArgsKey:    args,
		TriggerKey: trigger.Scope(),
	}
}

// GetPartitionScope layers job outputs, the partition item and the outputs
// of earlier tasks of the partition over the run scope.
func GetPartitionScope(run DataContext, jobs map[string]interface{}, item interface{}, hasItem bool, tasks map[string]interface{}) DataContext {
	scope := NewDataContext(run, map[string]interface{}{
		JobsKey:  jobs,
		TasksKey: tasks,
	})
	if hasItem {
		scope[ItemKey] = item
	}
	return scope
}

// TaskOutput is the scope entry of one completed task.
func TaskOutput(output interface{}) map[string]interface{} {
	return map[string]interface{}{"output": output}
}

// TaskOutputs collects the completed tasks of a partition.
func TaskOutputs(record *objects.JobPartitionRunRecord) map[string]interface{} {
	outputs := map[string]interface{}{}
	for _, t := range record.Tasks {
		if t.Status == states.COMPLETED {
			outputs[t.TaskID] = TaskOutput(t.Output)
		}
	}
	return outputs
}

// AggregateJobOutputs builds the jobs.<id> entry of a finished job. A job
// without foreach exposes its partition's outputs as they are; a foreach job
// exposes, per task, the list of partition outputs in partition index
// order. Tasks that did not complete are left out of a plain job and are nil
// in the lists of a foreach job.
func AggregateJobOutputs(job *objects.JobDefinition, partitions []*objects.JobPartitionRunRecord) map[string]interface{} {
	ordered := append([]*objects.JobPartitionRunRecord{}, partitions...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	tasks := map[string]interface{}{}
	if !job.HasForeach() {
		if len(ordered) > 0 {
			tasks = TaskOutputs(ordered[0])
		}
		return map[string]interface{}{TasksKey: tasks}
	}

	for _, def := range job.Tasks {
		values := make([]interface{}, 0, len(ordered))
		for _, p := range ordered {
			var value interface{}
			if t := p.GetTask(def.ID); t != nil && t.Status == states.COMPLETED {
				value = t.Output
			}
			values = append(values, value)
		}
		tasks[def.ID] = TaskOutput(values)
	}
	return map[string]interface{}{TasksKey: tasks}
}
