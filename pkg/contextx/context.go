package contextx

import "context"

const (
	RunID       = "run_id"
	WorkflowID  = "workflow_id"
	JobID       = "job_id"
	PartitionID = "partition_id"
	TaskID      = "task_id"
	RequestID   = "request_id"
)

type fieldsKey struct{}

// Fields is the set of log fields carried by a context. It is copied on
// every WithFields call, never mutated in place.
type Fields map[string]interface{}

func (f Fields) String(name string) string {
	if v, ok := f[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (f Fields) Clone() Fields {
	newFields := Fields{}
	for k, v := range f {
		newFields[k] = v
	}
	return newFields
}

// WithFields returns a child of ctx carrying the parent's fields merged with
// the given key/value pairs.
func WithFields(ctx context.Context, kv ...interface{}) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	fields := FieldsFrom(ctx).Clone()
	for i := 0; i+1 < len(kv); i += 2 {
		if name, ok := kv[i].(string); ok {
			fields[name] = kv[i+1]
		}
	}
	return context.WithValue(ctx, fieldsKey{}, fields)
}

func WithRun(ctx context.Context, workflowID, runID string) context.Context {
	return WithFields(ctx, WorkflowID, workflowID, RunID, runID)
}

func WithPartition(ctx context.Context, jobID, partitionID string) context.Context {
	return WithFields(ctx, JobID, jobID, PartitionID, partitionID)
}

func WithTask(ctx context.Context, taskID string) context.Context {
	return WithFields(ctx, TaskID, taskID)
}

func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	if f, ok := ctx.Value(fieldsKey{}).(Fields); ok {
		return f
	}
	return Fields{}
}
