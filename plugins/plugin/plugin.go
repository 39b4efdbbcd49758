package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"pctasks/app/blob"
	"pctasks/app/objects"
	"pctasks/app/store"
	"pctasks/pkg/log"

	"github.com/sirupsen/logrus"
)

// TaskContext is what a running task knows about itself.
type TaskContext struct {
	WorkflowID  string
	RunID       string
	JobID       string
	PartitionID string
	TaskID      string
	// Attempt counts re-drives after the task asked to wait.
	Attempt     int
	Environment map[string]string
	CodeURI     string

	Blobs   blob.Store
	// Records is nil when the harness runs without record store access.
	Records *store.Containers
	// Logger writes to the task log blob.
	Logger  *logrus.Entry
}

func (tc *TaskContext) Log() *logrus.Entry {
	if tc.Logger == nil {
		return log.GetLogger(nil, "task")
	}
	return tc.Logger
}

func (tc *TaskContext) ErrorSource() objects.TaskErrorSource {
	return objects.TaskErrorSource{
		RunID:       tc.RunID,
		JobID:       tc.JobID,
		PartitionID: tc.PartitionID,
		TaskID:      tc.TaskID,
	}
}

// Task is a registered task body. Results are tagged; a task never fails by
// panicking or by returning an error.
type Task interface {
	Run(ctx context.Context, input map[string]interface{}, tc *TaskContext) objects.TaskResult
}

type TaskFunc func(ctx context.Context, input map[string]interface{}, tc *TaskContext) objects.TaskResult

func (f TaskFunc) Run(ctx context.Context, input map[string]interface{}, tc *TaskContext) objects.TaskResult {
	return f(ctx, input, tc)
}

// Collection creates catalog items from one asset. A non-nil WaitInfo asks
// to be retried later.
type Collection interface {
	CreateItem(ctx context.Context, assetURI string, storage blob.Store) ([]objects.Item, *objects.WaitInfo, error)
}

type registry struct {
	mu          sync.RWMutex
	tasks       map[string]Task
	collections map[string]Collection
}

var endpoints = &registry{
	tasks:       map[string]Task{},
	collections: map[string]Collection{},
}

// Register makes a task available under its module:symbol entry point.
func Register(name string, task Task) error {
	if err := objects.ValidateEntryPoint(name); err != nil {
		return err
	}
	endpoints.mu.Lock()
	defer endpoints.mu.Unlock()
	if _, ok := endpoints.tasks[name]; ok {
		return fmt.Errorf("task %s is already registered", name)
	}
	endpoints.tasks[name] = task
	return nil
}

func MustRegister(name string, task Task) {
	if err := Register(name, task); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Task, bool) {
	endpoints.mu.RLock()
	defer endpoints.mu.RUnlock()
	task, ok := endpoints.tasks[name]
	return task, ok
}

func Has(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Names lists registered tasks in lexical order.
func Names() []string {
	endpoints.mu.RLock()
	defer endpoints.mu.RUnlock()
	names := make([]string, 0, len(endpoints.tasks))
	for name := range endpoints.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func RegisterCollection(name string, c Collection) {
	endpoints.mu.Lock()
	defer endpoints.mu.Unlock()
	endpoints.collections[name] = c
}

func LookupCollection(name string) (Collection, bool) {
	endpoints.mu.RLock()
	defer endpoints.mu.RUnlock()
	c, ok := endpoints.collections[name]
	return c, ok
}

// Call runs task name. Unknown names and panics become failed results.
func Call(ctx context.Context, name string, input map[string]interface{}, tc *TaskContext) (result objects.TaskResult) {
	task, ok := Lookup(name)
	if !ok {
		return objects.FailedResult(fmt.Sprintf("unknown task %s", name))
	}
	defer func() {
		if r := recover(); r != nil {
			result = objects.FailedResult(fmt.Sprintf("task %s panicked: %v", name, r))
		}
	}()
	return task.Run(ctx, input, tc)
}

// Typed adapts a function taking a decoded input struct. Args are decoded
// through JSON, so struct tags name the arguments.
func Typed[In any](fn func(ctx context.Context, input *In, tc *TaskContext) objects.TaskResult) Task {
	return TaskFunc(func(ctx context.Context, raw map[string]interface{}, tc *TaskContext) objects.TaskResult {
		input := new(In)
		if err := Deserialize(raw, input); err != nil {
			return objects.FailedResult(fmt.Sprintf("invalid task input: %s", err))
		}
		return fn(ctx, input, tc)
	})
}

func Deserialize(in interface{}, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
