package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"pctasks/app/expressions"
	"pctasks/app/expressions/builtin"
	"pctasks/app/objects"
	"pctasks/app/workflow/data_flow"
	"pctasks/plugins/plugin"
)

type field int

const (
	fieldForeach field = iota
	fieldTask
	fieldEnvironment
)

// CopyDefinition deep copies def.
func CopyDefinition(def *objects.WorkflowDefinition) (*objects.WorkflowDefinition, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	out := &objects.WorkflowDefinition{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	for _, job := range out.Jobs {
		if job.Foreach != nil {
			job.Foreach.Items = objects.Normalize(job.Foreach.Items)
		}
		for _, task := range job.Tasks {
			task.Args = objects.NormalizeMap(task.Args)
		}
	}
	return out, nil
}

// ValidateArgs checks args against the arguments the workflow declares.
func ValidateArgs(def *objects.WorkflowDefinition, args map[string]interface{}) error {
	declared := map[string]bool{}
	for _, name := range def.Args {
		declared[name] = true
		if _, ok := args[name]; !ok {
			return objects.NewUserError("missing argument '%s'", name)
		}
	}
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !declared[name] {
			return objects.NewUserError("unknown argument '%s'", name)
		}
	}
	return nil
}

// ResolveDefinition validates a submitted definition and resolves its
// submit time templates (args, trigger and the given functions). Runtime
// references are checked for scope and kept. It returns the resolved copy
// and the job execution order; def is not modified.
func ResolveDefinition(ctx context.Context, def *objects.WorkflowDefinition, args map[string]interface{}, trigger *objects.TriggerEvent, functions map[string]expressions.Function) (*objects.WorkflowDefinition, []string, error) {
	if err := def.Validate(); err != nil {
		return nil, nil, err
	}
	if err := ValidateArgs(def, args); err != nil {
		return nil, nil, err
	}
	order, err := TopologicalSort(def)
	if err != nil {
		return nil, nil, &objects.UserError{Message: err.Error(), Err: err}
	}
	for _, id := range order {
		for _, task := range def.Jobs[id].Tasks {
			if !plugin.Has(task.Task) {
				return nil, nil, objects.NewUserError("job %s: task %s: unknown task '%s'", id, task.ID, task.Task)
			}
		}
	}

	resolved, err := CopyDefinition(def)
	if err != nil {
		return nil, nil, err
	}
	scope := data_flow.GetRunScope(args, trigger)
	for _, id := range order {
		if err := resolveJob(ctx, resolved, resolved.Jobs[id], scope, functions); err != nil {
			return nil, nil, err
		}
	}
	return resolved, order, nil
}

// CheckDefinition runs every submit time check of ResolveDefinition for a
// client that holds no credentials: token calls are checked for their
// arguments but not made.
func CheckDefinition(ctx context.Context, def *objects.WorkflowDefinition, args map[string]interface{}, trigger *objects.TriggerEvent) error {
	functions := map[string]expressions.Function{
		builtin.GetToken: func(ctx context.Context, args []interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("expected account and container arguments, got %d", len(args))
			}
			return "", nil
		},
	}
	_, _, err := ResolveDefinition(ctx, def, args, trigger, functions)
	return err
}

func resolveJob(ctx context.Context, def *objects.WorkflowDefinition, job *objects.JobDefinition, scope data_flow.DataContext, functions map[string]expressions.Function) error {
	ancestors := Ancestors(def, job.ID)
	resolver := func(f field, taskIndex int) *expressions.Resolver {
		return &expressions.Resolver{
			Scope:     scope,
			Functions: functions,
			Defer: func(expr *expressions.Expr) (bool, error) {
				return checkReference(def, job, ancestors, f, taskIndex, expr)
			},
		}
	}

	if job.HasForeach() {
		items, err := resolver(fieldForeach, -1).EvaluateRecursively(ctx, job.Foreach.Items, fmt.Sprintf("jobs.%s.foreach.items", job.ID))
		if err != nil {
			return err
		}
		job.Foreach.Items = items
	}

	for i, task := range job.Tasks {
		base := fmt.Sprintf("jobs.%s.tasks.%s", job.ID, task.ID)
		r := resolver(fieldTask, i)
		args, err := r.EvaluateRecursively(ctx, task.Args, base+".args")
		if err != nil {
			return err
		}
		if args != nil {
			task.Args = args.(map[string]interface{})
		}
		image, err := r.Evaluate(ctx, task.Image, base+".image")
		if err != nil {
			return err
		}
		task.Image = expressions.Stringify(image)
		if task.Tags != nil {
			tags, err := r.EvaluateRecursively(ctx, task.Tags, base+".tags")
			if err != nil {
				return err
			}
			task.Tags = tags.(map[string]string)
		}
		if task.Environment != nil {
			env, err := resolver(fieldEnvironment, i).EvaluateRecursively(ctx, map[string]string(task.Environment), base+".environment")
			if err != nil {
				return err
			}
			task.Environment = env.(map[string]string)
		}
	}
	return nil
}

// checkReference decides, for one placeholder met at submit time, whether
// it resolves now (false), is kept for the driver (true) or is invalid.
func checkReference(def *objects.WorkflowDefinition, job *objects.JobDefinition, ancestors map[string]bool, f field, taskIndex int, expr *expressions.Expr) (bool, error) {
	if expr.IsCall() {
		return false, nil
	}
	switch expr.Root() {
	case data_flow.ArgsKey, data_flow.TriggerKey:
		return false, nil
	case data_flow.JobsKey:
		if len(expr.Path) < 2 {
			return false, fmt.Errorf("reference '%s' must name a job", expr.Source)
		}
		if _, ok := def.Jobs[expr.Path[1]]; !ok {
			return false, fmt.Errorf("unknown job '%s'", expr.Path[1])
		}
		if !ancestors[expr.Path[1]] {
			return false, fmt.Errorf("job %s does not depend on job %s", job.ID, expr.Path[1])
		}
		return true, nil
	case data_flow.TasksKey:
		if f == fieldForeach {
			return false, fmt.Errorf("task outputs are not available in foreach items")
		}
		if len(expr.Path) < 2 {
			return false, fmt.Errorf("reference '%s' must name a task", expr.Source)
		}
		idx := job.TaskIndex(expr.Path[1])
		if idx < 0 {
			return false, fmt.Errorf("unknown task '%s' in job %s", expr.Path[1], job.ID)
		}
		if idx >= taskIndex {
			return false, fmt.Errorf("task '%s' does not run before this task", expr.Path[1])
		}
		return true, nil
	case data_flow.ItemKey:
		if f == fieldForeach || !job.HasForeach() {
			return false, fmt.Errorf("item is only available in tasks of a foreach job")
		}
		return true, nil
	case data_flow.SecretsKey:
		if f != fieldEnvironment {
			return false, fmt.Errorf("secrets are only available in task environment")
		}
		if len(expr.Path) != 2 {
			return false, fmt.Errorf("reference '%s' must name one secret", expr.Source)
		}
		return true, nil
	default:
		return false, fmt.Errorf("no resolver for '%s'", expr.Source)
	}
}

// InlineLocalFiles resolves only local.file calls of def, reading paths
// relative to dir. Clients run it before submission since the driver has
// no access to the submitter's files.
func InlineLocalFiles(ctx context.Context, def *objects.WorkflowDefinition, dir string) (*objects.WorkflowDefinition, error) {
	resolved, err := CopyDefinition(def)
	if err != nil {
		return nil, err
	}
	resolver := &expressions.Resolver{
		Functions: builtin.SubmitFunctions(dir, nil),
		Defer: func(expr *expressions.Expr) (bool, error) {
			return !(expr.IsCall() && expr.Name() == builtin.LocalFile), nil
		},
	}
	for _, id := range resolved.JobIDs() {
		job := resolved.Jobs[id]
		if job.HasForeach() {
			items, err := resolver.EvaluateRecursively(ctx, job.Foreach.Items, fmt.Sprintf("jobs.%s.foreach.items", id))
			if err != nil {
				return nil, err
			}
			job.Foreach.Items = items
		}
		for _, task := range job.Tasks {
			base := fmt.Sprintf("jobs.%s.tasks.%s", id, task.ID)
			args, err := resolver.EvaluateRecursively(ctx, task.Args, base+".args")
			if err != nil {
				return nil, err
			}
			if args != nil {
				task.Args = args.(map[string]interface{})
			}
			if task.Environment != nil {
				env, err := resolver.EvaluateRecursively(ctx, map[string]string(task.Environment), base+".environment")
				if err != nil {
					return nil, err
				}
				task.Environment = env.(map[string]string)
			}
		}
	}
	return resolved, nil
}
