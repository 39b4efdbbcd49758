package objects

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// WorkflowDefinition is the parsed workflow document.
type WorkflowDefinition struct {
	ID                string                    `json:"id,omitempty" yaml:"id,omitempty"`
	Name              string                    `json:"name" yaml:"name"`
	Dataset           string                    `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	TargetEnvironment string                    `json:"target_environment,omitempty" yaml:"target_environment,omitempty"`
	SchemaVersion     string                    `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	Args              []string                  `json:"args,omitempty" yaml:"args,omitempty"`
	Jobs              map[string]*JobDefinition `json:"jobs" yaml:"jobs"`
}

type JobDefinition struct {
	ID      string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Tasks   []*TaskDefinition `json:"tasks" yaml:"tasks"`
	Foreach *ForeachConfig    `json:"foreach,omitempty" yaml:"foreach,omitempty"`
	Needs   []Dependency      `json:"needs,omitempty" yaml:"needs,omitempty"`
}

type ForeachConfig struct {
	// Items is either a literal list or a template resolving to one.
	Items interface{} `json:"items" yaml:"items"`
}

type TaskDefinition struct {
	ID            string                 `json:"id" yaml:"id"`
	Image         string                 `json:"image,omitempty" yaml:"image,omitempty"`
	Task          string                 `json:"task" yaml:"task"`
	Args          map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`
	SchemaVersion string                 `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	Environment   EnvironmentVars        `json:"environment,omitempty" yaml:"environment,omitempty"`
	Tags          map[string]string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	// Code is a local file uploaded to the blob store at submit time.
	Code string `json:"code,omitempty" yaml:"code,omitempty"`
}

// EnvironmentVars is a task environment. Documents give it either as a
// mapping or as a list of {name, value} entries, where a later entry of the
// same name wins.
type EnvironmentVars map[string]string

type environmentEntry struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

func (e *EnvironmentVars) fromEntries(entries []environmentEntry) error {
	vars := make(EnvironmentVars, len(entries))
	for i, entry := range entries {
		if entry.Name == "" {
			return fmt.Errorf("environment entry %d has no name", i)
		}
		vars[entry.Name] = entry.Value
	}
	*e = vars
	return nil
}

func (e *EnvironmentVars) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var vars map[string]string
	if err := unmarshal(&vars); err == nil {
		*e = vars
		return nil
	}
	var entries []environmentEntry
	if err := unmarshal(&entries); err != nil {
		return err
	}
	return e.fromEntries(entries)
}

func (e *EnvironmentVars) UnmarshalJSON(data []byte) error {
	var vars map[string]string
	if err := json.Unmarshal(data, &vars); err == nil {
		*e = vars
		return nil
	}
	var entries []environmentEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	return e.fromEntries(entries)
}

// Dependency is one entry of a job's needs list. In documents it is either a
// bare job id (required) or a mapping {job: ID, required: false}.
type Dependency struct {
	Job      string
	Required bool
}

type dependencyDoc struct {
	Job      string `json:"job" yaml:"job"`
	Required *bool  `json:"required,omitempty" yaml:"required,omitempty"`
}

func (d *Dependency) fromDoc(doc dependencyDoc) {
	d.Job = doc.Job
	d.Required = doc.Required == nil || *doc.Required
}

func (d *Dependency) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var id string
	if err := unmarshal(&id); err == nil {
		d.Job, d.Required = id, true
		return nil
	}
	var doc dependencyDoc
	if err := unmarshal(&doc); err != nil {
		return err
	}
	d.fromDoc(doc)
	return nil
}

func (d Dependency) MarshalYAML() (interface{}, error) {
	if d.Required {
		return d.Job, nil
	}
	required := false
	return dependencyDoc{Job: d.Job, Required: &required}, nil
}

func (d *Dependency) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		d.Job, d.Required = id, true
		return nil
	}
	var doc dependencyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	d.fromDoc(doc)
	return nil
}

func (d Dependency) MarshalJSON() ([]byte, error) {
	v, _ := d.MarshalYAML()
	return json.Marshal(v)
}

func ParseWorkflowDefinition(data []byte) (*WorkflowDefinition, error) {
	def := &WorkflowDefinition{}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, &UserError{Message: fmt.Sprintf("invalid workflow document: %s", err), Err: err}
	}
	def.normalize()
	return def, nil
}

func (d *WorkflowDefinition) Serialize() ([]byte, error) {
	return yaml.Marshal(d)
}

func (d *WorkflowDefinition) normalize() {
	for id, job := range d.Jobs {
		if job == nil {
			continue
		}
		if job.ID == "" {
			job.ID = id
		}
		if job.Foreach != nil {
			job.Foreach.Items = Normalize(job.Foreach.Items)
		}
		for _, task := range job.Tasks {
			if task != nil {
				task.Args = NormalizeMap(task.Args)
			}
		}
	}
}

// JobIDs returns the job ids in lexical order.
func (d *WorkflowDefinition) JobIDs() []string {
	ids := make([]string, 0, len(d.Jobs))
	for id := range d.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks the document shape. Dependency cycles are reported by the
// scheduler, not here.
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return NewUserError("workflow name is required")
	}
	if len(d.Jobs) == 0 {
		return NewUserError("workflow %s has no jobs", d.Name)
	}
	for _, id := range d.JobIDs() {
		job := d.Jobs[id]
		if job == nil {
			return NewUserError("job %s is empty", id)
		}
		if job.ID != id {
			return NewUserError("job key %s does not match job id %s", id, job.ID)
		}
		if len(job.Tasks) == 0 {
			return NewUserError("job %s has no tasks", id)
		}
		if job.Foreach != nil && job.Foreach.Items == nil {
			return NewUserError("job %s: foreach requires items", id)
		}
		for _, dep := range job.Needs {
			if _, ok := d.Jobs[dep.Job]; !ok {
				return NewUserError("job %s needs unknown job %s", id, dep.Job)
			}
			if dep.Job == id {
				return NewUserError("job %s needs itself", id)
			}
		}
		seen := map[string]bool{}
		for i, task := range job.Tasks {
			if task == nil || task.ID == "" {
				return NewUserError("job %s: task %d has no id", id, i)
			}
			if seen[task.ID] {
				return NewUserError("job %s: duplicate task id %s", id, task.ID)
			}
			seen[task.ID] = true
			if err := ValidateEntryPoint(task.Task); err != nil {
				return NewUserError("job %s: task %s: %s", id, task.ID, err)
			}
		}
	}
	return nil
}

// ValidateEntryPoint checks the module:symbol shape of a task entry point.
func ValidateEntryPoint(entry string) error {
	parts := strings.Split(entry, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid task entry point '%s', expected module:symbol", entry)
	}
	return nil
}

func (j *JobDefinition) HasForeach() bool {
	return j.Foreach != nil
}

func (j *JobDefinition) GetTask(id string) *TaskDefinition {
	for _, t := range j.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TaskIndex returns the position of task id in the job, or -1.
func (j *JobDefinition) TaskIndex(id string) int {
	for i, t := range j.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (j *JobDefinition) DependencyIDs() []string {
	ids := make([]string, 0, len(j.Needs))
	for _, dep := range j.Needs {
		ids = append(ids, dep.Job)
	}
	return ids
}
