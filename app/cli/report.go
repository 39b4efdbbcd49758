package cli

import (
	"io"
	"strings"
	"time"

	"pctasks/app/engine/client"
	"pctasks/app/objects"

	"github.com/flosch/pongo2/v4"
)

var statusTemplate = pongo2.Must(pongo2.FromString(`{% autoescape off %}run:      {{ run.id }}
workflow: {{ run.workflow }}
status:   {{ run.status }}
started:  {{ run.started }}
ended:    {{ run.ended }}
{% for e in run.errors %}error:    {{ e }}
{% endfor %}{% for job in jobs %}
job {{ job.id }}: {{ job.status }} ({{ job.partition_count }} partitions)
{% for e in job.errors %}  error: {{ e }}
{% endfor %}{% for p in job.partitions %}  partition {{ p.id }} [{{ p.index }}]: {{ p.status }}
{% for t in p.tasks %}    {{ t.id|ljust:24 }} {{ t.status|ljust:10 }}{% if t.errors %} {{ t.errors }}{% endif %}
{% endfor %}{% endfor %}{% endfor %}{% endautoescape %}`))

var listTemplate = pongo2.Must(pongo2.FromString(`{% autoescape off %}{{ "RUN"|ljust:34 }} {{ "WORKFLOW"|ljust:24 }} {{ "STATUS"|ljust:10 }} CREATED
{% for r in runs %}{{ r.id|ljust:34 }} {{ r.workflow|ljust:24 }} {{ r.status|ljust:10 }} {{ r.created }}
{% endfor %}{% endautoescape %}`))

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func statusContext(status *client.RunStatus) pongo2.Context {
	run := status.Run
	byJob := map[string][]map[string]interface{}{}
	for _, p := range status.Partitions {
		tasks := make([]map[string]interface{}, 0, len(p.Tasks))
		for _, t := range p.Tasks {
			tasks = append(tasks, map[string]interface{}{
				"id":     t.TaskID,
				"status": t.Status,
				"errors": strings.Join(t.Errors, "; "),
			})
		}
		byJob[p.JobID] = append(byJob[p.JobID], map[string]interface{}{
			"id":     p.PartitionID,
			"index":  p.Index,
			"status": p.Status,
			"tasks":  tasks,
		})
	}
	jobs := make([]map[string]interface{}, 0, len(run.Jobs))
	for _, j := range run.Jobs {
		jobs = append(jobs, map[string]interface{}{
			"id":              j.JobID,
			"status":          j.Status,
			"partition_count": j.PartitionCount,
			"errors":          j.Errors,
			"partitions":      byJob[j.JobID],
		})
	}
	return pongo2.Context{
		"run": map[string]interface{}{
			"id":       run.RunID,
			"workflow": run.WorkflowID,
			"status":   run.Status,
			"started":  formatTime(run.StartedAt),
			"ended":    formatTime(run.EndedAt),
			"errors":   run.Errors,
		},
		"jobs": jobs,
	}
}

// RenderStatus writes the human-readable report of a run.
func RenderStatus(w io.Writer, status *client.RunStatus) error {
	return statusTemplate.ExecuteWriter(statusContext(status), w)
}

// RenderList writes one line per run summary.
func RenderList(w io.Writer, runs []*objects.WorkflowRunSummary) error {
	rows := make([]map[string]interface{}, 0, len(runs))
	for _, r := range runs {
		created := r.CreatedAt
		rows = append(rows, map[string]interface{}{
			"id":       r.RunID,
			"workflow": r.WorkflowID,
			"status":   r.Status,
			"created":  formatTime(&created),
		})
	}
	return listTemplate.ExecuteWriter(pongo2.Context{"runs": rows}, w)
}
