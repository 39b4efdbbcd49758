package workflow

import (
	"sort"

	"pctasks/app/objects"
)

const cycleMessage = "cycle in job graph"

// TopologicalSort orders the jobs of def so that every job comes after the
// jobs it needs. Ties are broken by job id, so the order is stable.
func TopologicalSort(def *objects.WorkflowDefinition) ([]string, error) {
	indegree := map[string]int{}
	dependents := map[string][]string{}
	for _, id := range def.JobIDs() {
		indegree[id] += 0
		for _, dep := range def.Jobs[id].DependencyIDs() {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(indegree))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				sort.Strings(ready)
			}
		}
	}

	if len(order) != len(indegree) {
		return nil, &objects.WorkflowFailedError{Message: cycleMessage, Cycle: findCycle(def, indegree)}
	}
	return order, nil
}

// findCycle walks the jobs left over by the sort, all of which sit on or
// behind a cycle, and returns one cycle closed on its first job.
func findCycle(def *objects.WorkflowDefinition, indegree map[string]int) []string {
	var start string
	for _, id := range def.JobIDs() {
		if indegree[id] > 0 {
			start = id
			break
		}
	}
	seen := map[string]int{}
	var path []string
	for id := start; ; {
		if at, ok := seen[id]; ok {
			return append(path[at:], id)
		}
		seen[id] = len(path)
		path = append(path, id)
		for _, dep := range def.Jobs[id].DependencyIDs() {
			if indegree[dep] > 0 {
				id = dep
				break
			}
		}
	}
}

// Ancestors returns every job jobID depends on, directly or transitively.
func Ancestors(def *objects.WorkflowDefinition, jobID string) map[string]bool {
	found := map[string]bool{}
	stack := []string{jobID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		job, ok := def.Jobs[id]
		if !ok {
			continue
		}
		for _, dep := range job.DependencyIDs() {
			if !found[dep] {
				found[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return found
}
