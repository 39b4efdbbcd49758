package workflow

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"pctasks/app/expressions"
	"pctasks/app/objects"
)

// Partition is one concrete instance of a job.
type Partition struct {
	ID    string
	Index int
	Item  interface{}
	// HasItem is false for jobs without foreach.
	HasItem bool
}

// PartitionID is stable for a run, job and item index.
func PartitionID(runID, jobID string, index int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%s:%d", runID, jobID, index)))
	return hex.EncodeToString(sum[:])[:12]
}

// ExpandPartitions evaluates the foreach clause of job. A job without
// foreach has the single partition "0"; an empty item list gives none.
func ExpandPartitions(ctx context.Context, runID string, job *objects.JobDefinition, resolver *expressions.Resolver) ([]Partition, error) {
	if !job.HasForeach() {
		return []Partition{{ID: "0"}}, nil
	}
	path := fmt.Sprintf("jobs.%s.foreach.items", job.ID)
	value, err := resolver.EvaluateRecursively(ctx, job.Foreach.Items, path)
	if err != nil {
		return nil, err
	}
	items, ok := objects.Normalize(value).([]interface{})
	if !ok {
		return nil, &objects.TemplateError{Path: path, Reason: fmt.Sprintf("foreach items must be a list, got %T", value)}
	}
	partitions := make([]Partition, 0, len(items))
	for i, item := range items {
		partitions = append(partitions, Partition{
			ID:      PartitionID(runID, job.ID, i),
			Index:   i,
			Item:    item,
			HasItem: true,
		})
	}
	return partitions, nil
}
