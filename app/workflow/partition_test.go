package workflow

import (
	"context"
	"testing"

	"pctasks/app/expressions"
	"pctasks/app/objects"

	"github.com/stretchr/testify/assert"
)

func TestExpandPartitions(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	resolver := &expressions.Resolver{Scope: map[string]interface{}{
		"jobs": map[string]interface{}{
			"list": map[string]interface{}{
				"tasks": map[string]interface{}{
					"t": map[string]interface{}{"output": map[string]interface{}{"values": []interface{}{"x", "y"}}},
				},
			},
		},
	}}

	single, err := ExpandPartitions(ctx, "run1", &objects.JobDefinition{ID: "plain"}, resolver)
	if asserter.NoError(err) {
		asserter.Equal([]Partition{{ID: "0"}}, single)
	}

	job := &objects.JobDefinition{
		ID:      "each",
		Foreach: &objects.ForeachConfig{Items: "${{ jobs.list.tasks.t.output.values }}"},
	}
	partitions, err := ExpandPartitions(ctx, "run1", job, resolver)
	if asserter.NoError(err) && asserter.Len(partitions, 2) {
		asserter.Equal("x", partitions[0].Item)
		asserter.Equal(1, partitions[1].Index)
		asserter.True(partitions[1].HasItem)
		asserter.Equal(PartitionID("run1", "each", 1), partitions[1].ID)
	}

	empty, err := ExpandPartitions(ctx, "run1", &objects.JobDefinition{ID: "none", Foreach: &objects.ForeachConfig{Items: []interface{}{}}}, resolver)
	if asserter.NoError(err) {
		asserter.Empty(empty)
	}

	_, err = ExpandPartitions(ctx, "run1", &objects.JobDefinition{ID: "bad", Foreach: &objects.ForeachConfig{Items: "not a list"}}, resolver)
	var templateErr *objects.TemplateError
	if asserter.ErrorAs(err, &templateErr) {
		asserter.Equal("jobs.bad.foreach.items", templateErr.Path)
	}
}

func TestPartitionID(t *testing.T) {
	asserter := assert.New(t)

	asserter.Equal(PartitionID("run1", "job", 0), PartitionID("run1", "job", 0))
	asserter.NotEqual(PartitionID("run1", "job", 0), PartitionID("run1", "job", 1))
	asserter.NotEqual(PartitionID("run1", "job", 0), PartitionID("run2", "job", 0))
	asserter.Len(PartitionID("run1", "job", 0), 12)
}
