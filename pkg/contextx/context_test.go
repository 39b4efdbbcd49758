package contextx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithFields(t *testing.T) {
	asserter := assert.New(t)

	parent := WithRun(context.Background(), "wf", "run1")
	child := WithTask(WithPartition(parent, "J", "0"), "t1")

	asserter.Equal("run1", FieldsFrom(child).String(RunID))
	asserter.Equal("J", FieldsFrom(child).String(JobID))
	asserter.Equal("t1", FieldsFrom(child).String(TaskID))

	// the parent is never mutated by its children
	asserter.Equal("", FieldsFrom(parent).String(TaskID))
	asserter.Empty(FieldsFrom(context.Background()))
}
