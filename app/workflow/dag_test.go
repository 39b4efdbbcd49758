package workflow

import (
	"errors"
	"testing"

	"pctasks/app/objects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, doc string) *objects.WorkflowDefinition {
	t.Helper()
	def, err := objects.ParseWorkflowDefinition([]byte(doc))
	require.NoError(t, err)
	return def
}

const diamondDocument = `
name: diamond
jobs:
  d:
    needs: [b, c]
    tasks:
      - {id: t, task: "pctasks.standard:echo"}
  c:
    needs: [a]
    tasks:
      - {id: t, task: "pctasks.standard:echo"}
  b:
    needs: [a]
    tasks:
      - {id: t, task: "pctasks.standard:echo"}
  a:
    tasks:
      - {id: t, task: "pctasks.standard:echo"}
`

func TestTopologicalSort(t *testing.T) {
	asserter := assert.New(t)

	order, err := TopologicalSort(parse(t, diamondDocument))
	if asserter.NoError(err) {
		asserter.Equal([]string{"a", "b", "c", "d"}, order)
	}
}

func TestTopologicalSort_Cycle(t *testing.T) {
	asserter := assert.New(t)

	def := parse(t, `
name: loop
jobs:
  a:
    tasks:
      - {id: t, task: "pctasks.standard:echo"}
  b:
    needs: [a, d]
    tasks:
      - {id: t, task: "pctasks.standard:echo"}
  c:
    needs: [b]
    tasks:
      - {id: t, task: "pctasks.standard:echo"}
  d:
    needs: [c]
    tasks:
      - {id: t, task: "pctasks.standard:echo"}
`)
	_, err := TopologicalSort(def)
	var failed *objects.WorkflowFailedError
	if asserter.True(errors.As(err, &failed)) {
		asserter.Contains(failed.Error(), "cycle")
		asserter.Equal([]string{"b", "d", "c", "b"}, failed.Cycle)
	}
}

func TestAncestors(t *testing.T) {
	asserter := assert.New(t)

	def := parse(t, diamondDocument)
	asserter.Equal(map[string]bool{"a": true, "b": true, "c": true}, Ancestors(def, "d"))
	asserter.Equal(map[string]bool{"a": true}, Ancestors(def, "b"))
	asserter.Empty(Ancestors(def, "a"))
}
