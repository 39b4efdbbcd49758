package objects

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

const fanOutDocument = `
# a fan-out workflow
name: fan-out
dataset: test-dataset
schema_version: 1.0.0
args:
  - collection
jobs:
  J1:
    tasks:
      - id: T
        task: pctasks.standard:echo
        args:
          items: [a, b, c]
          nested:
            key: value
  J2:
    name: per item
    needs: [J1]
    foreach:
      items: ${{ jobs.J1.tasks.T.output.items }}
    tasks:
      - id: T
        image: pctasks/task:latest
        task: pctasks.standard:echo
        args:
          value: ${{ item }}
        environment:
          TOKEN: ${{ secrets.token }}
        tags:
          batch_pool: small
  J3:
    needs:
      - job: J2
        required: false
    tasks:
      - id: report
        task: pctasks.standard:echo
`

func TestParseWorkflowDefinition(t *testing.T) {
	asserter := assert.New(t)

	def, err := ParseWorkflowDefinition([]byte(fanOutDocument))
	if asserter.NoError(err) {
		asserter.Equal("fan-out", def.Name)
		asserter.Equal([]string{"collection"}, def.Args)
		asserter.Equal([]string{"J1", "J2", "J3"}, def.JobIDs())

		j1 := def.Jobs["J1"]
		asserter.Equal("J1", j1.ID)
		asserter.Equal(map[string]interface{}{"key": "value"}, j1.Tasks[0].Args["nested"])

		j2 := def.Jobs["J2"]
		asserter.True(j2.HasForeach())
		asserter.Equal("${{ jobs.J1.tasks.T.output.items }}", j2.Foreach.Items)
		asserter.Equal([]Dependency{{Job: "J1", Required: true}}, j2.Needs)
		asserter.Equal("small", j2.Tasks[0].Tags["batch_pool"])

		asserter.Equal([]Dependency{{Job: "J2", Required: false}}, def.Jobs["J3"].Needs)
		asserter.NoError(def.Validate())
	}
}

func TestWorkflowDefinition_RoundTrip(t *testing.T) {
	asserter := assert.New(t)

	def, err := ParseWorkflowDefinition([]byte(fanOutDocument))
	if asserter.NoError(err) {
		data, err := def.Serialize()
		if asserter.NoError(err) {
			again, err := ParseWorkflowDefinition(data)
			if asserter.NoError(err) {
				asserter.Equal(def, again)
			}
		}
	}
}

func TestWorkflowDefinition_Validate(t *testing.T) {
	cases := map[string]string{
		"no jobs": `name: x`,
		"unknown need": `
name: x
jobs:
  A:
    needs: [B]
    tasks: [{id: t, task: "m:s"}]`,
		"bad entry point": `
name: x
jobs:
  A:
    tasks: [{id: t, task: "echo"}]`,
		"duplicate task": `
name: x
jobs:
  A:
    tasks: [{id: t, task: "m:s"}, {id: t, task: "m:s"}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			asserter := assert.New(t)
			def, err := ParseWorkflowDefinition([]byte(doc))
			if asserter.NoError(err) {
				err = def.Validate()
				asserter.Error(err)
				asserter.True(IsUserError(err))
			}
		})
	}
}

func TestParseWorkflowDefinition_Invalid(t *testing.T) {
	asserter := assert.New(t)

	_, err := ParseWorkflowDefinition([]byte("jobs: [not, a, map]"))
	asserter.Error(err)
	asserter.True(IsUserError(err))
}

func TestEnvironmentVars(t *testing.T) {
	asserter := assert.New(t)

	def, err := ParseWorkflowDefinition([]byte(`
name: env
jobs:
  a:
    tasks:
      - id: listed
        task: pctasks.standard:echo
        environment:
          - name: REGION
            value: westeurope
          - name: TOKEN
            value: ${{ secrets.token }}
          - name: REGION
            value: eastus
      - id: mapped
        task: pctasks.standard:echo
        environment:
          REGION: westeurope
`))
	if asserter.NoError(err) {
		tasks := def.Jobs["a"].Tasks
		asserter.Equal(EnvironmentVars{"REGION": "eastus", "TOKEN": "${{ secrets.token }}"}, tasks[0].Environment)
		asserter.Equal(EnvironmentVars{"REGION": "westeurope"}, tasks[1].Environment)
	}

	var vars EnvironmentVars
	if asserter.NoError(json.Unmarshal([]byte(`[{"name":"A","value":"1"},{"name":"B","value":"2"}]`), &vars)) {
		asserter.Equal(EnvironmentVars{"A": "1", "B": "2"}, vars)
	}
	if asserter.NoError(json.Unmarshal([]byte(`{"A":"1"}`), &vars)) {
		asserter.Equal(EnvironmentVars{"A": "1"}, vars)
	}
	asserter.Error(json.Unmarshal([]byte(`[{"value":"1"}]`), &vars))

	_, err = ParseWorkflowDefinition([]byte(`
name: env
jobs:
  a:
    tasks:
      - id: t
        task: pctasks.standard:echo
        environment:
          - value: nameless
`))
	asserter.Error(err)
}
