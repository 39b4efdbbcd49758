package expressions

import (
	"context"
	"testing"

	"pctasks/app/objects"

	"github.com/stretchr/testify/assert"
)

func testScope() map[string]interface{} {
	return map[string]interface{}{
		"args": map[string]interface{}{
			"collection": "sentinel-2",
			"limit":      float64(10),
		},
		"tasks": map[string]interface{}{
			"t1": map[string]interface{}{
				"output": map[string]interface{}{"message": "hello"},
			},
		},
		"jobs": map[string]interface{}{
			"j2": map[string]interface{}{
				"tasks": map[string]interface{}{
					"t": map[string]interface{}{
						"output": []interface{}{
							map[string]interface{}{"value": "a"},
							map[string]interface{}{"value": "b"},
						},
					},
				},
			},
		},
	}
}

func TestEvaluate_WholeValue(t *testing.T) {
	asserter := assert.New(t)
	r := &Resolver{Scope: testScope()}

	v, err := r.Evaluate(context.Background(), "${{ args.limit }}", "args")
	if asserter.NoError(err) {
		asserter.Equal(float64(10), v)
	}

	v, err = r.Evaluate(context.Background(), "${{jobs.j2.tasks.t.output.value}}", "foreach")
	if asserter.NoError(err) {
		asserter.Equal([]interface{}{"a", "b"}, v)
	}

	v, err = r.Evaluate(context.Background(), "${{ jobs.j2.tasks.t.output[1].value }}", "x")
	if asserter.NoError(err) {
		asserter.Equal("b", v)
	}
}

func TestEvaluate_Interpolation(t *testing.T) {
	asserter := assert.New(t)
	r := &Resolver{Scope: testScope()}

	v, err := r.Evaluate(context.Background(), "${{ tasks.t1.output.message }}-world", "args.message")
	if asserter.NoError(err) {
		asserter.Equal("hello-world", v)
	}

	v, err = r.Evaluate(context.Background(), "limit=${{ args.limit }} of ${{ args.collection }}", "x")
	if asserter.NoError(err) {
		asserter.Equal("limit=10 of sentinel-2", v)
	}

	v, err = r.Evaluate(context.Background(), "plain", "x")
	if asserter.NoError(err) {
		asserter.Equal("plain", v)
	}
}

func TestEvaluate_Strict(t *testing.T) {
	asserter := assert.New(t)
	r := &Resolver{Scope: testScope()}

	_, err := r.Evaluate(context.Background(), "${{ foo.bar }}", "args.x")
	asserter.True(objects.IsUserError(err))
	asserter.Contains(err.Error(), "args.x")

	_, err = r.Evaluate(context.Background(), "${{ args.missing }}", "args.x")
	asserter.Error(err)

	_, err = r.Evaluate(context.Background(), "${{ local.file('a.txt') }}", "args.x")
	asserter.Error(err)

	_, err = r.Evaluate(context.Background(), "${{ args..x }}", "args.x")
	asserter.Error(err)
}

func TestEvaluateRecursively(t *testing.T) {
	asserter := assert.New(t)
	r := &Resolver{Scope: testScope()}

	input := map[string]interface{}{
		"collection": "${{ args.collection }}",
		"list":       []interface{}{"${{ args.limit }}", 3},
		"nested":     map[string]interface{}{"msg": "${{ tasks.t1.output.message }}"},
	}
	out, err := r.EvaluateRecursively(context.Background(), input, "args")
	if asserter.NoError(err) {
		asserter.Equal(map[string]interface{}{
			"collection": "sentinel-2",
			"list":       []interface{}{float64(10), 3},
			"nested":     map[string]interface{}{"msg": "hello"},
		}, out)
	}

	env, err := r.EvaluateRecursively(context.Background(), map[string]string{"LIMIT": "${{ args.limit }}"}, "environment")
	if asserter.NoError(err) {
		asserter.Equal(map[string]string{"LIMIT": "10"}, env)
	}
}

func TestResolver_Defer(t *testing.T) {
	asserter := assert.New(t)
	r := &Resolver{
		Scope: testScope(),
		Defer: func(expr *Expr) (bool, error) {
			return expr.Root() == "item", nil
		},
	}

	v, err := r.Evaluate(context.Background(), "${{ item }}/${{ args.collection }}", "args.path")
	if asserter.NoError(err) {
		asserter.Equal("${{ item }}/sentinel-2", v)
	}
}

func TestParse(t *testing.T) {
	asserter := assert.New(t)

	expr, err := Parse("pc.get_token('acct', \"c,d\", 3)")
	if asserter.NoError(err) {
		asserter.True(expr.IsCall())
		asserter.Equal("pc.get_token", expr.Name())
		if asserter.Len(expr.Args, 3) {
			asserter.Equal("acct", expr.Args[0].Value)
			asserter.Equal("c,d", expr.Args[1].Value)
			asserter.Equal(float64(3), expr.Args[2].Value)
		}
	}

	expr, err = Parse("jobs.a.tasks.t.output")
	if asserter.NoError(err) {
		asserter.False(expr.IsCall())
		asserter.Equal("jobs", expr.Root())
	}

	_, err = Parse("local.file('x'")
	asserter.Error(err)
}

func TestReferences(t *testing.T) {
	asserter := assert.New(t)
	exprs, err := References(map[string]interface{}{
		"a": []interface{}{"${{ args.x }}-${{ item }}", 3},
		"b": map[string]string{"KEY": "${{ secrets.key }}"},
	})
	if asserter.NoError(err) {
		roots := []string{}
		for _, e := range exprs {
			roots = append(roots, e.Root())
		}
		asserter.ElementsMatch([]string{"args", "item", "secrets"}, roots)
	}

	_, err = References("${{ local.file('x' }}")
	asserter.Error(err)
}
