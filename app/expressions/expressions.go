package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"pctasks/app/objects"
)

var (
	reIdentifier = regexp.MustCompile(`\$\{\{.*?\}\}`)
	reExpression = regexp.MustCompile(`\$\{\{\s*(.*?)\s*\}\}`)
)

// Function is a callable available inside ${{ }}, e.g. local.file(path).
type Function func(ctx context.Context, args []interface{}) (interface{}, error)

// Resolver substitutes ${{ }} placeholders against a scope of namespaces.
type Resolver struct {
	Scope     map[string]interface{}
	Functions map[string]Function
	// Defer, when set, is asked about every reference before it is resolved.
	// Returning true leaves the placeholder untouched for a later phase.
	Defer func(expr *Expr) (bool, error)
}

func Match(s string) bool {
	return reIdentifier.MatchString(s)
}

// EvaluateRecursively walks data depth first and resolves every string in
// it. path names data in error messages.
func (r *Resolver) EvaluateRecursively(ctx context.Context, data interface{}, path string) (interface{}, error) {
	switch reflect.ValueOf(data).Kind() {
	case reflect.Slice:
		list, ok := data.([]interface{})
		if !ok {
			return data, nil
		}
		result := make([]interface{}, 0, len(list))
		for i, one := range list {
			v, err := r.EvaluateRecursively(ctx, one, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			result = append(result, v)
		}
		return result, nil

	case reflect.String:
		return r.Evaluate(ctx, data.(string), path)

	case reflect.Map:
		switch m := data.(type) {
		case map[string]interface{}:
			result := make(map[string]interface{}, len(m))
			for k, v := range m {
				evaluated, err := r.EvaluateRecursively(ctx, v, join(path, k))
				if err != nil {
					return nil, err
				}
				result[k] = evaluated
			}
			return result, nil
		case map[string]string:
			result := make(map[string]string, len(m))
			for k, v := range m {
				evaluated, err := r.Evaluate(ctx, v, join(path, k))
				if err != nil {
					return nil, err
				}
				result[k] = Stringify(evaluated)
			}
			return result, nil
		}
		return data, nil

	default:
		return data, nil
	}
}

// Evaluate resolves the placeholders of one string. A string that is exactly
// one placeholder yields the referenced value itself; otherwise the values
// are interpolated into the text.
func (r *Resolver) Evaluate(ctx context.Context, s string, path string) (interface{}, error) {
	matched := reExpression.FindAllStringSubmatchIndex(s, -1)
	if len(matched) == 0 {
		return s, nil
	}

	if len(matched) == 1 && matched[0][0] == 0 && matched[0][1] == len(s) {
		v, keep, err := r.resolve(ctx, s[matched[0][2]:matched[0][3]], path)
		if err != nil {
			return nil, err
		}
		if keep {
			return s, nil
		}
		return v, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matched {
		b.WriteString(s[last:m[0]])
		v, keep, err := r.resolve(ctx, s[m[2]:m[3]], path)
		if err != nil {
			return nil, err
		}
		if keep {
			b.WriteString(s[m[0]:m[1]])
		} else {
			b.WriteString(Stringify(v))
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func (r *Resolver) resolve(ctx context.Context, source, path string) (interface{}, bool, error) {
	expr, err := Parse(source)
	if err != nil {
		return nil, false, &objects.TemplateError{Path: path, Reason: err.Error()}
	}
	if r.Defer != nil {
		keep, err := r.Defer(expr)
		if err != nil {
			return nil, false, &objects.TemplateError{Path: path, Reason: err.Error()}
		}
		if keep {
			return nil, true, nil
		}
	}

	if expr.IsCall() {
		fn, ok := r.Functions[expr.Name()]
		if !ok {
			return nil, false, &objects.TemplateError{Path: path, Reason: fmt.Sprintf("function %s is not available here", expr.Name())}
		}
		args := make([]interface{}, 0, len(expr.Args))
		for _, arg := range expr.Args {
			if arg.Ref == nil {
				args = append(args, arg.Value)
				continue
			}
			v, err := Lookup(r.Scope, arg.Ref)
			if err != nil {
				return nil, false, &objects.TemplateError{Path: path, Reason: err.Error()}
			}
			args = append(args, v)
		}
		v, err := fn(ctx, args)
		if err != nil {
			return nil, false, &objects.TemplateError{Path: path, Reason: fmt.Sprintf("%s: %s", expr.Name(), err)}
		}
		return v, false, nil
	}

	v, err := Lookup(r.Scope, expr.Path)
	if err != nil {
		return nil, false, &objects.TemplateError{Path: path, Reason: err.Error()}
	}
	return v, false, nil
}

// Stringify renders a value for interpolation: strings as they are, other
// values as JSON.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// References parses every placeholder found in the strings of data.
func References(data interface{}) ([]*Expr, error) {
	var exprs []*Expr
	var walk func(v interface{}) error
	walk = func(v interface{}) error {
		switch t := v.(type) {
		case string:
			for _, m := range reExpression.FindAllStringSubmatch(t, -1) {
				expr, err := Parse(m[1])
				if err != nil {
					return err
				}
				exprs = append(exprs, expr)
			}
		case []interface{}:
			for _, one := range t {
				if err := walk(one); err != nil {
					return err
				}
			}
		case map[string]interface{}:
			for _, one := range t {
				if err := walk(one); err != nil {
					return err
				}
			}
		case map[string]string:
			for _, one := range t {
				if err := walk(one); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return exprs, walk(data)
}
