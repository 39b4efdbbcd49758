package expressions

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a parsed placeholder body: a dotted reference such as
// jobs.a.tasks.t.output.x, or a call such as local.file('x.json').
type Expr struct {
	Source string
	Path   []string
	Args   []Arg
	call   bool
}

// Arg is a call argument: a literal Value or a reference.
type Arg struct {
	Value interface{}
	Ref   []string
}

func (e *Expr) IsCall() bool {
	return e.call
}

// Name is the dotted path, which for calls is the function name.
func (e *Expr) Name() string {
	return strings.Join(e.Path, ".")
}

func (e *Expr) Root() string {
	return e.Path[0]
}

func Parse(source string) (*Expr, error) {
	source = strings.TrimSpace(source)
	expr := &Expr{Source: source}
	body := source
	if open := strings.IndexByte(source, '('); open >= 0 {
		if !strings.HasSuffix(source, ")") {
			return nil, fmt.Errorf("unterminated call '%s'", source)
		}
		expr.call = true
		body = strings.TrimSpace(source[:open])
		args, err := parseArgs(source[open+1 : len(source)-1])
		if err != nil {
			return nil, err
		}
		expr.Args = args
	}
	path, err := parsePath(body)
	if err != nil {
		return nil, err
	}
	expr.Path = path
	return expr, nil
}

func parsePath(s string) ([]string, error) {
	if s == "" {
		return nil, fmt.Errorf("empty reference")
	}
	// items[0] is the same as items.0
	s = strings.NewReplacer("[", ".", "]", "").Replace(s)
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid reference '%s'", s)
		}
		for _, r := range p {
			if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
				return nil, fmt.Errorf("invalid character %q in reference '%s'", r, s)
			}
		}
	}
	return parts, nil
}

func parseArgs(s string) ([]Arg, error) {
	var args []Arg
	for _, raw := range splitArgs(s) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		switch {
		case len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0]:
			args = append(args, Arg{Value: raw[1 : len(raw)-1]})
		case raw == "true" || raw == "false":
			args = append(args, Arg{Value: raw == "true"})
		default:
			if n, err := strconv.ParseFloat(raw, 64); err == nil {
				args = append(args, Arg{Value: n})
				continue
			}
			ref, err := parsePath(raw)
			if err != nil {
				return nil, err
			}
			args = append(args, Arg{Ref: ref})
		}
	}
	return args, nil
}

func splitArgs(s string) []string {
	var parts []string
	var quote rune
	start := 0
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ',':
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
