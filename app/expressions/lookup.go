package expressions

import (
	"fmt"
	"strconv"
	"strings"
)

// Lookup follows path through nested maps and lists. A numeric segment
// indexes a list; any other segment applied to a list is mapped over its
// elements.
func Lookup(scope map[string]interface{}, path []string) (interface{}, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty reference")
	}
	root, ok := scope[path[0]]
	if !ok {
		return nil, fmt.Errorf("no resolver for '%s'", strings.Join(path, "."))
	}
	return walk(root, path, 1)
}

func walk(v interface{}, path []string, i int) (interface{}, error) {
	for ; i < len(path); i++ {
		seg := path[i]
		switch t := v.(type) {
		case map[string]interface{}:
			next, ok := t[seg]
			if !ok {
				return nil, fmt.Errorf("no value for '%s'", strings.Join(path[:i+1], "."))
			}
			v = next
		case map[string]string:
			next, ok := t[seg]
			if !ok {
				return nil, fmt.Errorf("no value for '%s'", strings.Join(path[:i+1], "."))
			}
			v = next
		case []interface{}:
			if idx, err := strconv.Atoi(seg); err == nil {
				if idx < 0 || idx >= len(t) {
					return nil, fmt.Errorf("index %d out of range for '%s'", idx, strings.Join(path[:i], "."))
				}
				v = t[idx]
				continue
			}
			result := make([]interface{}, 0, len(t))
			for _, elem := range t {
				r, err := walk(elem, path, i)
				if err != nil {
					return nil, err
				}
				result = append(result, r)
			}
			return result, nil
		default:
			return nil, fmt.Errorf("no value for '%s'", strings.Join(path[:i+1], "."))
		}
	}
	return v, nil
}
