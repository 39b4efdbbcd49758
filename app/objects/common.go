package objects

import "fmt"

// Normalize converts the map[interface{}]interface{} values produced by
// yaml.v2 into map[string]interface{} so documents look the same whether
// they were read from YAML or JSON.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = Normalize(val)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = Normalize(val)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(t))
		for i, val := range t {
			l[i] = Normalize(val)
		}
		return l
	default:
		return v
	}
}

func NormalizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return Normalize(m).(map[string]interface{})
}
