package client

import (
	"encoding/json"
	"os"
	"strings"

	"pctasks/app/objects"

	"gopkg.in/yaml.v2"
)

// ParseArguments builds workflow arguments from a YAML or JSON file and
// name=value pairs. Pair values are decoded as JSON when they parse as JSON
// and kept as strings otherwise; pairs override the file.
func ParseArguments(file string, pairs []string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, objects.NewUserError("cannot read arguments file '%s': %s", file, err)
		}
		raw := map[string]interface{}{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, objects.NewUserError("invalid arguments file '%s': %s", file, err)
		}
		for k, v := range raw {
			args[k] = objects.Normalize(v)
		}
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, objects.NewUserError("argument '%s' is not of the form name=value", pair)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			args[name] = decoded
		} else {
			args[name] = value
		}
	}
	return args, nil
}
