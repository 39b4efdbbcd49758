package plugins

import (
	"sync"

	"pctasks/plugins/dataset"
	"pctasks/plugins/plugin"
	"pctasks/plugins/standard"
)

var once sync.Once

// RegisterBuiltinTasks registers the standard and dataset tasks. It is safe
// to call more than once.
func RegisterBuiltinTasks() {
	once.Do(func() {
		endpoints := standard.GetEndpoints()
		for k, v := range dataset.GetEndpoints() {
			endpoints[k] = v
		}
		for name, task := range endpoints {
			plugin.MustRegister(name, task)
		}
	})
}
