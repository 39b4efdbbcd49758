package config

import (
	"os"

	"github.com/go-ini/ini"
)

// RunnerConfig selects the task runner used by the workflow driver.
type RunnerConfig struct {
	// Kind is one of local, batch, argo or kubernetes.
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint"`
	// Pool is the batch compute pool id.
	Pool       string `json:"pool"`
	Namespace  string `json:"namespace"`
	Kubeconfig string `json:"kubeconfig"`
	// Image runs the task harness when a task definition has no image.
	Image string `json:"image"`
	// Command is the harness entry point inside the image.
	Command        []string `json:"command"`
	ServiceAccount string   `json:"service_account"`
	Host           string   `json:"host"`
}

func NewDefaultRunnerConfig(c *ini.Section) RunnerConfig {
	myip := c.Key("myip").Value()
	if myip == "" {
		myip = os.Getenv("HOSTNAME")
	}
	return RunnerConfig{
		Kind:           env("PCTASKS_RUNNER_KIND", c.Key("kind").MustString("local")),
		Endpoint:       env("PCTASKS_RUNNER_ENDPOINT", c.Key("endpoint").String()),
		Pool:           c.Key("pool").MustString("pctasks"),
		Namespace:      c.Key("namespace").MustString("pctasks"),
		Kubeconfig:     c.Key("kubeconfig").String(),
		Image:          c.Key("image").MustString("pctasks/task:latest"),
		Command:        c.Key("command").Strings(" "),
		ServiceAccount: c.Key("service_account").String(),
		Host:           myip,
	}
}
