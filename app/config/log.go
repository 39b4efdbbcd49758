package config

import (
	"github.com/go-ini/ini"
)

type LogConfig struct {
	Format          string `json:"format"`
	TimestampFormat string `json:"timestamp_format"`
	// DirPath empty means stderr.
	DirPath string `json:"dir_path"`
	Level   string `json:"level"`
	// WorkspaceID tags every entry with the log-analytics workspace.
	WorkspaceID string `json:"workspace_id"`
}

func NewDefaultLogConfig(c *ini.Section) LogConfig {
	return LogConfig{
		Format:          c.Key("format").MustString("{{.timestamp}} {{.pid}} [{{.name}}] [{{.levelname}}] [{{.run_id}} {{.job_id}}] {{.message}}"),
		TimestampFormat: c.Key("timestamp_format").MustString("2006-01-02 15:04:05.000"),
		DirPath:         c.Key("dir_path").String(),
		Level:           env("PCTASKS_LOG_LEVEL", c.Key("level").MustString("info")),
		WorkspaceID:     env("PCTASKS_LOG_ANALYTICS_WORKSPACE_ID", c.Key("workspace_id").String()),
	}
}
