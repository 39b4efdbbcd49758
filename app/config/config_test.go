package config

import (
	"testing"
	"time"

	"github.com/go-ini/ini"
	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	asserter := assert.New(t)

	cfg := Default()
	asserter.Equal(30*time.Second, cfg.Run.PollInterval)
	asserter.Equal(5, cfg.Run.MaxMissingPolls)
	asserter.Equal(5, cfg.Run.MaxAttempts)
	asserter.Equal(time.Second, cfg.Run.BackoffBase)
	asserter.Equal(30*time.Second, cfg.Run.BackoffCap)
	asserter.Equal(100, cfg.Run.MaxConcurrentPartitions)
	asserter.Equal(time.Minute, cfg.Run.WaitHeartbeat)
	asserter.Equal("local", cfg.Runner.Kind)
	asserter.Equal("memory", cfg.Queue.Kind)
}

func TestFromFile(t *testing.T) {
	asserter := assert.New(t)

	file, err := ini.Load([]byte(`
[record_store]
connection = mysql://root:pw@db:3306/pctasks
pool_size = 20

[run]
poll_interval = 2s
max_concurrent_partitions = 8

[runner]
kind = batch
endpoint = http://batch:8080
command = pctasks task run
`))
	if asserter.NoError(err) {
		cfg := FromFile(file)
		asserter.Equal("mysql://root:pw@db:3306/pctasks", cfg.RecordStore.Connection)
		asserter.Equal(20, cfg.RecordStore.PoolSize)
		asserter.Equal(2*time.Second, cfg.Run.PollInterval)
		asserter.Equal(8, cfg.Run.MaxConcurrentPartitions)
		asserter.Equal("batch", cfg.Runner.Kind)
		asserter.Equal([]string{"pctasks", "task", "run"}, cfg.Runner.Command)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	asserter := assert.New(t)

	t.Setenv("PCTASKS_RUNNER_KIND", "argo")
	t.Setenv("PCTASKS_QUEUE_CONNECTION", "redis://queue:6379/0")
	t.Setenv("PCTASKS_LOG_ANALYTICS_WORKSPACE_ID", "ws-1")

	cfg := Default()
	asserter.Equal("argo", cfg.Runner.Kind)
	asserter.Equal("redis://queue:6379/0", cfg.Queue.Connection)
	asserter.Equal("ws-1", cfg.LOG.WorkspaceID)
}
