package config

import (
	"time"

	"github.com/go-ini/ini"
)

// RunConfig holds the knobs of a single workflow run driver. A waiting
// partition refreshes its record every WaitHeartbeat so the recovery sweep
// does not take it for abandoned.
type RunConfig struct {
	PollInterval            time.Duration `json:"poll_interval"`
	PollJitter              float64       `json:"poll_jitter"`
	MaxMissingPolls         int           `json:"max_missing_polls"`
	MaxAttempts             int           `json:"max_attempts"`
	BackoffBase             time.Duration `json:"backoff_base"`
	BackoffCap              time.Duration `json:"backoff_cap"`
	MaxConcurrentPartitions int           `json:"max_concurrent_partitions"`
	WaitTimeout             time.Duration `json:"wait_timeout"`
	WaitHeartbeat           time.Duration `json:"wait_heartbeat"`
	MaxWaitRetries          int           `json:"max_wait_retries"`
	CancelTimeout           time.Duration `json:"cancel_timeout"`
}

func NewDefaultRunConfig(c *ini.Section) RunConfig {
	return RunConfig{
		PollInterval:            duration(c, "poll_interval", 30*time.Second),
		PollJitter:              c.Key("poll_jitter").MustFloat64(0.1),
		MaxMissingPolls:         c.Key("max_missing_polls").MustInt(5),
		MaxAttempts:             c.Key("max_attempts").MustInt(5),
		BackoffBase:             duration(c, "backoff_base", time.Second),
		BackoffCap:              duration(c, "backoff_cap", 30*time.Second),
		MaxConcurrentPartitions: c.Key("max_concurrent_partitions").MustInt(100),
		WaitTimeout:             duration(c, "wait_timeout", time.Hour),
		WaitHeartbeat:           duration(c, "wait_heartbeat", time.Minute),
		MaxWaitRetries:          c.Key("max_wait_retries").MustInt(10),
		CancelTimeout:           duration(c, "cancel_timeout", 30*time.Second),
	}
}
