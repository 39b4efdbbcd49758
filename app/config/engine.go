package config

import (
	"os"
	"time"

	"github.com/go-ini/ini"
)

type EngineConfig struct {
	Host string `json:"host"`
	// Concurrency bounds the number of runs driven by one engine process.
	Concurrency      int           `json:"concurrency"`
	RecoverySchedule string        `json:"recovery_schedule"`
	StaleAfter       time.Duration `json:"stale_after"`
	SignalWatch      time.Duration `json:"signal_watch_interval"`
}

func NewDefaultEngineConfig(c *ini.Section) EngineConfig {
	myip := c.Key("myip").Value()
	if myip == "" {
		myip = os.Getenv("HOSTNAME")
	}
	return EngineConfig{
		Host:             myip,
		Concurrency:      c.Key("concurrency").MustInt(10),
		RecoverySchedule: c.Key("recovery_schedule").MustString("@every 5m"),
		StaleAfter:       duration(c, "stale_after", 15*time.Minute),
		SignalWatch:      duration(c, "signal_watch_interval", 2*time.Second),
	}
}
