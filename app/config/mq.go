package config

import (
	"time"

	"github.com/go-ini/ini"
)

type QueueConfig struct {
	// Kind is one of memory, redis or amqp.
	Kind       string `json:"kind"`
	Connection string `json:"connection"`
	Prefix     string `json:"prefix"`

	VisibilityTimeout time.Duration `json:"visibility_timeout"`
	MaxDeliveries     int           `json:"max_deliveries"`
	PollInterval      time.Duration `json:"poll_interval"`
}

func NewDefaultQueueConfig(c *ini.Section) QueueConfig {
	return QueueConfig{
		Kind:              env("PCTASKS_QUEUE_KIND", c.Key("kind").MustString("memory")),
		Connection:        env("PCTASKS_QUEUE_CONNECTION", c.Key("connection").String()),
		Prefix:            c.Key("prefix").MustString("pctasks"),
		VisibilityTimeout: duration(c, "visibility_timeout", 5*time.Minute),
		MaxDeliveries:     c.Key("max_deliveries").MustInt(5),
		PollInterval:      duration(c, "poll_interval", time.Second),
	}
}
