package config

import "github.com/go-ini/ini"

// ServerConfig is the dev task endpoint, which also serves /metrics.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func NewDefaultServerConfig(c *ini.Section) ServerConfig {
	return ServerConfig{
		Host: c.Key("host").MustString("0.0.0.0"),
		Port: envInt("PCTASKS_SERVER_PORT", c.Key("port").MustInt(8791)),
	}
}
