package config

import (
	"github.com/go-ini/ini"
)

// NotifyConfig configures where run notifications go besides the
// notification queue.
type NotifyConfig struct {
	// WebhookURL, when set, also receives every notification as a signed
	// form post.
	WebhookURL string `json:"webhook_url"`
	Topic      string `json:"topic"`
	AppKey     string `json:"app_key"`
	SecretKey  string `json:"secret_key"`
}

func NewDefaultNotifyConfig(c *ini.Section) NotifyConfig {
	return NotifyConfig{
		WebhookURL: env("PCTASKS_NOTIFY_WEBHOOK_URL", c.Key("webhook_url").String()),
		Topic:      c.Key("topic").MustString("pctasks.runs"),
		AppKey:     c.Key("app_key").String(),
		SecretKey:  env("PCTASKS_NOTIFY_SECRET_KEY", c.Key("secret_key").String()),
	}
}
