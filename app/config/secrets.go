package config

import "github.com/go-ini/ini"

type SecretsConfig struct {
	// Kind is "env" or "kubernetes".
	Kind      string `json:"kind"`
	Prefix    string `json:"prefix"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func NewDefaultSecretsConfig(c *ini.Section) SecretsConfig {
	return SecretsConfig{
		Kind:      env("PCTASKS_SECRETS_KIND", c.Key("kind").MustString("env")),
		Prefix:    c.Key("prefix").MustString("PCTASKS_SECRET_"),
		Namespace: env("PCTASKS_SECRETS_NAMESPACE", c.Key("namespace").MustString("pctasks")),
		Name:      c.Key("name").MustString("pctasks-secrets"),
	}
}
