package config

import "github.com/go-ini/ini"

type BlobConfig struct {
	// Kind is "local" or "s3".
	Kind      string `json:"kind"`
	Root      string `json:"root"`
	URL       string `json:"url"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

func NewDefaultBlobConfig(c *ini.Section) BlobConfig {
	return BlobConfig{
		Kind:      env("PCTASKS_BLOB_KIND", c.Key("kind").MustString("local")),
		Root:      env("PCTASKS_BLOB_ROOT", c.Key("root").MustString("/var/lib/pctasks/blobs")),
		URL:       env("PCTASKS_BLOB_URL", c.Key("url").String()),
		Bucket:    env("PCTASKS_BLOB_BUCKET", c.Key("bucket").MustString("pctasks")),
		Region:    c.Key("region").MustString("us-east-1"),
		AccessKey: env("PCTASKS_BLOB_ACCESS_KEY", c.Key("access_key").String()),
		SecretKey: env("PCTASKS_BLOB_SECRET_KEY", c.Key("secret_key").String()),
	}
}
