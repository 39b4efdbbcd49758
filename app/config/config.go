package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-ini/ini"
)

const DefaultConfigFile = "/etc/pctasks/config.ini"

type Configuration struct {
	RecordStore RecordStoreConfig `json:"record_store"`
	Blob        BlobConfig        `json:"blob"`
	Queue       QueueConfig       `json:"queue"`
	Secrets     SecretsConfig     `json:"secrets"`
	Runner      RunnerConfig      `json:"runner"`
	Run         RunConfig         `json:"run"`
	Engine      EngineConfig      `json:"engine"`
	Server      ServerConfig      `json:"server"`
	Notify      NotifyConfig      `json:"notify"`
	LOG         LogConfig         `json:"log"`
}

// Load reads configFile (a missing file yields defaults) and applies
// PCTASKS_* environment overrides.
func Load(configFile string) (*Configuration, error) {
	if configFile == "" {
		configFile = os.Getenv("PCTASKS_CONFIG")
	}
	if configFile == "" {
		configFile = DefaultConfigFile
	}
	file, err := ini.LooseLoad(configFile)
	if err != nil {
		return nil, err
	}
	return FromFile(file), nil
}

func FromFile(file *ini.File) *Configuration {
	return &Configuration{
		RecordStore: NewDefaultRecordStoreConfig(file.Section("record_store")),
		Blob:        NewDefaultBlobConfig(file.Section("blob")),
		Queue:       NewDefaultQueueConfig(file.Section("queue")),
		Secrets:     NewDefaultSecretsConfig(file.Section("secrets")),
		Runner:      NewDefaultRunnerConfig(file.Section("runner")),
		Run:         NewDefaultRunConfig(file.Section("run")),
		Engine:      NewDefaultEngineConfig(file.Section("engine")),
		Server:      NewDefaultServerConfig(file.Section("server")),
		Notify:      NewDefaultNotifyConfig(file.Section("notify")),
		LOG:         NewDefaultLogConfig(file.Section("log")),
	}
}

// Default is the configuration used when no file and no environment is set.
func Default() *Configuration {
	return FromFile(ini.Empty())
}

func env(name, value string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return value
}

func envInt(name string, value int) int {
	if v, ok := os.LookupEnv(name); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return value
}

func duration(c *ini.Section, key string, def time.Duration) time.Duration {
	d, err := c.Key(key).Duration()
	if err != nil || d <= 0 {
		return def
	}
	return d
}
