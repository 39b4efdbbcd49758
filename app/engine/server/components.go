package server

import (
	"context"

	"pctasks/app/blob"
	"pctasks/app/config"
	"pctasks/app/db"
	"pctasks/app/executor"
	"pctasks/app/notify"
	"pctasks/app/queue"
	"pctasks/app/secrets"
	"pctasks/app/signal"
	"pctasks/app/store"
	"pctasks/app/taskrun"
	"pctasks/app/workflow"
	"pctasks/plugins"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Components are the shared backends of an engine or CLI process.
type Components struct {
	Config  *config.Configuration
	Records *store.Containers
	Blobs   blob.Store
	Queues  *queue.Set
	Secrets secrets.Provider
	Signals *signal.Bus

	conn *gorm.DB
}

// Open connects every backend named by cfg.
func Open(ctx context.Context, cfg *config.Configuration) (*Components, error) {
	conn, err := db.Open(cfg.RecordStore)
	if err != nil {
		return nil, errors.Wrap(err, "open record store")
	}
	c := &Components{Config: cfg, conn: conn, Records: store.NewContainers(store.New(conn))}

	if c.Blobs, err = blob.New(ctx, cfg.Blob); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "open blob store")
	}
	if c.Queues, err = queue.NewSet(cfg.Queue); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "open queues")
	}
	if c.Secrets, err = secrets.New(cfg.Secrets); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "open secret provider")
	}
	c.Signals = signal.NewBus(c.Records, c.Queues, cfg.Run.PollInterval)
	return c, nil
}

// Migrate creates or updates the record store tables.
func (c *Components) Migrate() error {
	return db.Migrate(c.conn)
}

// NewRunner builds a workflow runner on the configured executor.
func (c *Components) NewRunner() (*workflow.Runner, error) {
	plugins.RegisterBuiltinTasks()
	harness := &taskrun.Harness{Blobs: c.Blobs, Records: c.Records}
	exec, err := executor.GetExecutor(c.Config.Runner, c.Blobs, harness)
	if err != nil {
		return nil, err
	}
	return &workflow.Runner{
		Records:  c.Records,
		Blobs:    c.Blobs,
		Executor: exec,
		Config:   c.Config.Run,
		Secrets:  c.Secrets,
		Tokens:   &secrets.SecretTokenProvider{Secrets: c.Secrets},
		Signals:  c.Signals,
		Notifier: notify.New(c.Config.Notify, c.Queues),
	}, nil
}

func (c *Components) Close() {
	if c.Signals != nil {
		c.Signals.Close()
	}
	if c.Queues != nil {
		c.Queues.Close()
	}
	if c.conn != nil {
		db.Close(c.conn)
	}
}
