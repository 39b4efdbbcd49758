package cli

import (
	"context"
	"fmt"

	"pctasks/app/config"
	"pctasks/app/engine/client"
	"pctasks/app/engine/server"
	"pctasks/app/objects"
	"pctasks/pkg/log"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitUserError = 1
	ExitError     = 2
)

// ExitCode maps an error returned by a command onto the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case objects.IsUserError(err):
		return ExitUserError
	default:
		return ExitError
	}
}

type options struct {
	configFile string
}

func (o *options) load() (*config.Configuration, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, objects.NewUserError("cannot load config: %s", err)
	}
	if err := log.Initialize(cfg.LOG); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) open(ctx context.Context) (*server.Components, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return server.Open(ctx, cfg)
}

func (o *options) withClient(ctx context.Context, fn func(c *client.Client) error) error {
	components, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(client.NewClient(components.Records, components.Blobs, components.Queues, components.Signals))
}

// exactArgs reports a wrong argument count as a user error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return objects.NewUserError("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

func NewRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "pctasks",
		Short:         "submit and drive pctasks workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&o.configFile, "config", "", fmt.Sprintf("config file (default $PCTASKS_CONFIG or %s)", config.DefaultConfigFile))
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return objects.NewUserError("%s", err)
	})
	cmd.AddCommand(
		newWorkflowCmd(o),
		newRunsCmd(o),
		newEngineCmd(o),
		newTaskCmd(o),
		newDBCmd(o),
		newDevServerCmd(o),
	)
	return cmd
}
