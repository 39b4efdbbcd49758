package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pctasks/app/blob"
	"pctasks/app/db"
	"pctasks/app/engine/server"
	"pctasks/app/executor"
	"pctasks/app/objects"
	"pctasks/app/store"
	"pctasks/app/taskrun"
	"pctasks/pkg/log"
	"pctasks/plugins"
	"pctasks/web/handles"

	"github.com/spf13/cobra"
)

func newEngineCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "engine",
		Short: "consume the workflow queues and drive runs",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			components, err := o.open(ctx)
			if err != nil {
				return err
			}
			defer components.Close()
			runner, err := components.NewRunner()
			if err != nil {
				return err
			}
			log.Infof(ctx, "engine started with runner %s", runner.Executor.Kind())
			return server.NewEngineServer(components, runner).Start(ctx)
		},
	}
}

func newTaskCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "task harness commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run MESSAGE",
		Short: "run one encoded task message, as executors do inside task containers",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			msg, err := objects.DecodeTaskRunMessage(args[0])
			if err != nil {
				return objects.NewUserError("invalid task message: %s", err)
			}
			cfg, err := o.load()
			if err != nil {
				return err
			}
			blobs, err := blob.New(ctx, cfg.Blob)
			if err != nil {
				return err
			}
			harness := &taskrun.Harness{Blobs: blobs}
			if conn, err := db.Open(cfg.RecordStore); err != nil {
				log.Warnf(ctx, "record store unavailable, item records are disabled: %s", err)
			} else {
				defer db.Close(conn)
				harness.Records = store.NewContainers(store.New(conn))
			}
			plugins.RegisterBuiltinTasks()
			result, err := harness.Run(ctx, msg, environ())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Status)
			return nil
		},
	})
	return cmd
}

func environ() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			env[name] = value
		}
	}
	return env
}

func newDBCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "record store maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "create or update the record store tables",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			conn, err := db.Open(cfg.RecordStore)
			if err != nil {
				return err
			}
			defer db.Close(conn)
			if err := db.Migrate(conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "record store is up to date")
			return nil
		},
	})
	return cmd
}

func newDevServerCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devserver",
		Short: "serve the dev task endpoint used by the local runner",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			components, err := o.open(ctx)
			if err != nil {
				return err
			}
			defer components.Close()
			plugins.RegisterBuiltinTasks()
			harness := &taskrun.Harness{Blobs: components.Blobs, Records: components.Records}
			router := handles.NewRouter(handles.NewTaskHandles(executor.NewLocalExecutor(harness)))
			return serve(ctx, fmt.Sprintf("%s:%d", components.Config.Server.Host, components.Config.Server.Port), router)
		},
	}
}

// serve runs an HTTP server until ctx is done, then shuts it down.
func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Infof(ctx, "listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
