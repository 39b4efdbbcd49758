package cli

import (
	"encoding/json"
	"fmt"

	"pctasks/app/engine/client"

	"github.com/spf13/cobra"
)

func newRunsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "inspect and steer workflow runs",
	}
	cmd.AddCommand(
		newRunsStatusCmd(o),
		newRunsListCmd(o),
		newRunsCancelCmd(o),
		newRunsResumeCmd(o),
	)
	return cmd
}

func newRunsStatusCmd(o *options) *cobra.Command {
	var showLog, asJSON bool
	cmd := &cobra.Command{
		Use:   "status RUN_ID",
		Short: "show a run with its jobs, partitions and tasks",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return o.withClient(ctx, func(c *client.Client) error {
				status, err := c.Status(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(status)
				}
				if err := RenderStatus(out, status); err != nil {
					return err
				}
				if !showLog {
					return nil
				}
				for _, p := range status.Partitions {
					for _, t := range p.Tasks {
						text, err := c.TaskLog(ctx, t)
						if err != nil {
							return err
						}
						if text == "" {
							continue
						}
						fmt.Fprintf(out, "\n--- %s/%s/%s ---\n%s", p.JobID, p.PartitionID, t.TaskID, text)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showLog, "log", false, "print each task's log")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	return cmd
}

func newRunsListCmd(o *options) *cobra.Command {
	var (
		workflowID string
		statuses   []string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list runs, newest first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return o.withClient(ctx, func(c *client.Client) error {
				runs, err := c.List(ctx, workflowID, statuses, limit)
				if err != nil {
					return err
				}
				return RenderList(cmd.OutOrStdout(), runs)
			})
		},
	}
	cmd.Flags().StringVar(&workflowID, "workflow", "", "only runs of this workflow")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only runs with these statuses")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs, 0 for all")
	return cmd
}

func newRunsCancelCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel RUN_ID",
		Short: "cancel a run",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(c *client.Client) error {
				return c.Cancel(cmd.Context(), args[0])
			})
		},
	}
}

func newRunsResumeCmd(o *options) *cobra.Command {
	var jobID, partitionID string
	cmd := &cobra.Command{
		Use:   "resume RUN_ID TASK_ID",
		Short: "wake a waiting task",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(c *client.Client) error {
				return c.Resume(cmd.Context(), args[0], args[1], jobID, partitionID)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "only the task in this job")
	cmd.Flags().StringVar(&partitionID, "partition", "", "only the task in this partition")
	return cmd
}
