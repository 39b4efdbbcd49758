package cli

import (
	"fmt"

	"pctasks/app/engine/client"

	"github.com/spf13/cobra"
)

func newWorkflowCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "manage workflow documents",
	}
	cmd.AddCommand(newWorkflowSubmitCmd(o))
	return cmd
}

func newWorkflowSubmitCmd(o *options) *cobra.Command {
	var (
		argPairs []string
		argsFile string
	)
	cmd := &cobra.Command{
		Use:   "submit PATH",
		Short: "submit a workflow document and print the run id",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wfArgs, err := client.ParseArguments(argsFile, argPairs)
			if err != nil {
				return err
			}
			return o.withClient(cmd.Context(), func(c *client.Client) error {
				runID, err := c.SubmitWorkflow(cmd.Context(), args[0], wfArgs)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), runID)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&argPairs, "arg", "a", nil, "workflow argument as name=value, repeatable")
	cmd.Flags().StringVar(&argsFile, "args-file", "", "YAML or JSON file of workflow arguments")
	return cmd
}
