// Package cmd holds the auxiliary CLI subcommands attached to the
// humacli root.
package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/smolin/procwarden/internal/config"
)

// CreateValidateCmd builds the `validate` subcommand. It loads and checks
// an app spec file without starting anything.
func CreateValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <spec-file>",
		Short: "Validate an app spec file",
		Long:  `Load the app spec, check required fields, paths, and argument quoting, and report the effective configuration.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.LoadAppSpec(args[0])
			if err != nil {
				return fmt.Errorf("spec %s: %w", args[0], err)
			}

			argv, err := spec.Argv()
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Field", "Value")
			table.Append("Name", spec.Name)
			table.Append("Command", fmt.Sprintf("%v", argv))
			table.Append("Working Dir", spec.WorkingDir)
			table.Append("Auto Restart", fmt.Sprintf("%t", spec.AutoRestart))
			table.Append("Max Restarts", fmt.Sprintf("%d", spec.MaxRestarts))
			table.Append("Restart Delay", spec.RestartDelay().String())
			table.Append("Stop Grace Period", spec.StopGracePeriod().String())
			if spec.StableResetAfterMs > 0 {
				table.Append("Stable Reset After", spec.StableResetAfter().String())
			}
			table.Append("Watch", fmt.Sprintf("%t", spec.Watch))
			if spec.Watch {
				table.Append("Watch Paths", fmt.Sprintf("%v", spec.EffectiveWatchPaths()))
			}
			table.Render()

			fmt.Printf("\nSpec %s is valid\n", args[0])
			return nil
		},
	}
}
