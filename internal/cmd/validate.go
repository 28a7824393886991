package cmd

import (
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [REQUEST...]",
	Short: "Run admission checks on requests",
	Long: `Check requests against the submission policy and record the verdicts.

Each submission must come from its devel project, build under the name of
the target package and pass the diff classifier. Accepted requests get the
configured review team when the change is large or of unknown size, and the
repo checker. Requests that cannot be checked right now stay pending.

Without arguments every open request is checked.`,
	Args: argRange(0, -1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		_, err := a.svc.Validate(cmd.Context(), args)
		return err
	}),
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
