package cmd

import (
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Load requests and stagings into the local catalog",
	Long: `Load a YAML fixture of requests, stagings, devel relationships, links and
rings into the catalog database. Existing rows are updated.`,
	Args: argRange(1, 1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return a.svc.Seed(cmd.Context(), args[0])
	}),
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
