package cmd

import (
	"github.com/spf13/cobra"
)

var unselectCmd = &cobra.Command{
	Use:   "unselect REQUEST...",
	Short: "Remove requests from their staging projects",
	Long:  `Remove requests from their staging projects, pushing them back to the backlog.`,
	Args:  argRange(1, -1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		_, err := a.svc.Unselect(cmd.Context(), args)
		return err
	}),
}

func init() {
	rootCmd.AddCommand(unselectCmd)
}
