package cmd

import (
	"github.com/spf13/cobra"
)

var ignoreCmd = &cobra.Command{
	Use:   "ignore [-m MESSAGE] REQUEST...",
	Short: "Hide requests from list and select until unignored",
	Long: `Hide requests from "list" and from proposals until they are unignored.

Requests must exist and target the project. When a message is given it is
stored with the ignore entry and added as a comment on the request.`,
	Args: argRange(1, -1),
	RunE: withApp(runIgnore),
}

var unignoreCmd = &cobra.Command{
	Use:   "unignore REQUEST...|all",
	Short: "Remove requests from the ignore list",
	Args:  argRange(1, -1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		_, err := a.svc.Unignore(cmd.Context(), args)
		return err
	}),
}

var ignoreMessage string

func init() {
	ignoreCmd.Flags().StringVarP(&ignoreMessage, "message", "m", "", "reason for ignoring the requests")
	rootCmd.AddCommand(ignoreCmd)
	rootCmd.AddCommand(unignoreCmd)
}

func runIgnore(cmd *cobra.Command, a *app, args []string) error {
	_, err := a.svc.Ignore(cmd.Context(), args, ignoreMessage)
	return err
}
