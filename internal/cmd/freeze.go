package cmd

import (
	"github.com/spf13/cobra"
)

var freezeCmd = &cobra.Command{
	Use:   "freeze [--no-bootstrap] PROJECT...",
	Short: "Freeze staging projects",
	Long:  `Record the freeze time of staging projects and start building them.`,
	Args:  argRange(1, -1),
	RunE:  withApp(runFreeze),
}

var frozenAgeCmd = &cobra.Command{
	Use:   "frozenage PROJECT...",
	Short: "Show when staging projects were last frozen",
	Args:  argRange(1, -1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		_, err := a.svc.FrozenAge(cmd.Context(), args)
		return err
	}),
}

var freezeNoBootstrap bool

func init() {
	freezeCmd.Flags().BoolVar(&freezeNoBootstrap, "no-bootstrap", false, "do not seed the stagings from the bootstrap baseline")
	rootCmd.AddCommand(freezeCmd)
	rootCmd.AddCommand(frozenAgeCmd)
}

func runFreeze(cmd *cobra.Command, a *app, args []string) error {
	return a.svc.Freeze(cmd.Context(), args, !freezeNoBootstrap)
}
