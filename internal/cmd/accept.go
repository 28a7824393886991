package cmd

import (
	"github.com/spf13/cobra"
)

var acceptCmd = &cobra.Command{
	Use:   "accept [--force] [LETTER...]",
	Short: "Accept all requests in staging projects",
	Long: `Accept every request in the given staging projects and empty them.

Stagings must be in the acceptable state unless --force is given. Without
arguments every acceptable staging is accepted.`,
	Args: argRange(0, -1),
	RunE: withApp(runAccept),
}

var acceptForce bool

func init() {
	acceptCmd.Flags().BoolVar(&acceptForce, "force", false, "accept stagings that are not acceptable (CAUTION)")
	rootCmd.AddCommand(acceptCmd)
}

func runAccept(cmd *cobra.Command, a *app, args []string) error {
	_, err := a.svc.Accept(cmd.Context(), args, acceptForce)
	return err
}
