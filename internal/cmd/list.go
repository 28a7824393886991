package cmd

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [REQUEST...]",
	Short: "List the backlog of requests not in any staging",
	Long: `List the open requests that are not staged yet, grouped by devel project.

Ignored requests are shown together with their ignore message. Role and devel
changes are left out. Request ids or package names restrict the listing to
those requests.`,
	Args: argRange(0, -1),
	RunE: withApp(runList),
}

var listSupersede bool

func init() {
	listCmd.Flags().BoolVar(&listSupersede, "supersede", false, "show requests that would supersede staged ones")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, a *app, args []string) error {
	listing, err := a.svc.List(cmd.Context(), args, listSupersede)
	if err != nil {
		return err
	}
	renderListing(cmd.OutOrStdout(), a.cfg.Project, listing)
	return nil
}
