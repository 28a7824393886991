package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Iron-Ham/stagectl/internal/staging"
)

var selectCmd = &cobra.Command{
	Use:   "select [STAGING...] [REQUEST...]",
	Short: "Add requests to staging projects",
	Long: `Add requests to staging projects.

Stagings may be given by short name (A, Gcc7, adi:1) or by full project name.
Requests may be given by id or by target package name. An argument matching
an existing staging is taken as a staging.

With exactly one staging, a request list and no --filter-by or --group-by the
requests are placed into that staging directly; --move takes them out of the
staging they are in, restricted to --from when given.

Otherwise a proposal is built from the backlog, restricted to the given
requests and stagings, shown for confirmation and committed group by group.
Without requests or filters, role and devel changes and ignored requests are
left out.

Filter expressions compare request fields:
  --filter-by 'package ^= "yast-"'
  --filter-by 'devel_project = "YaST:Head"'
  --filter-by 'ring ~ "1*"'
  --filter-by 'id != 1234567'

Group-by keys name a field:
  --group-by devel_project
  --group-by ring

Examples:
  stagectl select A 123 456
  stagectl select --move --from B A gcc
  stagectl select --group-by devel_project A B C 123 456 789
  stagectl select --interactive`,
	Args: argRange(0, -1),
	RunE: withApp(runSelect),
}

var selectOpts staging.SelectOptions

func init() {
	addSelectFlags(selectCmd.Flags(), &selectOpts)
	rootCmd.AddCommand(selectCmd)
}

func addSelectFlags(fs *pflag.FlagSet, opts *staging.SelectOptions) {
	fs.BoolVar(&opts.Move, "move", false, "force the selection to become a move")
	fs.StringVarP(&opts.From, "from", "f", "", "only move requests currently in this staging")
	fs.StringArrayVar(&opts.FilterBy, "filter-by", nil, "expression by which to filter requests (repeatable)")
	fs.StringArrayVar(&opts.GroupBy, "group-by", nil, "field by which to group requests (repeatable)")
	fs.BoolVarP(&opts.Interactive, "interactive", "i", false, "edit the proposal before it is applied")
	fs.BoolP("yes", "y", false, "apply the proposal without asking")
}

func runSelect(cmd *cobra.Command, a *app, args []string) error {
	opts := selectOpts
	opts.Args = args
	_, err := a.svc.Select(cmd.Context(), opts)
	return err
}
