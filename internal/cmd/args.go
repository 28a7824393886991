package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/stagectl/internal/errors"
)

// argRange validates the positional argument count before anything is
// loaded. A negative max means no upper bound.
func argRange(min, max int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min {
			return errors.NewValidationError("Too few arguments.")
		}
		if max >= 0 && len(args) > max {
			return errors.NewValidationError("Too many arguments.")
		}
		return nil
	}
}
