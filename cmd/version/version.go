package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/o2cms/cfmigrate/internal/buildinfo"
)

// Command creates a new command that prints build information.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Current().String())
			return err
		},
	}
}
