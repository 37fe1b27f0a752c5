package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCmd prints build metadata.
func NewVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the armlab version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "armlab %s\n", version)
		},
	}
}
