package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/officedev/addin-telemetry/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  `Display the version and commit hash`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "addin-telemetry version %s\n", version.Version)
			fmt.Fprintf(out, "Commit: %s\n", version.Commit)
		},
	}
}
