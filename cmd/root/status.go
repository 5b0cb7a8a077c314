package root

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/officedev/addin-telemetry/pkg/optin"
	"github.com/officedev/addin-telemetry/pkg/telemetryconfig"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [group]",
		Short: "Show the recorded telemetry opt-in values",
		Long:  "List every group recorded in the telemetry opt-in file, or show the state of a single group.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.telemetryFile()
			out := cmd.OutOrStdout()

			doc, err := telemetryconfig.Read(path)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				doc = telemetryconfig.New()
			case err != nil:
				return err
			}

			if len(args) == 1 {
				enabled, ok := doc.Enabled(args[0])
				if !ok {
					fmt.Fprintf(out, "%s: %s\n", args[0], optin.Unknown)
					return nil
				}
				fmt.Fprintf(out, "%s: %s\n", args[0], onOff(enabled))
				return nil
			}

			groups := doc.Groups()
			if len(groups) == 0 {
				fmt.Fprintf(out, "No telemetry preferences recorded in %s\n", path)
				return nil
			}
			for _, group := range groups {
				enabled, _ := doc.Enabled(group)
				fmt.Fprintf(out, "%s: %s\n", group, onOff(enabled))
			}
			return nil
		},
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
