package root

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/officedev/addin-telemetry/pkg/optin"
	"github.com/officedev/addin-telemetry/pkg/prompt"
	"github.com/officedev/addin-telemetry/pkg/telemetry"
)

func newSetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "set <group> on|off",
		Short:     "Record the telemetry opt-in value of a group",
		Long:      "Record the telemetry opt-in value of a group, replacing any value already stored for it. Other groups are left untouched.",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := parseOnOff(args[1])
			if err != nil {
				return err
			}

			res, err := optin.Record(optin.Request{
				GroupName: args[0],
				Path:      flags.telemetryFile(),
			}, answer)
			if err != nil {
				return err
			}

			prompt.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout()).Confirm(res.Enabled)
			return nil
		},
	}
}

// parseOnOff maps a value to the prompt answer it stands for.
func parseOnOff(value string) (string, error) {
	switch strings.ToLower(value) {
	case "on", "true", "y", "yes":
		return "y", nil
	case "off", "false", "n", "no":
		return "n", nil
	default:
		return "", fmt.Errorf("invalid value %q: expected on or off", value)
	}
}

func newOptInCmd(flags *rootFlags) *cobra.Command {
	var projectName string

	cmd := &cobra.Command{
		Use:   "optin <group>",
		Short: "Ask whether to send usage data and record the answer",
		Long:  "Prompt on the terminal whether usage data may be collected for a group and record the answer, replacing any value already stored for it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group := args[0]
			if projectName == "" {
				projectName = group
			}

			_, err := optin.Ask(cmd.Context(), optin.Request{
				GroupName: group,
				Path:      flags.telemetryFile(),
				Question:  telemetry.DefaultPromptQuestion(projectName),
			}, prompt.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout()))
			return err
		},
	}
	cmd.Flags().StringVarP(&projectName, "project", "p", "", "Project name shown in the question (default: the group name)")

	return cmd
}
