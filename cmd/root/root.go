package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/officedev/addin-telemetry/pkg/logging"
	"github.com/officedev/addin-telemetry/pkg/paths"
)

const (
	description        = "This package allows for sending telemetry event and exception data to the selected telemetry infrastructure (e.g. ApplicationInsights)."
	invalidCommandText = "The command syntax is not valid."
)

// ErrInvalidCommand is returned for an unrecognized subcommand.
var ErrInvalidCommand = errors.New("invalid command")

// envConfig holds the environment overrides. Flags take precedence.
type envConfig struct {
	File    string `env:"ADDIN_TELEMETRY_FILE"`
	Debug   bool   `env:"ADDIN_TELEMETRY_DEBUG"`
	LogFile string `env:"ADDIN_TELEMETRY_LOG_FILE"`
}

type rootFlags struct {
	debugMode   bool
	verbose     bool
	logFilePath string
	file        string
	logFile     io.Closer
	envErr      error
}

// telemetryFile returns the opt-in file the subcommands operate on.
func (f *rootFlags) telemetryFile() string {
	if file := strings.TrimSpace(f.file); file != "" {
		return file
	}
	return paths.DefaultTelemetryJSONFile()
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		flags.envErr = fmt.Errorf("invalid environment: %w", err)
	}

	cmd := &cobra.Command{
		Use:   "addin-telemetry",
		Short: "Manage telemetry opt-in for Office Add-in tools",
		Long:  description,
		Example: `  addin-telemetry status
  addin-telemetry set generator-office off
  addin-telemetry optin generator-office`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.envErr != nil {
				return flags.envErr
			}
			if err := flags.setupLogging(cmd.ErrOrStderr()); err != nil {
				// Fall back to stderr so we still get logs
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug})))
				slog.Warn("Failed to open debug log file", "error", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logFile != nil {
				if err := flags.logFile.Close(); err != nil {
					slog.Error("Failed to close log file", "error", err)
				}
			}
			return nil
		},
		// If no subcommand is specified, show help
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", cfg.Debug, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Print logs to stderr")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", cfg.LogFile, "Path to debug log file (default: ~/.addin-telemetry/addin-telemetry.debug.log)")
	cmd.PersistentFlags().StringVarP(&flags.file, "file", "f", cfg.File, "Path to the telemetry opt-in file (default: ~/officeAddinTelemetry.json)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatusCmd(&flags))
	cmd.AddCommand(newSetCmd(&flags))
	cmd.AddCommand(newOptInCmd(&flags))

	return cmd
}

func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	rootCmd := NewRootCmd()
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return processErr(ctx, err, stderr, rootCmd)
	}
	return nil
}

func processErr(ctx context.Context, err error, stderr io.Writer, rootCmd *cobra.Command) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if strings.HasPrefix(err.Error(), "unknown command ") {
		fmt.Fprintln(stderr, invalidCommandText)
		fmt.Fprintln(stderr)
		fmt.Fprint(stderr, rootCmd.UsageString())
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	fmt.Fprintln(stderr, err)
	if strings.HasPrefix(err.Error(), "accepts ") || strings.HasPrefix(err.Error(), "unknown flag") {
		fmt.Fprintln(stderr)
		fmt.Fprint(stderr, rootCmd.UsageString())
	}
	return err
}

// setupLogging configures slog logging behavior.
// Logs are discarded unless --verbose prints them to stderr or --debug
// writes them to a rotating file, <dataDir>/addin-telemetry.debug.log or the
// file given by --log-file.
func (f *rootFlags) setupLogging(stderr io.Writer) error {
	logFile, err := logging.Setup(logging.Options{
		Debug:   f.debugMode,
		Verbose: f.verbose,
		LogFile: f.logFilePath,
		Stderr:  stderr,
	})
	if err != nil {
		return err
	}
	f.logFile = logFile
	return nil
}
