// Package cli implements the dclake command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"dclake/internal/app"
	"dclake/internal/config"
	"dclake/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rt := &cliState{stderr: stderr}
	rootCmd := newRootCmd(rt)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if cerr := rt.close(); err == nil && cerr != nil {
		err = fmt.Errorf("close: %w", cerr)
	}
	if errors.Is(err, errSilent) {
		return 1
	}
	if err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]interface{}{
				"error": err.Error(),
			}
			if kind := errorKind(err); kind != "" {
				errObj["kind"] = kind
			}
			_ = printJSON(stdout, errObj)
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errSilent fails the command after it already reported the failure.
var errSilent = errors.New("command failed")

// errorKind classifies domain errors for machine-readable output.
func errorKind(err error) string {
	var (
		notFound       *domain.NotFoundError
		validation     *domain.ValidationError
		conflict       *domain.ConflictError
		resolution     *domain.ResolutionError
		notProcessed   *domain.NotProcessedError
		schemaMismatch *domain.SchemaMismatchError
	)
	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &resolution):
		return "resolution"
	case errors.As(err, &notProcessed):
		return "not_processed"
	case errors.As(err, &schemaMismatch):
		return "schema_mismatch"
	default:
		return ""
	}
}

// cliState carries the resolved global flags and the lazily wired App.
type cliState struct {
	configPath string
	output     string
	stderr     io.Writer

	app *app.App
}

// open loads configuration and wires the App on first use. Global flags set
// on the command line override the config file and the environment.
func (rt *cliState) open(cmd *cobra.Command) (*app.App, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadWithFlags(rt.configPath, cmd.Root().PersistentFlags())
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(rt.stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, w := range cfg.Warnings {
		logger.Warn("config", "warning", w)
	}
	if cfg.ConfigFile != "" {
		logger.Debug("loaded config", "file", cfg.ConfigFile)
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.app = a
	return a, nil
}

func (rt *cliState) close() error {
	if rt.app == nil {
		return nil
	}
	err := rt.app.Close()
	rt.app = nil
	return err
}

func newRootCmd(rt *cliState) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dclake",
		Short:         "Data collection ingestion and join engine",
		Long:          "Processes raw data collections into canonical tables and combines them with declarative joins.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv(config.EnvPrefix + "_OUTPUT"); v != "" {
					rt.output = v
				}
			}
			return validateOutputFormat(rt.output)
		},
	}

	rootCmd.PersistentFlags().StringVar(&rt.configPath, "config", "", "Config file (default ./dclake.yaml if present)")
	rootCmd.PersistentFlags().String("project", "", "Project YAML file")
	rootCmd.PersistentFlags().String("registry", "", "SQLite registry of files and table locations")
	rootCmd.PersistentFlags().String("store-uri", "", "Canonical table store (local path, s3://, gs:// or az://)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&rt.output, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newProcessCmd(rt))
	rootCmd.AddCommand(newJoinCmd(rt))
	rootCmd.AddCommand(newFilesCmd(rt))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
