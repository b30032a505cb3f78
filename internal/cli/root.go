// Package cli provides the geuebt command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"geuebt/internal/config"
	"geuebt/internal/logging"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

// NewRootCommand creates the geuebt root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "geuebt",
		Short: "geuebt - isolate metadata registry",
		Long: `geuebt stores isolate sheets, assembly sequences, cluster assignments and
QC run reports for bacterial genomic surveillance. Isolates are admitted only
when their QC metrics satisfy the organism-specific thresholds.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default: ./geuebt.yaml)")
	pf.String("host", "", "HTTP listen host")
	pf.Int("port", 0, "HTTP listen port")
	pf.String("max-body-size", "", "request body limit, e.g. 64MiB")
	pf.String("storage-driver", "", "document store (memory|sqlite|postgres|badger|mongo)")
	pf.String("sqlite-path", "", "sqlite database file")
	pf.String("postgres-dsn", "", "postgres connection string")
	pf.String("badger-dir", "", "badger data directory")
	pf.String("mongo-uri", "", "mongodb connection URI")
	pf.String("mongo-database", "", "mongodb database name")
	pf.String("blob-driver", "", "sequence blob store (fs|memory|s3)")
	pf.String("blob-root", "", "root directory of the fs blob driver")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-format", "", "log format (tint|text|json)")
	pf.Bool("metrics", true, "expose Prometheus metrics")

	_ = cmd.RegisterFlagCompletionFunc("storage-driver", fixedCompletion(config.StorageDrivers...))
	_ = cmd.RegisterFlagCompletionFunc("blob-driver", fixedCompletion("fs", "memory", "s3"))
	_ = cmd.RegisterFlagCompletionFunc("log-level", fixedCompletion("debug", "info", "warn", "error"))
	_ = cmd.RegisterFlagCompletionFunc("log-format", fixedCompletion(logging.FormatTint, logging.FormatText, logging.FormatJSON))

	cmd.AddCommand(
		NewServeCommand(opts),
		NewValidateCommand(),
		NewMigrateCommand(opts),
		NewThresholdsCommand(),
		NewVersionCommand(Version),
	)
	return cmd
}

func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// load resolves the layered configuration for cmd and builds its logger.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	res, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := res.Config.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cmd.ErrOrStderr(), res.Config.Log.Level, res.Config.Log.Format)
	if err != nil {
		return config.Config{}, nil, err
	}
	if res.FileUsed != "" {
		logger.Debug("using config file", "path", res.FileUsed)
	}
	return res.Config, logger, nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
