package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/cfgtree/pkg/config"
	"github.com/openfroyo/cfgtree/pkg/engine"
	"github.com/openfroyo/cfgtree/pkg/schema"
	"github.com/openfroyo/cfgtree/pkg/telemetry"
)

// Exit codes returned by the cfgtree binary.
const (
	ExitFailure           = 1
	ExitSchemaError       = 2
	ExitResolutionFailure = 3
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	projectDir        string
	configPath        string
	features          []string
	noDefaultFeatures bool
	noHistory         bool
	verbose           bool
	jsonOutput        bool
	traceExporter     string
	traceEndpoint     string

	version  string
	tel      *telemetry.Telemetry
	registry *config.SchemaRegistry
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	opts := &globalOptions{version: version}
	rootCmd := newRootCommand(opts, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	if opts.tel != nil {
		if serr := opts.tel.Shutdown(context.WithoutCancel(ctx)); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case schema.IsSchemaError(err):
		return ExitSchemaError
	case engine.IsResolutionFailure(err):
		return ExitResolutionFailure
	default:
		return ExitFailure
	}
}

func newRootCommand(opts *globalOptions, commit, buildDate string) *cobra.Command {
	version := opts.version

	rootCmd := &cobra.Command{
		Use:   "cfgtree",
		Short: "cfgtree - hierarchical build configuration resolver",
		Long: `cfgtree resolves user configuration against the option trees declared by
the components of a project.

Each component ships a definition document (cfgtree.def.toml or .yaml)
declaring typed options, menus, defaults, depends clauses and valid clauses.
cfgtree merges them, checks the dependency graph, and resolves the user's
config.toml into a typed configuration with a diagnostic for every problem.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setupTelemetry(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.projectDir, "project", "p", ".", "project root directory")
	flags.StringVarP(&opts.configPath, "config", "c", "", "user configuration file (default <project>/config.toml)")
	flags.StringSliceVar(&opts.features, "features", nil, "comma separated features to activate")
	flags.BoolVar(&opts.noDefaultFeatures, "no-default-features", false, "do not activate the project's default features")
	flags.BoolVar(&opts.noHistory, "no-history", false, "do not record resolutions in the history database")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	flags.StringVar(&opts.traceExporter, "trace", telemetry.ExporterNone, "trace exporter (none, stdout, otlp)")
	flags.StringVar(&opts.traceEndpoint, "trace-endpoint", "", "OTLP collector address")

	rootCmd.AddCommand(newCheckCommand(opts))
	rootCmd.AddCommand(newMenuCommand(opts))
	rootCmd.AddCommand(newInitCommand(opts))
	rootCmd.AddCommand(newShowCommand(opts))
	rootCmd.AddCommand(newGraphCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// setupTelemetry builds the process telemetry from the flags and stores it in
// the command context.
func (o *globalOptions) setupTelemetry(cmd *cobra.Command) error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = o.version
	if o.verbose {
		cfg.Logging.Level = "debug"
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if o.jsonOutput {
		cfg.Logging.Format = "json"
	}
	if o.traceExporter != telemetry.ExporterNone {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = o.traceExporter
		cfg.Tracing.Endpoint = o.traceEndpoint
	}
	cfg.ApplyEnv(os.Getenv)

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	o.tel = tel

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(tel.WithContext(ctx))
	return nil
}
