package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
	traceRuns  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dnsb",
		Short: "DNS Builder - declarative DNS test topology compiler",
		Long: `DNS Builder compiles a declarative YAML description of a multi-container
DNS test topology into a ready-to-run directory tree: one build context per
service with its Dockerfile, configuration and generated zone data, plus a
docker-compose.yml tying the network together.

Features:
  - Reference graph with software:role templates and mixins
  - ${path} variable substitution across services
  - Behavior DSL (forward, hint, stub, master) for bind and unbound
  - Starlark hooks around the compile pipeline
  - Rego policy gate over the compiled plan
  - Incremental rebuilds backed by a SQLite cache`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "log in JSON format")
	rootCmd.PersistentFlags().BoolVar(&traceRuns, "trace", false, "emit compile spans to stdout")

	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newCacheCommand())

	return rootCmd
}

// newTelemetry builds the telemetry stack from the global flags.
func newTelemetry(metrics bool) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	cfg.Tracing.Enabled = traceRuns
	cfg.Metrics.Enabled = metrics
	return telemetry.NewTelemetry(cfg)
}
