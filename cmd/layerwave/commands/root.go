package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/layerwave/layerwave/pkg/config"
	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/telemetry"
	"github.com/layerwave/layerwave/pkg/version"
)

var (
	// Global flags
	configPath string
	verbose    bool

	buildInfo struct {
		version, commit, date string
	}
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case engine.IsInput(err):
		return 2
	case engine.IsPolicyDenied(err):
		return 3
	default:
		return 1
	}
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildInfo.version, buildInfo.commit, buildInfo.date = version, commit, buildDate

	rootCmd := &cobra.Command{
		Use:   "layerwave",
		Short: "layerwave - upgrade wave planner for versioned infrastructure layers",
		Long: `layerwave computes an ordered sequence of upgrade waves that moves
independently versioned infrastructure layers toward a target version.

Features:
  - Recipe catalogs in YAML, JSON or CUE
  - Version buckets that cap how far one run may go
  - Manual gates with migration guides and prechecks
  - OPA policies over computed plans
  - HTTP planning endpoint with hot-reloaded catalogs
  - SQLite archive of computed plans`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// runtime bundles what every command needs once settings are loaded.
type runtime struct {
	settings  *Settings
	telemetry *telemetry.Telemetry
	parser    *config.Parser
}

func newRuntime() (*runtime, error) {
	settings, err := LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Log.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(settings.TelemetryConfig(buildInfo.version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise telemetry: %w", err)
	}

	return &runtime{
		settings:  settings,
		telemetry: tel,
		parser:    config.NewParser(config.WithParserLogger(tel.Logger.Zerolog())),
	}, nil
}

func (r *runtime) close() {
	_ = r.telemetry.Shutdown(context.Background())
}

// catalogPath prefers the flag over the settings file.
func (r *runtime) catalogPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if r.settings.Catalog != "" {
		return r.settings.Catalog, nil
	}
	return "", engine.NewInputFormatError("no catalog given (use --catalog or the catalog setting)", nil).WithField("catalog")
}

// policyPaths merges flag paths with configured ones.
func (r *runtime) policyPaths(flags []string) []string {
	paths := make([]string, 0, len(flags)+len(r.settings.Policies))
	paths = append(paths, r.settings.Policies...)
	return append(paths, flags...)
}

// resolveTarget applies the flag, then the layers document, then the
// catalog and finally the settings default.
func (r *runtime) resolveTarget(flag string, fromLayers *version.Version, cat *config.Catalog) (version.Version, error) {
	target, err := config.ResolveTarget(flag, fromLayers, cat)
	if err != nil && flag == "" && fromLayers == nil && r.settings.Target != "" {
		return config.ResolveTarget(r.settings.Target, nil, nil)
	}
	return target, err
}
