package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/usefultools/toolbox/internal/adapters/logging"
	"github.com/usefultools/toolbox/internal/adapters/metrics"
	"github.com/usefultools/toolbox/internal/app"
	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/paths"
	"github.com/usefultools/toolbox/internal/ports"
)

var (
	// Global flags
	dataDirFlag  string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "usefultools",
	Short: "Plugin registry and installer for usefultools",
	Long: `usefultools discovers plugins published to an npm-compatible registry,
installs their bundles into the local plugin directory, and serves the
installed plugins to the usefultools shell.

Plugins are npm packages named usefultools-plugin* that ship a plugin.json
manifest and one .mjs bundle per tool.`,
	SilenceErrors: true, // We handle error formatting ourselves
	SilenceUsage:  true, // Don't show usage on error
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return validateOutputFormat(outputFormat)
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "application data directory (default: per-OS data dir, or USEFULTOOLS_DATA_DIR)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")

	registerFlagCompletions()

	rootCmd.AddCommand(versionCmd)
}

// runtime is the wiring shared by every command.
type runtime struct {
	env     config.Environment
	dataDir string
	logger  ports.Logger
	metrics *metrics.Prometheus
	manager *app.Manager
}

// loadRuntime reads an optional .env file and USEFULTOOLS_* variables and
// wires a Manager over the resolved data directory.
func loadRuntime() (*runtime, error) {
	if err := config.LoadDotenv(".env"); err != nil {
		return nil, err
	}
	env, err := config.LoadEnvironment()
	if err != nil {
		return nil, err
	}

	level, err := ports.ParseLevel(env.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid USEFULTOOLS_LOG_LEVEL: %w", err)
	}
	if verbose {
		level = ports.LevelDebug
	}
	logger, err := logging.New(env.LogFormat, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	override := dataDirFlag
	if override == "" {
		override = env.DataDir
	}
	dataDir, err := paths.NewFinder().DataDir(override)
	if err != nil {
		return nil, err
	}

	m := metrics.NewPrometheus()
	manager := app.New(app.Options{
		DataDir:     dataDir,
		HTTPTimeout: env.HTTPTimeout,
		CacheTTL:    env.CacheTTL,
		UserAgent:   "usefultools/" + version,
		Logger:      logger,
		Metrics:     m,
	})

	return &runtime{
		env:     env,
		dataDir: dataDir,
		logger:  logger,
		metrics: m,
		manager: manager,
	}, nil
}

// formatError returns a user-friendly error message with a suggestion for
// the failure kind. With verbose=true the kind is shown as well.
func formatError(err error) string {
	msg := err.Error()
	kind := fault.KindOf(err)

	switch kind {
	case fault.KindTransport:
		msg += "\n\nSuggestion: check your network connection and the registry URL (usefultools config get)"
	case fault.KindNotFound:
		msg += "\n\nSuggestion: run 'usefultools registry' to see the available plugins"
	case fault.KindIO:
		msg += "\n\nSuggestion: check permissions of the data directory, then run 'usefultools prune'"
	}

	if verbose && kind != "" {
		msg += fmt.Sprintf("\n\nKind: %s", kind)
	}
	return msg
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", formatError(err))
}

// registerFlagCompletions sets up custom completions for global flags.
func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"table\tHuman-readable table",
			"json\tJSON for scripting",
			"yaml\tYAML",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	_ = rootCmd.MarkPersistentFlagDirname("data-dir")
}
