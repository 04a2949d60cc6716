package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/usefultools/toolbox/internal/domain/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the registry configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the configured registry",
	Args:  cobra.NoArgs,
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <registry-url>",
	Short: "Set the registry base URL",
	Long: `Set the base URL of the npm-compatible registry plugins are fetched from.

Changing the registry discards the cached catalog.

Examples:
  usefultools config set https://registry.npmjs.org
  usefultools config set https://npm.internal.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigGet(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	cfg := rt.manager.GetConfig(cmd.Context())
	return render(cmd.OutOrStdout(), cfg, func(tw *tabwriter.Writer) {
		_, _ = fmt.Fprintf(tw, "registry\t%s\n", cfg.RegistryURL)
		_, _ = fmt.Fprintf(tw, "plugins\t%s\n", rt.manager.Root())
	})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	if err := rt.manager.SetConfig(cmd.Context(), config.Config{RegistryURL: args[0]}); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Registry set to %s\n", rt.manager.GetConfig(cmd.Context()).RegistryURL)
	return nil
}
