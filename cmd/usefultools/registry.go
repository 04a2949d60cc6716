package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/ports"
)

var registryRefresh bool

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "List plugins published to the registry",
	Long: `List every plugin published to the configured registry.

The catalog is cached in the data directory for one hour. Use --refresh to
query the registry regardless of the cache. When the registry cannot be
reached, the last cached catalog is shown even if it has expired.

Examples:
  usefultools registry
  usefultools registry --refresh -o json`,
	Args: cobra.NoArgs,
	RunE: runRegistry,
}

var registryClearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Delete the cached registry catalog",
	Args:  cobra.NoArgs,
	RunE:  runRegistryClearCache,
}

var packageCmd = &cobra.Command{
	Use:   "package <name>",
	Short: "Show the plugins of one registry package",
	Long: `Resolve one registry package directly, bypassing the catalog cache.

Only packages whose name starts with usefultools-plugin (optionally scoped)
are accepted.

Examples:
  usefultools package usefultools-plugin-official
  usefultools package @acme/usefultools-plugin-tools`,
	Args: cobra.ExactArgs(1),
	RunE: runPackage,
}

func init() {
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(packageCmd)
	registryCmd.AddCommand(registryClearCacheCmd)

	registryCmd.Flags().BoolVar(&registryRefresh, "refresh", false, "ignore the catalog cache")
}

func runRegistry(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	plugins, outcome, err := rt.manager.FetchRegistryWithOutcome(cmd.Context(), registryRefresh)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := render(out, plugins, descriptorTable(plugins)); err != nil {
		return err
	}
	if outputFormat == formatTable {
		printCacheNote(cmd, rt.manager.CacheSnapshot, outcome)
	}
	return nil
}

// printCacheNote tells table readers when the catalog came from the cache.
func printCacheNote(cmd *cobra.Command, snapshot func() (registry.Snapshot, bool), outcome string) {
	snap, ok := snapshot()
	if !ok {
		return
	}
	fetched := time.UnixMilli(snap.FetchedAt).Local().Format(time.DateTime)
	switch outcome {
	case ports.CacheHit:
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n(cached %s; use --refresh to update)\n", fetched)
	case ports.CacheStale:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\nWarning: registry unreachable, showing catalog cached %s\n", fetched)
	}
}

func runRegistryClearCache(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	if err := rt.manager.ClearCache(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Registry cache cleared.")
	return nil
}

func runPackage(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	plugins, err := rt.manager.FetchPackage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), plugins, descriptorTable(plugins))
}
