package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/usefultools/toolbox/internal/domain/plugin"
)

var installCmd = &cobra.Command{
	Use:   "install <id|package>",
	Short: "Install a plugin",
	Long: `Install the latest release of a plugin.

The argument is either a plugin id from the registry catalog, or a package
name, in which case every plugin of the package is installed. Installing a
plugin that is already installed replaces it.

Examples:
  usefultools install json
  usefultools install usefultools-plugin-official`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <id>",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove an installed plugin",
	Args:    cobra.ExactArgs(1),
	RunE:    runUninstall,
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed plugins",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var bundlePathCmd = &cobra.Command{
	Use:   "bundle-path <id>",
	Short: "Print the bundle path of an installed plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runBundlePath,
}

var readBundleCmd = &cobra.Command{
	Use:   "read-bundle <id>",
	Short: "Print the bundle source of an installed plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runReadBundle,
}

var updatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "Show installed plugins whose registry version differs",
	Long: `Compare installed plugins against the registry catalog.

Any difference between the installed and the published version string is
reported; the direction column tells upgrades from downgrades when both
versions are semantic versions. Uses the catalog cache like 'registry'.`,
	Args: cobra.NoArgs,
	RunE: runUpdates,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete leftovers of interrupted installs",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(bundlePathCmd)
	rootCmd.AddCommand(readBundleCmd)
	rootCmd.AddCommand(updatesCmd)
	rootCmd.AddCommand(pruneCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	descs, err := rt.manager.FindInstallable(ctx, args[0])
	if err != nil {
		return err
	}

	installed := make([]plugin.Installed, 0, len(descs))
	for _, d := range descs {
		inst, err := rt.manager.Install(ctx, d)
		if err != nil {
			return fmt.Errorf("failed to install %s: %w", d.ID, err)
		}
		installed = append(installed, *inst)
	}

	return render(cmd.OutOrStdout(), installed, func(tw *tabwriter.Writer) {
		for _, p := range installed {
			_, _ = fmt.Fprintf(tw, "Installed %s %s\t%s\n", p.Meta.ID, p.Meta.Version, p.LocalBundlePath)
		}
	})
}

func runUninstall(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	if err := rt.manager.Uninstall(cmd.Context(), args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	plugins, err := rt.manager.ListInstalled(cmd.Context())
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), plugins, installedTable(plugins))
}

func runBundlePath(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	path, err := rt.manager.BundlePath(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runReadBundle(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	src, err := rt.manager.ReadBundle(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), src)
	return nil
}

func runUpdates(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	updates, err := rt.manager.Updates(cmd.Context())
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), updates, func(tw *tabwriter.Writer) {
		if len(updates) == 0 {
			_, _ = fmt.Fprintln(tw, "All plugins are up to date.")
			return
		}
		_, _ = fmt.Fprintln(tw, "ID\tINSTALLED\tAVAILABLE\tDIRECTION")
		for _, u := range updates {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Installed, u.Available.Version, u.Direction)
		}
	})
}

func runPrune(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	removed, err := rt.manager.Prune(cmd.Context())
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), removed, func(tw *tabwriter.Writer) {
		if len(removed) == 0 {
			_, _ = fmt.Fprintln(tw, "Nothing to prune.")
			return
		}
		for _, name := range removed {
			_, _ = fmt.Fprintf(tw, "Removed %s\n", name)
		}
	})
}
