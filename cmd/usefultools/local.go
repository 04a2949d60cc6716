package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Inspect plugins under development",
	Long: `Read plugins from a local source directory without installing them.

Used while developing a plugin: the shell loads the bundle straight from
the working tree.`,
}

var localBundleCmd = &cobra.Command{
	Use:   "bundle <path.mjs>",
	Short: "Print a local .mjs bundle",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocalBundle,
}

var localManifestCmd = &cobra.Command{
	Use:   "manifest <dir>",
	Short: "Show the plugins declared by a local plugin.json",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocalManifest,
}

func init() {
	rootCmd.AddCommand(localCmd)
	localCmd.AddCommand(localBundleCmd)
	localCmd.AddCommand(localManifestCmd)
}

func runLocalBundle(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	src, err := rt.manager.ReadLocalBundle(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), src)
	return nil
}

func runLocalManifest(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	plugins, err := rt.manager.ReadLocalManifest(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), plugins, descriptorTable(plugins))
}
