package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/usefultools/toolbox/internal/domain/archive"
	"github.com/usefultools/toolbox/internal/domain/fault"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <tarball> [entry]",
	Short: "List or print entries of a package tarball",
	Long: `Read a gzip-compressed package tarball, as downloaded from the registry.

Without an entry the entry names are listed. With an entry its contents are
printed, the way the installer reads package/plugin.json and bundles.

Examples:
  usefultools inspect usefultools-plugin-official-1.0.0.tgz
  usefultools inspect usefultools-plugin-official-1.0.0.tgz package/plugin.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fault.Wrap(fault.KindIO, err, "cannot read "+args[0])
	}

	if len(args) == 2 {
		text, ok := archive.ExtractText(data, args[1])
		if !ok {
			return fault.Newf(fault.KindNotFound, "%s not found in %s", args[1], args[0])
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	}

	names, ok := archive.List(data)
	if !ok {
		return fault.Newf(fault.KindDecode, "%s is not a gzip-compressed tarball", args[0])
	}
	return render(cmd.OutOrStdout(), names, func(tw *tabwriter.Writer) {
		for _, name := range names {
			_, _ = fmt.Fprintln(tw, name)
		}
	})
}
