package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/usefultools/toolbox/internal/domain/plugin"
	"github.com/usefultools/toolbox/internal/domain/registry"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateOutputFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json, or yaml)", format)
	}
}

// render writes v in the selected output format. table draws the table
// form; values without one (table == nil) are written as JSON.
func render(w io.Writer, v interface{}, table func(tw *tabwriter.Writer)) error {
	if outputFormat == formatTable && table != nil {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}

	if outputFormat == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func descriptorTable(plugins []registry.Descriptor) func(tw *tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		if len(plugins) == 0 {
			_, _ = fmt.Fprintln(tw, "No plugins found.")
			return
		}
		_, _ = fmt.Fprintln(tw, "ID\tVERSION\tTITLE\tPACKAGE")
		for _, p := range plugins {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Version, p.Title, p.PackageName)
		}
	}
}

func installedTable(plugins []plugin.Installed) func(tw *tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		if len(plugins) == 0 {
			_, _ = fmt.Fprintln(tw, "No plugins installed.")
			return
		}
		_, _ = fmt.Fprintln(tw, "ID\tVERSION\tTITLE\tPACKAGE\tCATEGORIES")
		for _, p := range plugins {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				p.Meta.ID, p.Meta.Version, p.Meta.Title, p.Meta.PackageName, strings.Join(p.Meta.Categories, ","))
		}
	}
}
