package main

import (
	"github.com/felixgeelhaar/mcp-go"
	"github.com/spf13/cobra"

	mcptools "github.com/usefultools/toolbox/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server exposing the plugin operations.

Available tools:
  - usefultools_registry   List plugins in the registry catalog
  - usefultools_package    List plugins of one package
  - usefultools_updates    Show installed plugins with a different registry version
  - usefultools_install    Install a plugin or every plugin of a package
  - usefultools_uninstall  Remove an installed plugin
  - usefultools_list       List installed plugins
  - usefultools_bundle     Locate or read an installed bundle
  - usefultools_prune      Delete leftovers of interrupted installs
  - usefultools_config     Show or change the registry
  - usefultools_local      Read a plugin under development
  - usefultools_status     Show version and cache state

Examples:
  usefultools mcp                # Start stdio MCP server
  usefultools mcp --http :8080   # Start HTTP MCP server`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

var mcpHTTP string

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringVar(&mcpHTTP, "http", "", "Start HTTP server on address (e.g., :8080)")
}

func runMCP(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "usefultools",
		Version: version,
	})
	mcptools.RegisterAll(srv, rt.manager, mcptools.VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})

	if mcpHTTP != "" {
		return mcp.ServeHTTP(ctx, srv, mcpHTTP)
	}
	return mcp.ServeStdio(ctx, srv)
}
