// Package mcp exposes the plugin operations as MCP (Model Context Protocol) tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/usefultools/toolbox/internal/app"
	"github.com/usefultools/toolbox/internal/domain/config"
	"github.com/usefultools/toolbox/internal/domain/plugin"
	"github.com/usefultools/toolbox/internal/domain/registry"
)

// errNotConfirmed is returned by destructive tools called without confirm=true.
var errNotConfirmed = errors.New("confirm must be true to change installed plugins")

// RegistryInput is the input for the usefultools_registry tool.
type RegistryInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"description=Bypass the one hour catalog cache and query the registry"`
}

// RegistryOutput is the output for the usefultools_registry tool.
type RegistryOutput struct {
	Plugins []registry.Descriptor `json:"plugins"`
	Count   int                   `json:"count"`
	// Source is hit, refreshed, or stale.
	Source    string `json:"source"`
	FetchedAt string `json:"fetched_at,omitempty"`
}

// PackageInput is the input for the usefultools_package tool.
type PackageInput struct {
	Name string `json:"name" jsonschema:"required,description=Registry package name (e.g. usefultools-plugin-official)"`
}

// PluginsOutput lists plugin descriptors.
type PluginsOutput struct {
	Plugins []registry.Descriptor `json:"plugins"`
	Count   int                   `json:"count"`
}

// InstallInput is the input for the usefultools_install tool.
type InstallInput struct {
	Ref     string `json:"ref" jsonschema:"required,description=Plugin id from the catalog or a package name to install all of its plugins"`
	Confirm bool   `json:"confirm" jsonschema:"required,description=Must be true to install (safety confirmation)"`
}

// InstallOutput is the output for the usefultools_install tool.
type InstallOutput struct {
	Installed []plugin.Installed `json:"installed"`
}

// UninstallInput is the input for the usefultools_uninstall tool.
type UninstallInput struct {
	ID      string `json:"id" jsonschema:"required,description=Id of the installed plugin"`
	Confirm bool   `json:"confirm" jsonschema:"required,description=Must be true to uninstall (safety confirmation)"`
}

// UninstallOutput is the output for the usefultools_uninstall tool.
type UninstallOutput struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

// ListInput is the input for the usefultools_list tool.
type ListInput struct{}

// ListOutput is the output for the usefultools_list tool.
type ListOutput struct {
	Plugins []plugin.Installed `json:"plugins"`
	Count   int                `json:"count"`
}

// BundleInput is the input for the usefultools_bundle tool.
type BundleInput struct {
	ID            string `json:"id" jsonschema:"required,description=Id of the installed plugin"`
	IncludeSource bool   `json:"include_source,omitempty" jsonschema:"description=Also return the bundle source"`
}

// BundleOutput is the output for the usefultools_bundle tool.
type BundleOutput struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Source string `json:"source,omitempty"`
}

// UpdatesInput is the input for the usefultools_updates tool.
type UpdatesInput struct{}

// UpdatesOutput is the output for the usefultools_updates tool.
type UpdatesOutput struct {
	Updates []plugin.Update `json:"updates"`
	Count   int             `json:"count"`
}

// ConfigInput is the input for the usefultools_config tool.
type ConfigInput struct {
	Registry string `json:"registry,omitempty" jsonschema:"description=New registry base URL; omit to read the current configuration"`
}

// ConfigOutput is the output for the usefultools_config tool.
type ConfigOutput struct {
	Registry string `json:"registry"`
	Changed  bool   `json:"changed"`
}

// LocalInput is the input for the usefultools_local tool.
type LocalInput struct {
	Dir    string `json:"dir,omitempty" jsonschema:"description=Plugin source directory containing plugin.json"`
	Bundle string `json:"bundle,omitempty" jsonschema:"description=Path of a .mjs bundle to read"`
}

// LocalOutput is the output for the usefultools_local tool.
type LocalOutput struct {
	Plugins []registry.Descriptor `json:"plugins,omitempty"`
	Source  string                `json:"source,omitempty"`
}

// PruneInput is the input for the usefultools_prune tool.
type PruneInput struct {
	Confirm bool `json:"confirm" jsonschema:"required,description=Must be true to delete leftovers (safety confirmation)"`
}

// PruneOutput is the output for the usefultools_prune tool.
type PruneOutput struct {
	Removed []string `json:"removed"`
}

// StatusInput is the input for the usefultools_status tool.
type StatusInput struct{}

// StatusOutput is the output for the usefultools_status tool.
type StatusOutput struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	BuildDate  string `json:"build_date"`
	PluginRoot string `json:"plugin_root"`
	Registry   string `json:"registry"`
	Installed  int    `json:"installed"`
	Cached     bool   `json:"cached"`
	CacheAge   string `json:"cache_age,omitempty"`
	CacheFresh bool   `json:"cache_fresh"`
}

// VersionInfo contains version metadata for the MCP server.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// RegisterAll registers all MCP tools with the server.
func RegisterAll(srv *mcp.Server, manager *app.Manager, versionInfo VersionInfo) {
	// Catalog
	registerRegistryTool(srv, manager)
	registerPackageTool(srv, manager)
	registerUpdatesTool(srv, manager)

	// Installed plugins
	registerInstallTool(srv, manager)
	registerUninstallTool(srv, manager)
	registerListTool(srv, manager)
	registerBundleTool(srv, manager)
	registerPruneTool(srv, manager)

	// Settings and development
	registerConfigTool(srv, manager)
	registerLocalTool(srv, manager)
	registerStatusTool(srv, manager, versionInfo)
}

func registerRegistryTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_registry").
		Description("List every plugin published to the configured registry. Served from a one hour cache unless refresh is set.").
		ReadOnly().
		Handler(func(ctx context.Context, in RegistryInput) (*RegistryOutput, error) {
			plugins, outcome, err := manager.FetchRegistryWithOutcome(ctx, in.Refresh)
			if err != nil {
				return nil, err
			}

			out := &RegistryOutput{Plugins: plugins, Count: len(plugins), Source: outcome}
			if snap, ok := manager.CacheSnapshot(); ok {
				out.FetchedAt = time.UnixMilli(snap.FetchedAt).UTC().Format(time.RFC3339)
			}
			return out, nil
		})
}

func registerPackageTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_package").
		Description("Resolve the plugins of one registry package directly, bypassing the catalog cache.").
		ReadOnly().
		Handler(func(ctx context.Context, in PackageInput) (*PluginsOutput, error) {
			if err := ValidatePackageInput(&in); err != nil {
				return nil, err
			}

			plugins, err := manager.FetchPackage(ctx, in.Name)
			if err != nil {
				return nil, err
			}
			return &PluginsOutput{Plugins: plugins, Count: len(plugins)}, nil
		})
}

func registerUpdatesTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_updates").
		Description("Compare installed plugins against the catalog and report version changes.").
		ReadOnly().
		Handler(func(ctx context.Context, _ UpdatesInput) (*UpdatesOutput, error) {
			updates, err := manager.Updates(ctx)
			if err != nil {
				return nil, err
			}
			return &UpdatesOutput{Updates: updates, Count: len(updates)}, nil
		})
}

func registerInstallTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_install").
		Description("Install a plugin by id, or every plugin of a package. REQUIRES confirm=true.").
		Destructive().
		Handler(func(ctx context.Context, in InstallInput) (*InstallOutput, error) {
			if err := ValidateInstallInput(&in); err != nil {
				return nil, err
			}
			if !in.Confirm {
				return nil, errNotConfirmed
			}

			descs, err := manager.FindInstallable(ctx, in.Ref)
			if err != nil {
				return nil, err
			}

			out := &InstallOutput{Installed: make([]plugin.Installed, 0, len(descs))}
			for _, d := range descs {
				inst, err := manager.Install(ctx, d)
				if err != nil {
					return nil, fmt.Errorf("install %s: %w", d.ID, err)
				}
				out.Installed = append(out.Installed, *inst)
			}
			return out, nil
		})
}

func registerUninstallTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_uninstall").
		Description("Remove an installed plugin. REQUIRES confirm=true.").
		Destructive().
		Handler(func(ctx context.Context, in UninstallInput) (*UninstallOutput, error) {
			if err := ValidateUninstallInput(&in); err != nil {
				return nil, err
			}
			if !in.Confirm {
				return nil, errNotConfirmed
			}

			if err := manager.Uninstall(ctx, in.ID); err != nil {
				return nil, err
			}
			return &UninstallOutput{ID: in.ID, Removed: true}, nil
		})
}

func registerListTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_list").
		Description("List installed plugins with their metadata and bundle paths.").
		ReadOnly().
		Handler(func(ctx context.Context, _ ListInput) (*ListOutput, error) {
			plugins, err := manager.ListInstalled(ctx)
			if err != nil {
				return nil, err
			}
			return &ListOutput{Plugins: plugins, Count: len(plugins)}, nil
		})
}

func registerBundleTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_bundle").
		Description("Locate the bundle of an installed plugin, optionally returning its source.").
		ReadOnly().
		Handler(func(ctx context.Context, in BundleInput) (*BundleOutput, error) {
			path, err := manager.BundlePath(ctx, in.ID)
			if err != nil {
				return nil, err
			}

			out := &BundleOutput{ID: in.ID, Path: path}
			if in.IncludeSource {
				out.Source, err = manager.ReadBundle(ctx, in.ID)
				if err != nil {
					return nil, err
				}
			}
			return out, nil
		})
}

func registerPruneTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_prune").
		Description("Delete leftovers of interrupted installs from the plugin directory. REQUIRES confirm=true.").
		Destructive().
		Handler(func(ctx context.Context, in PruneInput) (*PruneOutput, error) {
			if !in.Confirm {
				return nil, errNotConfirmed
			}

			removed, err := manager.Prune(ctx)
			if err != nil {
				return nil, err
			}
			return &PruneOutput{Removed: removed}, nil
		})
}

func registerConfigTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_config").
		Description("Read the registry configuration, or set a new registry base URL.").
		Handler(func(ctx context.Context, in ConfigInput) (*ConfigOutput, error) {
			if in.Registry == "" {
				return &ConfigOutput{Registry: manager.GetConfig(ctx).RegistryURL}, nil
			}

			if err := manager.SetConfig(ctx, config.Config{RegistryURL: in.Registry}); err != nil {
				return nil, err
			}
			return &ConfigOutput{Registry: manager.GetConfig(ctx).RegistryURL, Changed: true}, nil
		})
}

func registerLocalTool(srv *mcp.Server, manager *app.Manager) {
	srv.Tool("usefultools_local").
		Description("Read a plugin under development: its plugin.json from a directory, or a .mjs bundle file.").
		ReadOnly().
		Handler(func(ctx context.Context, in LocalInput) (*LocalOutput, error) {
			if err := ValidateLocalInput(&in); err != nil {
				return nil, err
			}

			if in.Bundle != "" {
				src, err := manager.ReadLocalBundle(ctx, in.Bundle)
				if err != nil {
					return nil, err
				}
				return &LocalOutput{Source: src}, nil
			}

			plugins, err := manager.ReadLocalManifest(ctx, in.Dir)
			if err != nil {
				return nil, err
			}
			return &LocalOutput{Plugins: plugins}, nil
		})
}

func registerStatusTool(srv *mcp.Server, manager *app.Manager, versionInfo VersionInfo) {
	srv.Tool("usefultools_status").
		Description("Get version info, the configured registry, the installed plugin count, and catalog cache age.").
		ReadOnly().
		Handler(func(ctx context.Context, _ StatusInput) (*StatusOutput, error) {
			installed, err := manager.ListInstalled(ctx)
			if err != nil {
				return nil, err
			}

			out := &StatusOutput{
				Version:    versionInfo.Version,
				Commit:     versionInfo.Commit,
				BuildDate:  versionInfo.BuildDate,
				PluginRoot: manager.Root(),
				Registry:   manager.GetConfig(ctx).RegistryURL,
				Installed:  len(installed),
			}
			if snap, ok := manager.CacheSnapshot(); ok {
				out.Cached = true
				out.CacheAge = formatAge(time.UnixMilli(snap.FetchedAt))
				out.CacheFresh = snap.FreshAt(time.Now())
			}
			return out, nil
		})
}

func formatAge(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
