package registry

import (
	"strings"

	"github.com/usefultools/toolbox/internal/domain/fault"
)

const (
	// PackagePrefix is the naming convention every plugin package follows,
	// and the keyword plugin packages are published under.
	PackagePrefix = "usefultools-plugin"
	// OfficialPackage is listed first in every catalog.
	OfficialPackage = "usefultools-plugin-official"
	// ManifestEntryPath is where plugin.json lives inside a tarball.
	ManifestEntryPath = "package/plugin.json"
	// LocalDebugPackage tags descriptors read from a local directory.
	LocalDebugPackage = "local-debug"
)

// IsPluginPackageName reports whether name follows the plugin naming
// convention: "usefultools-plugin..." or "@scope/usefultools-plugin...".
func IsPluginPackageName(name string) bool {
	if strings.HasPrefix(name, PackagePrefix) {
		return true
	}
	if i := strings.Index(name, "/"); i >= 0 {
		return strings.HasPrefix(name[i+1:], PackagePrefix)
	}
	return false
}

// NormalizePackageName trims name and checks it against the naming
// convention.
func NormalizePackageName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if !IsPluginPackageName(trimmed) {
		return "", fault.Newf(fault.KindValidation,
			"package name %q must start with %s (for scoped packages, the part after /)", trimmed, PackagePrefix).
			WithPackage(trimmed)
	}
	return trimmed, nil
}

// BundleEntryPath returns the tarball path of a bundle file.
func BundleEntryPath(bundleFile string) string {
	return "package/" + strings.TrimPrefix(bundleFile, "./")
}
