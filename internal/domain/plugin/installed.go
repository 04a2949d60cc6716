// Package plugin owns the on-disk plugin store: installing, listing, and
// removing plugins under the plugin root, and checking them for updates.
package plugin

import (
	"strings"

	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/domain/registry"
)

// Files inside a plugin directory.
const (
	MetaFileName   = "meta.json"
	BundleFileName = "bundle.mjs"
)

// Prefixes of transient directories created inside the plugin root.
const (
	stagingPrefix = ".staging-"
	trashPrefix   = ".trash-"
)

// Installed is a plugin present on disk. Times are unix milliseconds.
type Installed struct {
	Meta            registry.Descriptor `json:"meta" yaml:"meta"`
	InstalledAt     int64               `json:"installedAt" yaml:"installedAt"`
	UpdatedAt       int64               `json:"updatedAt" yaml:"updatedAt"`
	LocalBundlePath string              `json:"localBundlePath" yaml:"localBundlePath"`
	Enabled         bool                `json:"enabled" yaml:"enabled"`
}

// ValidateID rejects ids that cannot name a directory directly below the
// plugin root.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fault.New(fault.KindValidation, "plugin id is empty")
	case id == "." || id == "..":
		return fault.Newf(fault.KindValidation, "invalid plugin id %q", id)
	case strings.HasPrefix(id, "."):
		return fault.Newf(fault.KindValidation, "plugin id %q must not start with a dot", id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fault.Newf(fault.KindValidation, "plugin id %q contains a path separator", id)
	case strings.TrimSpace(id) != id:
		return fault.Newf(fault.KindValidation, "plugin id %q has surrounding whitespace", id)
	}
	return nil
}
