package plugin

import (
	"context"
	"path/filepath"

	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/ports"
)

// LocalManifestName is the manifest read from a plugin source directory.
const LocalManifestName = "plugin.json"

// Local reads plugins from a developer's working directory without going
// through the registry.
type Local struct {
	fs     ports.FileSystem
	logger ports.Logger
}

// NewLocal creates a Local reader.
func NewLocal(fs ports.FileSystem, logger ports.Logger) *Local {
	return &Local{fs: fs, logger: logger}
}

// ReadBundle returns the source of a .mjs bundle at path.
func (l *Local) ReadBundle(_ context.Context, path string) (string, error) {
	if !l.fs.Exists(path) {
		return "", fault.Newf(fault.KindNotFound, "file not found: %s", path)
	}
	if filepath.Ext(path) != ".mjs" {
		return "", fault.Newf(fault.KindValidation, "only .mjs bundles are supported: %s", path)
	}
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return "", fault.Wrap(fault.KindIO, err, "cannot read "+path)
	}
	return string(data), nil
}

// ReadManifest reads dir/plugin.json and returns its entries tagged with
// the local debug package. Entries whose bundle file is missing are
// skipped; an error is returned when none remain.
func (l *Local) ReadManifest(ctx context.Context, dir string) ([]registry.Descriptor, error) {
	path := filepath.Join(dir, LocalManifestName)
	if !l.fs.Exists(path) {
		return nil, fault.Newf(fault.KindNotFound, "%s not found in %s", LocalManifestName, dir)
	}

	data, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, err, "cannot read "+path)
	}
	manifest, err := registry.ParseManifest(data)
	if err != nil {
		return nil, err
	}

	out := []registry.Descriptor{}
	for _, entry := range manifest.Entries() {
		bundle := filepath.Join(dir, filepath.FromSlash(entry.Bundle))
		if !l.fs.Exists(bundle) {
			if l.logger != nil {
				l.logger.Warn(ctx, "skipping local plugin: bundle file missing",
					ports.F("id", entry.ID), ports.F("bundle", bundle))
			}
			continue
		}
		out = append(out, entry.Descriptor(registry.LocalDebugPackage))
	}

	if len(out) == 0 {
		return nil, fault.Newf(fault.KindNotFound, "no valid plugin entries in %s", path)
	}
	return out, nil
}
