package plugin

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/ports"
)

// Store is the plugin root on disk: one directory per plugin id holding
// meta.json and bundle.mjs.
type Store struct {
	fs     ports.FileSystem
	root   string
	logger ports.Logger
}

// NewStore creates a Store rooted at root.
func NewStore(fs ports.FileSystem, root string, logger ports.Logger) *Store {
	return &Store{fs: fs, root: root, logger: logger}
}

// Root returns the plugin root.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory of id.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// MetaPath returns the meta.json path of id.
func (s *Store) MetaPath(id string) string {
	return filepath.Join(s.root, id, MetaFileName)
}

// BundlePath returns the bundle.mjs path of id.
func (s *Store) BundlePath(id string) string {
	return filepath.Join(s.root, id, BundleFileName)
}

// List returns every complete plugin directory. Dot-prefixed directories,
// directories missing either file, and unreadable metadata are skipped.
func (s *Store) List(ctx context.Context) ([]Installed, error) {
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, err, "cannot read plugin directory")
	}

	out := []Installed{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		inst, err := s.read(e.Name())
		if err != nil {
			s.debug(ctx, "skipping plugin directory", ports.F("dir", e.Name()), ports.Err(err))
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// Get returns the installed plugin id.
func (s *Store) Get(id string) (Installed, error) {
	return s.read(id)
}

func (s *Store) read(id string) (Installed, error) {
	metaPath := s.MetaPath(id)
	bundlePath := s.BundlePath(id)

	if !s.fs.Exists(metaPath) || !s.fs.Exists(bundlePath) {
		return Installed{}, fault.Newf(fault.KindNotFound, "plugin %q is not installed", id)
	}

	data, err := s.fs.ReadFile(metaPath)
	if err != nil {
		return Installed{}, fault.Wrap(fault.KindIO, err, "cannot read "+MetaFileName)
	}
	meta, err := registry.DecodeDescriptor(data)
	if err != nil {
		return Installed{}, err
	}

	times, err := s.fs.Times(metaPath)
	if err != nil {
		return Installed{}, fault.Wrap(fault.KindIO, err, "cannot stat "+MetaFileName)
	}

	return Installed{
		Meta:            meta,
		InstalledAt:     times.Created.UnixMilli(),
		UpdatedAt:       times.Modified.UnixMilli(),
		LocalBundlePath: bundlePath,
		Enabled:         true,
	}, nil
}

// Commit writes meta and bundle for id into a staging directory and swaps
// it into place. On failure the previous installation, if any, is left as
// it was and no partial directory remains.
func (s *Store) Commit(ctx context.Context, meta registry.Descriptor, bundle []byte) error {
	id := meta.ID

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fault.Wrap(fault.KindIO, err, "cannot encode "+MetaFileName)
	}

	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fault.Wrap(fault.KindIO, err, "cannot create plugin directory")
	}

	staging := filepath.Join(s.root, stagingPrefix+id+"-"+uuid.New().String())
	if err := s.fs.MkdirAll(staging, 0o755); err != nil {
		return fault.Wrap(fault.KindIO, err, "cannot create staging directory")
	}

	if err := s.fs.WriteFile(filepath.Join(staging, BundleFileName), bundle, 0o644); err != nil {
		s.discard(ctx, staging)
		return fault.Wrap(fault.KindIO, err, "cannot write "+BundleFileName)
	}
	if err := s.fs.WriteFile(filepath.Join(staging, MetaFileName), metaJSON, 0o644); err != nil {
		s.discard(ctx, staging)
		return fault.Wrap(fault.KindIO, err, "cannot write "+MetaFileName)
	}

	final := s.Dir(id)
	var trash string
	if s.fs.Exists(final) {
		trash = filepath.Join(s.root, trashPrefix+id+"-"+uuid.New().String())
		if err := s.fs.Rename(final, trash); err != nil {
			s.discard(ctx, staging)
			return fault.Wrap(fault.KindIO, err, "cannot replace existing installation")
		}
	}

	if err := s.fs.Rename(staging, final); err != nil {
		if trash != "" {
			if rerr := s.fs.Rename(trash, final); rerr != nil {
				s.warn(ctx, "cannot restore previous installation",
					ports.F("id", id), ports.F("path", trash), ports.Err(rerr))
			}
		}
		s.discard(ctx, staging)
		return fault.Wrap(fault.KindIO, err, "cannot move installation into place")
	}

	if trash != "" {
		s.discard(ctx, trash)
	}
	return nil
}

// Remove deletes the directory of id. A missing directory is not an error.
func (s *Store) Remove(id string) error {
	if err := s.fs.RemoveAll(s.Dir(id)); err != nil {
		return fault.Wrap(fault.KindIO, err, "cannot remove plugin directory")
	}
	return nil
}

// Prune removes leftover staging and trash directories and plugin
// directories that are not complete installations. It returns the removed
// directory names.
func (s *Store) Prune(ctx context.Context) ([]string, error) {
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, err, "cannot read plugin directory")
	}

	removed := []string{}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			continue
		}

		leftover := strings.HasPrefix(name, stagingPrefix) || strings.HasPrefix(name, trashPrefix)
		if !leftover {
			if strings.HasPrefix(name, ".") {
				continue
			}
			if _, err := s.read(name); err == nil || fault.IsKind(err, fault.KindIO) {
				continue
			}
		}

		if err := s.fs.RemoveAll(filepath.Join(s.root, name)); err != nil {
			return removed, fault.Wrap(fault.KindIO, err, "cannot remove "+name)
		}
		s.debug(ctx, "pruned plugin directory", ports.F("dir", name))
		removed = append(removed, name)
	}
	return removed, nil
}

func (s *Store) discard(ctx context.Context, dir string) {
	if err := s.fs.RemoveAll(dir); err != nil {
		s.warn(ctx, "cannot remove temporary directory", ports.F("path", dir), ports.Err(err))
	}
}

func (s *Store) debug(ctx context.Context, msg string, fields ...ports.Field) {
	if s.logger != nil {
		s.logger.Debug(ctx, msg, fields...)
	}
}

func (s *Store) warn(ctx context.Context, msg string, fields ...ports.Field) {
	if s.logger != nil {
		s.logger.Warn(ctx, msg, fields...)
	}
}
