package config

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/ports"
)

// Provider supplies the current configuration. Implementations must not
// cache; every call reflects the latest saved state.
type Provider interface {
	Load(ctx context.Context) Config
}

// Store reads and writes config.json in the plugin root.
type Store struct {
	fs     ports.FileSystem
	root   string
	logger ports.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used to report unreadable config files.
func WithStoreLogger(l ports.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a Store rooted at the plugin directory.
func NewStore(fs ports.FileSystem, root string, opts ...StoreOption) *Store {
	s := &Store{fs: fs, root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the config file location.
func (s *Store) Path() string {
	return filepath.Join(s.root, FileName)
}

// Load returns the stored configuration, or the default when the file is
// missing, unreadable, or does not hold a registry URL. It never fails.
func (s *Store) Load(ctx context.Context) Config {
	data, err := s.fs.ReadFile(s.Path())
	if err != nil {
		return Default()
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.debug(ctx, "config file unparsable, using defaults", ports.Err(err))
		return Default()
	}

	cfg = cfg.Normalized()
	if cfg.RegistryURL == "" {
		return Default()
	}
	return cfg
}

// Save persists cfg, creating the plugin root when needed.
func (s *Store) Save(_ context.Context, cfg Config) error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fault.Wrap(fault.KindIO, err, "cannot create plugin directory")
	}

	data, err := json.MarshalIndent(cfg.Normalized(), "", "  ")
	if err != nil {
		return fault.Wrap(fault.KindIO, err, "cannot encode config")
	}

	if err := s.fs.WriteFileAtomic(s.Path(), data, 0o644); err != nil {
		return fault.Wrap(fault.KindIO, err, "cannot write config")
	}
	return nil
}

func (s *Store) debug(ctx context.Context, msg string, fields ...ports.Field) {
	if s.logger != nil {
		s.logger.Debug(ctx, msg, append(fields, ports.F("path", s.Path()))...)
	}
}

// Ensure Store implements Provider.
var _ Provider = (*Store)(nil)
