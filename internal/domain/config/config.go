// Package config holds the persisted plugin settings (config.json under the
// plugin root) and the process environment settings.
package config

import (
	"net/url"
	"strings"

	"github.com/usefultools/toolbox/internal/domain/fault"
)

// DefaultRegistryURL is the public npm registry.
const DefaultRegistryURL = "https://registry.npmjs.org"

// FileName is the config file name inside the plugin root.
const FileName = "config.json"

// Config is the user-editable plugin configuration.
type Config struct {
	// RegistryURL is the base URL of the npm-compatible registry.
	RegistryURL string `json:"registry" yaml:"registry"`
}

// Default returns the configuration used when none is stored.
func Default() Config {
	return Config{RegistryURL: DefaultRegistryURL}
}

// Normalized trims whitespace and trailing slashes from the registry URL so
// that request paths can be joined with a single "/".
func (c Config) Normalized() Config {
	c.RegistryURL = strings.TrimRight(strings.TrimSpace(c.RegistryURL), "/")
	return c
}

// Validate checks that the registry URL is an absolute http(s) URL.
func Validate(c Config) error {
	raw := strings.TrimSpace(c.RegistryURL)
	if raw == "" {
		return fault.New(fault.KindValidation, "registry URL must not be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fault.Wrap(fault.KindValidation, err, "invalid registry URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fault.Newf(fault.KindValidation, "registry URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fault.Newf(fault.KindValidation, "registry URL %q has no host", raw)
	}
	return nil
}
