package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable read by the process.
const EnvPrefix = "USEFULTOOLS"

// DefaultCacheTTL is how long a fetched catalog is served without a refresh.
const DefaultCacheTTL = time.Hour

// Environment holds process settings read from USEFULTOOLS_* variables.
type Environment struct {
	DataDir     string        `envconfig:"DATA_DIR"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string        `envconfig:"LOG_FORMAT" default:"text"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	SocketPath  string        `envconfig:"SOCKET_PATH"`
	MetricsAddr string        `envconfig:"METRICS_ADDR"`
}

// DefaultEnvironment returns the settings used when no variables are set.
func DefaultEnvironment() Environment {
	return Environment{
		LogLevel:    "info",
		LogFormat:   "text",
		HTTPTimeout: 60 * time.Second,
		CacheTTL:    DefaultCacheTTL,
	}
}

// LoadDotenv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadEnvironment reads USEFULTOOLS_* variables.
func LoadEnvironment() (Environment, error) {
	var env Environment
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Environment{}, fmt.Errorf("failed to load environment: %w", err)
	}
	if env.HTTPTimeout <= 0 {
		return Environment{}, fmt.Errorf("USEFULTOOLS_HTTP_TIMEOUT must be positive, got %s", env.HTTPTimeout)
	}
	if env.CacheTTL <= 0 {
		return Environment{}, fmt.Errorf("USEFULTOOLS_CACHE_TTL must be positive, got %s", env.CacheTTL)
	}
	return env, nil
}
