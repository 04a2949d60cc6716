// Package paths resolves where the application keeps its data.
package paths

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/usefultools/toolbox/internal/ports"
)

// AppID names the application data directory.
const AppID = "usefultools"

// PluginsDirName is the plugin root inside the data directory.
const PluginsDirName = "plugins"

// ErrNoDataDir is returned when no data directory can be determined.
var ErrNoDataDir = errors.New("cannot determine application data directory")

// Finder resolves the data directory for the current platform.
type Finder struct {
	homeDir string
	goos    string
	getenv  func(string) string
}

// NewFinder creates a Finder for the running platform.
func NewFinder() *Finder {
	home, _ := os.UserHomeDir()
	return &Finder{
		homeDir: home,
		goos:    runtime.GOOS,
		getenv:  os.Getenv,
	}
}

// NewFinderWithEnv creates a Finder with a custom home, platform, and
// environment (for testing).
func NewFinderWithEnv(home, goos string, getenv func(string) string) *Finder {
	return &Finder{homeDir: home, goos: goos, getenv: getenv}
}

// DataDir returns the application data directory. A non-empty override
// wins; "~" in it is expanded.
func (f *Finder) DataDir(override string) (string, error) {
	if override != "" {
		return filepath.Abs(ports.ExpandPath(override))
	}

	switch f.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		if xdg := f.getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, AppID), nil
		}
		if f.homeDir != "" {
			return filepath.Join(f.homeDir, ".local", "share", AppID), nil
		}
	case "darwin":
		if f.homeDir != "" {
			return filepath.Join(f.homeDir, "Library", "Application Support", AppID), nil
		}
	case "windows":
		if appData := f.getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppID), nil
		}
	}

	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "", ErrNoDataDir
	}
	return filepath.Join(dir, AppID), nil
}

// PluginRoot returns the plugin root below dataDir.
func PluginRoot(dataDir string) string {
	return filepath.Join(dataDir, PluginsDirName)
}
