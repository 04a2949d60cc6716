package ports

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileTimes holds the timestamps the plugin store reports for a file.
// Created falls back to Modified on platforms without birth time.
type FileTimes struct {
	Created  time.Time
	Modified time.Time
}

// FileSystem provides the file operations used by the plugin store and
// config store. Paths are absolute.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	// WriteFileAtomic writes to a sibling temp file and renames it into place.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	RemoveAll(path string) error
	Rename(oldPath, newPath string) error
	Exists(path string) bool
	IsDir(path string) bool
	ReadDir(path string) ([]fs.DirEntry, error)
	Times(path string) (FileTimes, error)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
