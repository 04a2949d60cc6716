// Package mocks provides test doubles for the ports interfaces.
package mocks

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/usefultools/toolbox/internal/ports"
)

// Op names a FileSystem method for failure injection.
type Op string

// Injectable operations.
const (
	OpReadFile        Op = "ReadFile"
	OpWriteFile       Op = "WriteFile"
	OpWriteFileAtomic Op = "WriteFileAtomic"
	OpMkdirAll        Op = "MkdirAll"
	OpRemoveAll       Op = "RemoveAll"
	OpRename          Op = "Rename"
	OpReadDir         Op = "ReadDir"
	OpTimes           Op = "Times"
)

// FileSystem is a thread-safe test double that delegates to a real
// ports.FileSystem and fails selected calls.
type FileSystem struct {
	inner ports.FileSystem

	mu       sync.Mutex
	failures []failure
	calls    []Call
}

// Call records one method invocation.
type Call struct {
	Op   Op
	Path string
}

type failure struct {
	op     Op
	suffix string
	err    error
}

// NewFileSystem wraps inner.
func NewFileSystem(inner ports.FileSystem) *FileSystem {
	return &FileSystem{inner: inner}
}

// FailOn makes op fail with err for every path ending in suffix. An empty
// suffix matches all paths.
func (m *FileSystem) FailOn(op Op, suffix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = fmt.Errorf("injected %s failure", op)
	}
	m.failures = append(m.failures, failure{op: op, suffix: suffix, err: err})
}

// Reset clears injected failures and recorded calls.
func (m *FileSystem) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = nil
	m.calls = nil
}

// Calls returns the recorded invocations.
func (m *FileSystem) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *FileSystem) check(op Op, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: op, Path: path})
	for _, f := range m.failures {
		if f.op != op {
			continue
		}
		if f.suffix == "" || strings.HasSuffix(filepath.ToSlash(path), f.suffix) {
			return f.err
		}
	}
	return nil
}

// ReadFile reads a file.
func (m *FileSystem) ReadFile(path string) ([]byte, error) {
	if err := m.check(OpReadFile, path); err != nil {
		return nil, err
	}
	return m.inner.ReadFile(path)
}

// WriteFile writes a file.
func (m *FileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := m.check(OpWriteFile, path); err != nil {
		return err
	}
	return m.inner.WriteFile(path, data, perm)
}

// WriteFileAtomic writes a file via temp and rename.
func (m *FileSystem) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := m.check(OpWriteFileAtomic, path); err != nil {
		return err
	}
	return m.inner.WriteFileAtomic(path, data, perm)
}

// MkdirAll creates directories.
func (m *FileSystem) MkdirAll(path string, perm os.FileMode) error {
	if err := m.check(OpMkdirAll, path); err != nil {
		return err
	}
	return m.inner.MkdirAll(path, perm)
}

// RemoveAll removes a tree.
func (m *FileSystem) RemoveAll(path string) error {
	if err := m.check(OpRemoveAll, path); err != nil {
		return err
	}
	return m.inner.RemoveAll(path)
}

// Rename moves a file or directory. Failures match on the destination.
func (m *FileSystem) Rename(oldPath, newPath string) error {
	if err := m.check(OpRename, newPath); err != nil {
		return err
	}
	return m.inner.Rename(oldPath, newPath)
}

// Exists reports whether path exists.
func (m *FileSystem) Exists(path string) bool {
	return m.inner.Exists(path)
}

// IsDir reports whether path is a directory.
func (m *FileSystem) IsDir(path string) bool {
	return m.inner.IsDir(path)
}

// ReadDir lists a directory.
func (m *FileSystem) ReadDir(path string) ([]fs.DirEntry, error) {
	if err := m.check(OpReadDir, path); err != nil {
		return nil, err
	}
	return m.inner.ReadDir(path)
}

// Times returns file timestamps.
func (m *FileSystem) Times(path string) (ports.FileTimes, error) {
	if err := m.check(OpTimes, path); err != nil {
		return ports.FileTimes{}, err
	}
	return m.inner.Times(path)
}

// Ensure FileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*FileSystem)(nil)
