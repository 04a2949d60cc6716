// Package archive reads single entries out of gzip-compressed tarballs as
// published by npm-compatible registries.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MaxEntrySize bounds the size of an entry read into memory.
const MaxEntrySize = 64 << 20

// Lookup failure reasons. They stay inside the package boundary except for
// diagnostics; callers of ExtractText and ExtractBytes only see absence.
var (
	ErrCorrupt      = errors.New("archive is not a readable gzip tarball")
	ErrEntryMissing = errors.New("entry not found in archive")
	ErrEntryTooBig  = errors.New("entry exceeds size limit")
)

// ExtractText returns the first entry named entry as a string.
func ExtractText(data []byte, entry string) (string, bool) {
	b, ok := ExtractBytes(data, entry)
	if !ok {
		return "", false
	}
	return string(b), true
}

// ExtractBytes returns the first entry named entry. Corrupt input and a
// missing entry both report false.
func ExtractBytes(data []byte, entry string) ([]byte, bool) {
	b, err := Lookup(data, entry)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Lookup scans the tarball in archive order and returns the contents of the
// first entry whose name matches entry exactly. A leading "./" on archive
// names is ignored.
func Lookup(data []byte, entry string) ([]byte, error) {
	var found []byte
	err := walk(data, func(name string, hdr *tar.Header, r io.Reader) (bool, error) {
		if name != entry {
			return false, nil
		}
		if hdr.Size > MaxEntrySize {
			return true, fmt.Errorf("%w: %s is %d bytes", ErrEntryTooBig, entry, hdr.Size)
		}
		b, err := io.ReadAll(io.LimitReader(r, MaxEntrySize))
		if err != nil {
			return true, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		found = b
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryMissing, entry)
	}
	return found, nil
}

// List returns the names of all regular file entries in archive order.
func List(data []byte) ([]string, bool) {
	var names []string
	err := walk(data, func(name string, _ *tar.Header, _ io.Reader) (bool, error) {
		names = append(names, name)
		return false, nil
	})
	if err != nil {
		return nil, false
	}
	return names, true
}

// walk calls fn for each regular file until fn reports done or fails.
func walk(data []byte, fn func(name string, hdr *tar.Header, r io.Reader) (bool, error)) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		// npm pack output may prefix entry names with "./".
		done, err := fn(strings.TrimPrefix(hdr.Name, "./"), hdr, tr)
		if err != nil || done {
			return err
		}
	}
}
