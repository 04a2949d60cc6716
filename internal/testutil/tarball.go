package testutil

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// TarEntry is one file in a test tarball.
type TarEntry struct {
	Name string
	Body []byte
	Dir  bool
}

// File returns a regular file entry.
func File(name, body string) TarEntry {
	return TarEntry{Name: name, Body: []byte(body)}
}

// Dir returns a directory entry.
func Dir(name string) TarEntry {
	return TarEntry{Name: name, Dir: true}
}

// Tarball builds a gzip-compressed tarball with entries in the given order.
func Tarball(t testing.TB, entries ...TarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Body)), Typeflag: tar.TypeReg}
		if e.Dir {
			hdr = &tar.Header{Name: e.Name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.Dir {
			_, err := tw.Write(e.Body)
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// ManifestEntry returns a complete plugin.json entry.
func ManifestEntry(id, version, bundle string) map[string]any {
	return map[string]any{
		"id":          id,
		"version":     version,
		"author":      "usefultools",
		"icon":        "i-carbon-tool-box",
		"title":       id + " title",
		"subtitle":    id + " subtitle",
		"description": "Test plugin " + id,
		"bgColor":     "#112233",
		"categories":  []string{"dev"},
		"bundle":      bundle,
	}
}

// Manifest encodes entries as plugin.json. A single entry is written in
// the bare-object form, several in the {"plugins": [...]} form.
func Manifest(t testing.TB, entries ...map[string]any) string {
	t.Helper()

	var v any = map[string]any{"plugins": entries}
	if len(entries) == 1 {
		v = entries[0]
	}

	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// PluginTarball builds an npm-style tarball with package/plugin.json and one
// package/<bundle> file per entry. bundles maps bundle path to contents.
func PluginTarball(t testing.TB, manifest string, bundles map[string]string) []byte {
	t.Helper()

	entries := []TarEntry{Dir("package/"), File("package/plugin.json", manifest)}
	for path, body := range bundles {
		entries = append(entries, File("package/"+path, body))
	}
	return Tarball(t, entries...)
}
