package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// FakePackage describes one package served by FakeRegistry.
type FakePackage struct {
	Name     string
	Latest   string            // empty omits dist-tags.latest
	Tarballs map[string][]byte // version -> tarball; nil value omits dist.tarball
	Status   int               // non-zero overrides the document status
	Raw      string            // served verbatim as the document when set
}

// FakeRegistry is an httptest-backed npm registry serving search results,
// package documents, and tarballs.
type FakeRegistry struct {
	server *httptest.Server

	mu           sync.Mutex
	packages     map[string]FakePackage
	searches     map[string][]string
	searchStatus int
	searchFails  map[string]int
	tarStatus    int
	hits         map[string]int
}

// NewFakeRegistry starts a registry that is closed when the test ends.
func NewFakeRegistry(t testing.TB) *FakeRegistry {
	t.Helper()

	r := &FakeRegistry{
		packages:    make(map[string]FakePackage),
		searches:    make(map[string][]string),
		searchFails: make(map[string]int),
		hits:        make(map[string]int),
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.server.Close)
	return r
}

// URL returns the registry base URL.
func (r *FakeRegistry) URL() string {
	return r.server.URL
}

// Close stops the server; subsequent requests fail at the transport level.
func (r *FakeRegistry) Close() {
	r.server.Close()
}

// AddPackage registers name with a single latest version.
func (r *FakeRegistry) AddPackage(name, version string, tarball []byte) {
	r.SetPackage(FakePackage{Name: name, Latest: version, Tarballs: map[string][]byte{version: tarball}})
}

// SetPackage registers or replaces a package.
func (r *FakeRegistry) SetPackage(p FakePackage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[p.Name] = p
}

// SetSearch sets the package names returned for a search text.
func (r *FakeRegistry) SetSearch(text string, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches[text] = names
}

// FailSearch makes every search answer with status. Zero restores success.
func (r *FakeRegistry) FailSearch(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchStatus = status
}

// FailSearchFor makes searches for text answer with status.
func (r *FakeRegistry) FailSearchFor(text string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchFails[text] = status
}

// FailTarballs makes every tarball download answer with status.
func (r *FakeRegistry) FailTarballs(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tarStatus = status
}

// Hits returns how many requests hit a route: "search", a package name,
// or "tarball:<name>".
func (r *FakeRegistry) Hits(route string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[route]
}

// TotalHits returns the number of requests served.
func (r *FakeRegistry) TotalHits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.hits {
		total += n
	}
	return total
}

// TarballURL returns the download URL used for name@version.
func (r *FakeRegistry) TarballURL(name, version string) string {
	return r.server.URL + "/tarballs/" + url.PathEscape(name) + "/" + version + ".tgz"
}

func (r *FakeRegistry) serve(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path

	switch {
	case path == "/-/v1/search":
		r.serveSearch(w, req.URL.Query().Get("text"))
	case strings.HasPrefix(path, "/tarballs/"):
		r.serveTarball(w, strings.TrimPrefix(path, "/tarballs/"))
	default:
		r.serveDocument(w, strings.TrimPrefix(path, "/"))
	}
}

func (r *FakeRegistry) serveSearch(w http.ResponseWriter, text string) {
	r.mu.Lock()
	r.hits["search"]++
	status := r.searchStatus
	if s, ok := r.searchFails[text]; ok && status == 0 {
		status = s
	}
	names := r.searches[text]
	r.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	objects := make([]map[string]any, 0, len(names))
	for _, n := range names {
		objects = append(objects, map[string]any{"package": map[string]any{"name": n, "version": "0.0.0"}})
	}
	writeJSON(w, map[string]any{"objects": objects, "total": len(objects)})
}

func (r *FakeRegistry) serveDocument(w http.ResponseWriter, name string) {
	r.mu.Lock()
	r.hits[name]++
	pkg, ok := r.packages[name]
	r.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}`))
		return
	}
	if pkg.Status != 0 {
		w.WriteHeader(pkg.Status)
		return
	}
	if pkg.Raw != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pkg.Raw))
		return
	}

	doc := map[string]any{"name": pkg.Name}
	if pkg.Latest != "" {
		doc["dist-tags"] = map[string]string{"latest": pkg.Latest}
	}
	versions := make(map[string]any, len(pkg.Tarballs))
	for v, tgz := range pkg.Tarballs {
		dist := map[string]any{}
		if tgz != nil {
			dist["tarball"] = r.TarballURL(pkg.Name, v)
		}
		versions[v] = map[string]any{"name": pkg.Name, "version": v, "dist": dist}
	}
	doc["versions"] = versions

	writeJSON(w, doc)
}

func (r *FakeRegistry) serveTarball(w http.ResponseWriter, rest string) {
	idx := strings.LastIndex(rest, "/")
	if idx < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name, version := rest[:idx], strings.TrimSuffix(rest[idx+1:], ".tgz")

	r.mu.Lock()
	r.hits["tarball:"+name]++
	status := r.tarStatus
	pkg, ok := r.packages[name]
	r.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	tgz := pkg.Tarballs[version]
	if !ok || tgz == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(tgz)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
