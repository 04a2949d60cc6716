package registry

import (
	"context"
	"errors"

	"github.com/usefultools/toolbox/internal/domain/archive"
	"github.com/usefultools/toolbox/internal/domain/fault"
	"github.com/usefultools/toolbox/internal/ports"
)

// Resolution steps named in errors.
const (
	StepPackageDocument = "package-document"
	StepLatestTag       = "latest-tag"
	StepVersionRecord   = "version-record"
	StepTarballURL      = "tarball-url"
	StepTarball         = "tarball"
	StepManifest        = "manifest"
)

// Tarball locates the latest release of a package.
type Tarball struct {
	Package string
	Version string
	URL     string
}

// Resolver turns registry packages into plugin descriptors.
type Resolver struct {
	client  *Client
	logger  ports.Logger
	metrics ports.Metrics
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger used for skipped packages.
func WithResolverLogger(l ports.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithResolverMetrics counts skipped packages.
func WithResolverMetrics(m ports.Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a Resolver.
func NewResolver(client *Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SearchCandidates runs one search and returns the matching names. Any
// failure yields an empty list.
func (r *Resolver) SearchCandidates(ctx context.Context, registryURL, query string) []string {
	names, err := r.client.Search(ctx, registryURL, query)
	if err != nil {
		r.debug(ctx, "search failed", ports.F("query", query), ports.Err(err))
		return []string{}
	}
	return names
}

// LatestTarball follows dist-tags.latest to the tarball URL of name.
func (r *Resolver) LatestTarball(ctx context.Context, registryURL, name string) (Tarball, error) {
	doc, err := r.client.Document(ctx, registryURL, name)
	if err != nil {
		return Tarball{}, err
	}

	latest, ok := doc.DistTags["latest"]
	if !ok || latest == "" {
		return Tarball{}, notFound(name, StepLatestTag, "package has no latest version")
	}

	record, ok := doc.Versions[latest]
	if !ok {
		return Tarball{}, notFound(name, StepVersionRecord, "no version record for "+latest)
	}

	if record.Dist == nil || record.Dist.Tarball == "" {
		return Tarball{}, notFound(name, StepTarballURL, "no tarball URL for "+latest)
	}

	return Tarball{Package: name, Version: latest, URL: record.Dist.Tarball}, nil
}

// Download fetches the tarball bytes.
func (r *Resolver) Download(ctx context.Context, tb Tarball) ([]byte, error) {
	data, err := r.client.Download(ctx, tb.URL)
	if err != nil {
		return nil, withPackageStep(err, tb.Package, StepTarball)
	}
	return data, nil
}

// ResolvePackage downloads the latest release of name and returns the
// descriptors declared in its plugin.json.
func (r *Resolver) ResolvePackage(ctx context.Context, registryURL, name string) ([]Descriptor, error) {
	tb, err := r.LatestTarball(ctx, registryURL, name)
	if err != nil {
		return nil, err
	}

	data, err := r.Download(ctx, tb)
	if err != nil {
		return nil, err
	}

	raw, err := archive.Lookup(data, ManifestEntryPath)
	if err != nil {
		// Corrupt archives and a missing entry are reported the same way;
		// the cause stays attached for diagnostics.
		return nil, fault.Wrap(fault.KindNotFound, err, "plugin.json not found in package").
			WithPackage(name).WithStep(StepManifest)
	}

	manifest, err := ParseManifest(raw)
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return nil, fe.WithPackage(name).WithStep(StepManifest)
		}
		return nil, err
	}

	return manifest.Descriptors(name), nil
}

// ResolveAll builds the full catalog: a keyword search and a text search,
// merged in first-seen order, filtered by naming convention, with the
// official package first. Packages that fail to resolve are logged and
// skipped. An error is returned only when both searches fail, so callers
// can tell "registry unreachable" from "no plugins published".
func (r *Resolver) ResolveAll(ctx context.Context, registryURL string) ([]Descriptor, error) {
	byKeyword, kwErr := r.client.Search(ctx, registryURL, "keywords:"+PackagePrefix)
	byText, textErr := r.client.Search(ctx, registryURL, PackagePrefix)
	if kwErr != nil && textErr != nil {
		return nil, fault.Wrap(fault.KindTransport, errors.Join(kwErr, textErr), "registry search unavailable")
	}
	if kwErr != nil {
		r.warn(ctx, "keyword search failed", ports.Err(kwErr))
	}
	if textErr != nil {
		r.warn(ctx, "text search failed", ports.Err(textErr))
	}

	candidates := MergeCandidates(byKeyword, byText)

	var out []Descriptor
	seen := make(map[string]string)
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, fault.Wrap(fault.KindTransport, err, "catalog resolution cancelled")
		}

		descriptors, err := r.ResolvePackage(ctx, registryURL, name)
		if err != nil {
			r.warn(ctx, "skipping package", ports.F("package", name), ports.Err(err))
			if r.metrics != nil {
				r.metrics.PackageSkipped(string(fault.KindOf(err)))
			}
			continue
		}

		for _, d := range descriptors {
			if owner, dup := seen[d.ID]; dup {
				r.warn(ctx, "duplicate plugin id ignored",
					ports.F("id", d.ID), ports.F("package", name), ports.F("kept", owner))
				continue
			}
			seen[d.ID] = name
			out = append(out, d)
		}
	}

	if out == nil {
		out = []Descriptor{}
	}
	return out, nil
}

// MergeCandidates unions name lists in first-seen order, keeps names that
// follow the naming convention, and moves the official package first.
func MergeCandidates(lists ...[]string) []string {
	seen := make(map[string]bool)
	var names []string
	official := false

	for _, list := range lists {
		for _, name := range list {
			if seen[name] || !IsPluginPackageName(name) {
				continue
			}
			seen[name] = true
			if name == OfficialPackage {
				official = true
				continue
			}
			names = append(names, name)
		}
	}

	if official {
		names = append([]string{OfficialPackage}, names...)
	}
	return names
}

func notFound(name, step, msg string) *fault.Error {
	return fault.New(fault.KindNotFound, msg).WithPackage(name).WithStep(step)
}

func (r *Resolver) warn(ctx context.Context, msg string, fields ...ports.Field) {
	if r.logger != nil {
		r.logger.Warn(ctx, msg, fields...)
	}
}

func (r *Resolver) debug(ctx context.Context, msg string, fields ...ports.Field) {
	if r.logger != nil {
		r.logger.Debug(ctx, msg, fields...)
	}
}
