package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/usefultools/toolbox/internal/domain/fault"
)

// Descriptor advertises one installable tool. It is also the shape of an
// installed plugin's meta.json. Optional fields serialize as null.
type Descriptor struct {
	ID          string   `json:"id" yaml:"id"`
	Version     string   `json:"version" yaml:"version"`
	Author      string   `json:"author" yaml:"author"`
	Homepage    *string  `json:"homepage" yaml:"homepage,omitempty"`
	Icon        string   `json:"icon" yaml:"icon"`
	Title       string   `json:"title" yaml:"title"`
	Subtitle    string   `json:"subtitle" yaml:"subtitle"`
	Description string   `json:"description" yaml:"description"`
	BgColor     string   `json:"bgColor" yaml:"bgColor"`
	TextColor   *string  `json:"textColor" yaml:"textColor,omitempty"`
	Categories  []string `json:"categories" yaml:"categories"`
	Requires    []string `json:"requires" yaml:"requires"`
	// PackageName is the registry package the descriptor came from.
	PackageName string `json:"packageName" yaml:"packageName"`
	// BundleFile is the bundle path relative to the package root.
	BundleFile string   `json:"bundleFile" yaml:"bundleFile"`
	Downloads  *uint64  `json:"downloads" yaml:"downloads,omitempty"`
	Rating     *float32 `json:"rating" yaml:"rating,omitempty"`
	UpdatedAt  *string  `json:"updatedAt" yaml:"updatedAt,omitempty"`
	CreatedAt  *string  `json:"createdAt" yaml:"createdAt,omitempty"`
}

// ManifestEntry is one tool as declared by a package author in plugin.json.
type ManifestEntry struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Author      string   `json:"author"`
	Homepage    *string  `json:"homepage,omitempty"`
	Icon        string   `json:"icon"`
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle"`
	Description string   `json:"description"`
	BgColor     string   `json:"bgColor"`
	TextColor   *string  `json:"textColor,omitempty"`
	Categories  []string `json:"categories"`
	Requires    []string `json:"requires"`
	Bundle      string   `json:"bundle"`
}

// Descriptor converts the entry, tagging it with the owning package.
func (e ManifestEntry) Descriptor(packageName string) Descriptor {
	return Descriptor{
		ID:          e.ID,
		Version:     e.Version,
		Author:      e.Author,
		Homepage:    e.Homepage,
		Icon:        e.Icon,
		Title:       e.Title,
		Subtitle:    e.Subtitle,
		Description: e.Description,
		BgColor:     e.BgColor,
		TextColor:   e.TextColor,
		Categories:  nonNil(e.Categories),
		Requires:    nonNil(e.Requires),
		PackageName: packageName,
		BundleFile:  e.Bundle,
	}
}

func (e ManifestEntry) validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("entry is missing id")
	case e.Version == "":
		return fmt.Errorf("entry %q is missing version", e.ID)
	case e.Bundle == "":
		return fmt.Errorf("entry %q is missing bundle", e.ID)
	}
	return nil
}

// Manifest is a decoded plugin.json. Authors may write either a single
// entry object or {"plugins": [...]}; both decode to the same list.
type Manifest struct {
	entries []ManifestEntry
}

// Entries returns the declared entries in file order.
func (m Manifest) Entries() []ManifestEntry {
	return m.entries
}

// UnmarshalJSON accepts both manifest forms.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if raw, ok := probe["plugins"]; ok {
		var entries []ManifestEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("plugins: %w", err)
		}
		if entries == nil {
			return fmt.Errorf("plugins: must be a list")
		}
		m.entries = entries
		return nil
	}

	var entry ManifestEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	m.entries = []ManifestEntry{entry}
	return nil
}

// MarshalJSON writes the single-entry form when there is exactly one entry.
func (m Manifest) MarshalJSON() ([]byte, error) {
	if len(m.entries) == 1 {
		return json.Marshal(m.entries[0])
	}
	return json.Marshal(struct {
		Plugins []ManifestEntry `json:"plugins"`
	}{Plugins: m.entries})
}

// ParseManifest decodes and validates plugin.json content.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), &m); err != nil {
		return Manifest{}, fault.Wrap(fault.KindDecode, err, "malformed plugin.json")
	}
	for _, e := range m.entries {
		if err := e.validate(); err != nil {
			return Manifest{}, fault.Wrap(fault.KindDecode, err, "malformed plugin.json")
		}
	}
	return m, nil
}

// Descriptors converts every entry, tagging each with packageName.
func (m Manifest) Descriptors(packageName string) []Descriptor {
	out := make([]Descriptor, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Descriptor(packageName))
	}
	return out
}

// DecodeDescriptor parses a meta.json document.
func DecodeDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fault.Wrap(fault.KindDecode, err, "malformed plugin metadata")
	}
	if d.ID == "" {
		return Descriptor{}, fault.New(fault.KindDecode, "plugin metadata is missing id")
	}
	return d.Normalized(), nil
}

// Normalized returns d with nil lists replaced by empty ones.
func (d Descriptor) Normalized() Descriptor {
	d.Categories = nonNil(d.Categories)
	d.Requires = nonNil(d.Requires)
	return d
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
