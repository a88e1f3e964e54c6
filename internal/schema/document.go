// Package schema provides data structures for prompt template files.
package schema

import (
	"slices"

	"github.com/fitlab/promptsync/internal/syncerr"
)

// Document is a prompt template stored as an individual YAML file.
type Document struct {
	// ===== Identity =====
	Name    string `yaml:"name"`
	Version string `yaml:"-"` // always the @version suffix of Name

	// ===== Content =====
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Template    string   `yaml:"template"` // opaque, role-delimited prompt text

	// ===== Provenance =====
	OriginFramework *Origin `yaml:"origin_framework,omitempty"`
}

// Origin records which prompting framework a template comes from.
type Origin struct {
	Name    string `yaml:"name,omitempty"`
	Source  string `yaml:"source,omitempty"`
	Concept string `yaml:"concept,omitempty"`
}

// IsZero reports whether every origin field is empty.
func (o *Origin) IsZero() bool {
	return o == nil || (o.Name == "" && o.Source == "" && o.Concept == "")
}

// Validate checks that the document has a well-formed name and a template.
// A Version that is set must agree with the name.
func (d *Document) Validate() error {
	if d.Name == "" {
		return syncerr.Mismatch("name", "is required")
	}
	n, err := ParseName(d.Name)
	if err != nil {
		return err
	}
	if d.Version != "" && d.Version != n.Version {
		return syncerr.Mismatch("version", "%q does not match name %q", d.Version, d.Name)
	}
	if d.Template == "" {
		return syncerr.Mismatch("template", "is required")
	}
	return nil
}

// Normalize brings the document into canonical form: Version derived from Name,
// tags sorted and de-duplicated (never nil), an empty origin removed.
// Normalize does not validate; call Validate first.
func (d *Document) Normalize() {
	if n, err := ParseName(d.Name); err == nil {
		d.Version = n.Version
	}
	d.Tags = NormalizeTags(d.Tags)
	if d.OriginFramework.IsZero() {
		d.OriginFramework = nil
	}
}

// NormalizeTags returns a sorted copy of tags without duplicates or empty entries.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Path returns the document's file path relative to the template directory.
// The name must be valid.
func (d *Document) Path() (string, error) {
	n, err := ParseName(d.Name)
	if err != nil {
		return "", err
	}
	return n.Path(), nil
}

// Equal reports whether two documents are the same after normalization.
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	a, b := *d, *other
	a.Normalize()
	b.Normalize()

	if a.Name != b.Name || a.Version != b.Version ||
		a.Description != b.Description || a.Template != b.Template {
		return false
	}
	if !slices.Equal(a.Tags, b.Tags) {
		return false
	}
	switch {
	case a.OriginFramework == nil && b.OriginFramework == nil:
		return true
	case a.OriginFramework == nil || b.OriginFramework == nil:
		return false
	default:
		return *a.OriginFramework == *b.OriginFramework
	}
}
