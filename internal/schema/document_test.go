package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlab/promptsync/internal/syncerr"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantErr  bool
		category string
		slug     string
		version  string
	}{
		{name: "simple", input: "a/b@1.0.0", category: "a", slug: "b", version: "1.0.0"},
		{name: "hierarchical category", input: "fit/coding/code-review@1.2.3", category: "fit/coding", slug: "code-review", version: "1.2.3"},
		{name: "prerelease", input: "a/b@2.0.0-rc.1", category: "a", slug: "b", version: "2.0.0-rc.1"},
		{name: "build metadata", input: "a/b@2.0.0+exp.sha.5114f85", category: "a", slug: "b", version: "2.0.0+exp.sha.5114f85"},
		{name: "missing version", input: "a/b", wantErr: true},
		{name: "missing category", input: "b@1.0.0", wantErr: true},
		{name: "short version", input: "a/b@1.0", wantErr: true},
		{name: "v prefix", input: "a/b@v1.0.0", wantErr: true},
		{name: "not semver", input: "a/b@latest", wantErr: true},
		{name: "uppercase segment", input: "A/b@1.0.0", wantErr: true},
		{name: "dot dot segment", input: "../b@1.0.0", wantErr: true},
		{name: "empty segment", input: "a//b@1.0.0", wantErr: true},
		{name: "space in slug", input: "a/b c@1.0.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, syncerr.ErrSchemaMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.category, n.Category)
			assert.Equal(t, tt.slug, n.Slug)
			assert.Equal(t, tt.version, n.Version)
			assert.Equal(t, tt.input, n.String())
		})
	}
}

func TestNamePath(t *testing.T) {
	n, err := ParseName("fit/coding/code-review@1.2.3")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("fit", "coding", "code-review@1.2.3.yaml"), n.Path())
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantErr string
	}{
		{name: "valid", doc: Document{Name: "a/b@1.0.0", Template: "t"}},
		{name: "valid with matching version", doc: Document{Name: "a/b@1.0.0", Version: "1.0.0", Template: "t"}},
		{name: "missing name", doc: Document{Template: "t"}, wantErr: `field "name": is required`},
		{name: "bad name", doc: Document{Name: "nope", Template: "t"}, wantErr: `field "name"`},
		{name: "version disagrees", doc: Document{Name: "a/b@1.0.0", Version: "1.0.1", Template: "t"}, wantErr: `field "version"`},
		{name: "missing template", doc: Document{Name: "a/b@1.0.0"}, wantErr: `field "template": is required`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, syncerr.ErrSchemaMismatch)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDocument_Normalize(t *testing.T) {
	doc := Document{
		Name:            "a/b@1.0.0",
		Tags:            []string{"y", "x", "y", ""},
		Template:        "t",
		OriginFramework: &Origin{},
	}
	doc.Normalize()

	assert.Equal(t, "1.0.0", doc.Version)
	assert.Equal(t, []string{"x", "y"}, doc.Tags)
	assert.Nil(t, doc.OriginFramework)

	empty := Document{Name: "a/b@1.0.0", Template: "t"}
	empty.Normalize()
	assert.NotNil(t, empty.Tags)
	assert.Empty(t, empty.Tags)
}

func TestDocument_Equal(t *testing.T) {
	base := &Document{Name: "a/b@1.0.0", Tags: []string{"x", "y"}, Template: "t",
		OriginFramework: &Origin{Name: "CRISPE"}}

	reordered := &Document{Name: "a/b@1.0.0", Tags: []string{"y", "x"}, Template: "t",
		OriginFramework: &Origin{Name: "CRISPE"}}
	assert.True(t, base.Equal(reordered))

	changed := *reordered
	changed.Template = "u"
	assert.False(t, base.Equal(&changed))

	noOrigin := *reordered
	noOrigin.OriginFramework = nil
	assert.False(t, base.Equal(&noOrigin))

	assert.False(t, base.Equal(nil))
	assert.True(t, (*Document)(nil).Equal(nil))
}

func TestWriteAndReadDocumentFile(t *testing.T) {
	dir := t.TempDir()
	doc := &Document{
		Name:        "fit/coding/code-review@1.2.0",
		Description: "Review a diff",
		Tags:        []string{"review", "coding"},
		Template:    "<system>\nYou are a careful reviewer.\n</system>\n<user>\n{{diff}}\n</user>",
		OriginFramework: &Origin{
			Name:    "CRISPE",
			Source:  "https://example.org/crispe",
			Concept: "role prompting",
		},
	}

	rel, err := WriteDocumentFile(dir, doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("fit", "coding", "code-review@1.2.0.yaml"), rel)

	data, err := os.ReadFile(filepath.Join(dir, rel))
	require.NoError(t, err)
	assert.Equal(t, "---\n", string(data[:4]))
	assert.Contains(t, string(data), "template: |-\n")
	assert.NotContains(t, string(data), "version:")

	got, err := ReadDocumentFile(dir, rel)
	require.NoError(t, err)
	assert.True(t, doc.Equal(got))
	assert.Equal(t, []string{"coding", "review"}, got.Tags)
	assert.Equal(t, "1.2.0", got.Version)
}

func TestMarshal_Deterministic(t *testing.T) {
	a := &Document{Name: "a/b@1.0.0", Tags: []string{"y", "x"}, Template: "line1\nline2"}
	b := &Document{Name: "a/b@1.0.0", Tags: []string{"x", "y", "x"}, Template: "line1\nline2"}

	da, err := Marshal(a)
	require.NoError(t, err)
	db, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(da), string(db))
}

func TestReadDocumentFile_PathMismatch(t *testing.T) {
	dir := t.TempDir()
	content := "---\nname: a/b@1.0.0\ntemplate: t\n"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "other@1.0.0.yaml"), []byte(content), 0644))

	_, err := ReadDocumentFile(dir, filepath.Join("a", "other@1.0.0.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrSchemaMismatch)
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "name: [unterminated"},
		{"tags wrong shape", "name: a/b@1.0.0\ntemplate: t\ntags: {x: 1}\n"},
		{"missing template", "name: a/b@1.0.0\n"},
		{"scalar document", "just a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, syncerr.ErrSchemaMismatch)
		})
	}
}

func TestUnmarshal_IgnoresUnknownKeys(t *testing.T) {
	data := "---\nname: a/b@1.0.0\ntemplate: t\nquality_dimensions: [clarity]\nmetadata:\n  license: internal\n"
	doc, err := Unmarshal([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "a/b@1.0.0", doc.Name)
}
