package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlab/promptsync/internal/remote"
	"github.com/fitlab/promptsync/internal/schema"
	"github.com/fitlab/promptsync/internal/syncerr"
)

func TestRoundTrip(t *testing.T) {
	docs := []*schema.Document{
		{Name: "a/b@1.0.0", Tags: []string{"x", "y"}, Template: "..."},
		{Name: "a/b@1.0.0", Tags: []string{"y", "x"}, Template: "..."},
		{
			Name:        "fit/coding/code-review@2.1.0-rc.1",
			Description: "Review a diff",
			Tags:        []string{"review"},
			Template:    "<system>\nBe precise.\n</system>\n<user>\n{{diff}}\n</user>",
			OriginFramework: &schema.Origin{
				Name:    "CRISPE",
				Source:  "https://example.org/crispe",
				Concept: "role prompting",
			},
		},
		{Name: "misc/empty-meta@0.0.1", Template: "t", OriginFramework: &schema.Origin{Concept: "only concept"}},
	}

	for _, d := range docs {
		t.Run(d.Name, func(t *testing.T) {
			got, err := ToDocument(ToRecord(d))
			require.NoError(t, err)
			assert.True(t, got.Equal(d), "round trip changed %+v into %+v", d, got)
			assert.IsNonDecreasing(t, got.Tags)
		})
	}
}

func TestToRecord(t *testing.T) {
	doc := &schema.Document{
		Name:            "a/b@1.0.0",
		Tags:            []string{"y", "x", "x"},
		Template:        "t",
		OriginFramework: &schema.Origin{Name: "RTF"},
	}
	fields := ToRecord(doc)

	assert.Equal(t, "a/b@1.0.0", fields[remote.FieldName])
	assert.Equal(t, "1.0.0", fields[remote.FieldVersion])
	assert.Equal(t, []string{"x", "y"}, fields[remote.FieldTags])
	assert.Equal(t, map[string]any{"name": "RTF", "source": "", "concept": ""}, fields[remote.FieldOrigin])

	// The input document is left untouched.
	assert.Equal(t, []string{"y", "x", "x"}, doc.Tags)
}

func TestToRecord_OmitsEmptyOrigin(t *testing.T) {
	fields := ToRecord(&schema.Document{Name: "a/b@1.0.0", Template: "t", OriginFramework: &schema.Origin{}})
	assert.NotContains(t, fields, remote.FieldOrigin)
}

func TestToDocument_AcceptsLooseShapes(t *testing.T) {
	fields := remote.Fields{
		remote.FieldName:     "a/b@1.0.0",
		remote.FieldTemplate: "t",
		remote.FieldTags:     []any{"y", "x"},
		remote.FieldOrigin:   map[string]string{"name": "RTF"},
		"last_edited_by":     "someone",
		"archived":           false,
	}

	doc, err := ToDocument(fields)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, doc.Tags)
	assert.Equal(t, "1.0.0", doc.Version)
	require.NotNil(t, doc.OriginFramework)
	assert.Equal(t, "RTF", doc.OriginFramework.Name)
}

func TestToDocument_SchemaMismatch(t *testing.T) {
	valid := func() remote.Fields {
		return remote.Fields{remote.FieldName: "a/b@1.0.0", remote.FieldTemplate: "t"}
	}

	tests := []struct {
		name   string
		mutate func(remote.Fields)
		field  string
	}{
		{"missing name", func(f remote.Fields) { delete(f, remote.FieldName) }, "name"},
		{"nil name", func(f remote.Fields) { f[remote.FieldName] = nil }, "name"},
		{"name not string", func(f remote.Fields) { f[remote.FieldName] = 42 }, "name"},
		{"malformed name", func(f remote.Fields) { f[remote.FieldName] = "no-version" }, "name"},
		{"missing template", func(f remote.Fields) { delete(f, remote.FieldTemplate) }, "template"},
		{"template not string", func(f remote.Fields) { f[remote.FieldTemplate] = []string{"t"} }, "template"},
		{"empty template", func(f remote.Fields) { f[remote.FieldTemplate] = "" }, "template"},
		{"version disagrees", func(f remote.Fields) { f[remote.FieldVersion] = "9.9.9" }, "version"},
		{"description not string", func(f remote.Fields) { f[remote.FieldDescription] = true }, "description"},
		{"tags not list", func(f remote.Fields) { f[remote.FieldTags] = "x,y" }, "tags"},
		{"tag not string", func(f remote.Fields) { f[remote.FieldTags] = []any{"x", 1} }, "tags"},
		{"origin not object", func(f remote.Fields) { f[remote.FieldOrigin] = "CRISPE" }, "origin_framework"},
		{"origin field not string", func(f remote.Fields) {
			f[remote.FieldOrigin] = map[string]any{"name": 3}
		}, "origin_framework.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := valid()
			tt.mutate(fields)

			_, err := ToDocument(fields)
			require.Error(t, err)
			assert.ErrorIs(t, err, syncerr.ErrSchemaMismatch)

			var mismatch *syncerr.SchemaMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tt.field, mismatch.Field)
		})
	}
}

func TestEqual(t *testing.T) {
	doc := &schema.Document{Name: "a/b@1.0.0", Tags: []string{"x"}, Template: "t"}

	assert.True(t, Equal(ToRecord(doc), doc))

	withExtra := ToRecord(doc)
	withExtra["created_time"] = "2026-01-01T00:00:00Z"
	assert.True(t, Equal(withExtra, doc))

	changed := ToRecord(doc)
	changed[remote.FieldDescription] = "new"
	assert.False(t, Equal(changed, doc))

	assert.False(t, Equal(remote.Fields{}, doc))
}
