// Package mapper converts between remote records and template documents.
//
// The conversion is pure and stateless. ToRecord is total over valid
// documents; ToDocument rejects records that miss a required field or carry
// a known field of the wrong shape, and silently drops unknown fields.
//
// For every valid document d:
//
//	doc, _ := mapper.ToDocument(mapper.ToRecord(d))
//	doc.Equal(d) // true; tags come back sorted
package mapper

import (
	"github.com/fitlab/promptsync/internal/remote"
	"github.com/fitlab/promptsync/internal/schema"
	"github.com/fitlab/promptsync/internal/syncerr"
)

// ToDocument extracts a normalized document from remote record fields.
func ToDocument(fields remote.Fields) (*schema.Document, error) {
	name, err := requiredString(fields, remote.FieldName)
	if err != nil {
		return nil, err
	}
	template, err := requiredString(fields, remote.FieldTemplate)
	if err != nil {
		return nil, err
	}
	version, err := optionalString(fields, remote.FieldVersion)
	if err != nil {
		return nil, err
	}
	description, err := optionalString(fields, remote.FieldDescription)
	if err != nil {
		return nil, err
	}
	tags, err := stringList(fields, remote.FieldTags)
	if err != nil {
		return nil, err
	}
	origin, err := originOf(fields)
	if err != nil {
		return nil, err
	}

	doc := &schema.Document{
		Name:            name,
		Version:         version,
		Description:     description,
		Tags:            tags,
		Template:        template,
		OriginFramework: origin,
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	doc.Normalize()
	return doc, nil
}

// ToRecord returns the remote fields for a document. Tags are emitted in
// canonical order and the version is written explicitly.
func ToRecord(doc *schema.Document) remote.Fields {
	d := *doc
	d.Normalize()

	fields := remote.Fields{
		remote.FieldName:        d.Name,
		remote.FieldVersion:     d.Version,
		remote.FieldDescription: d.Description,
		remote.FieldTags:        d.Tags,
		remote.FieldTemplate:    d.Template,
	}
	if d.OriginFramework != nil {
		fields[remote.FieldOrigin] = map[string]any{
			remote.OriginName:    d.OriginFramework.Name,
			remote.OriginSource:  d.OriginFramework.Source,
			remote.OriginConcept: d.OriginFramework.Concept,
		}
	}
	return fields
}

// Equal reports whether the record fields describe the same document as doc.
// Records that do not map cleanly are never equal.
func Equal(fields remote.Fields, doc *schema.Document) bool {
	got, err := ToDocument(fields)
	if err != nil {
		return false
	}
	return got.Equal(doc)
}

func requiredString(fields remote.Fields, key string) (string, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", syncerr.Mismatch(key, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", syncerr.Mismatch(key, "want string, got %T", v)
	}
	return s, nil
}

func optionalString(fields remote.Fields, key string) (string, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", syncerr.Mismatch(key, "want string, got %T", v)
	}
	return s, nil
}

func stringList(fields remote.Fields, key string) ([]string, error) {
	switch v := fields[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, syncerr.Mismatch(key, "item %d: want string, got %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, syncerr.Mismatch(key, "want list of strings, got %T", v)
	}
}

func originOf(fields remote.Fields) (*schema.Origin, error) {
	var m map[string]any
	switch v := fields[remote.FieldOrigin].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		m = v
	case map[string]string:
		m = make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
	default:
		return nil, syncerr.Mismatch(remote.FieldOrigin, "want object, got %T", v)
	}

	var origin schema.Origin
	for key, dst := range map[string]*string{
		remote.OriginName:    &origin.Name,
		remote.OriginSource:  &origin.Source,
		remote.OriginConcept: &origin.Concept,
	} {
		switch v := m[key].(type) {
		case nil:
		case string:
			*dst = v
		default:
			return nil, syncerr.Mismatch(remote.FieldOrigin+"."+key, "want string, got %T", v)
		}
	}

	if origin.IsZero() {
		return nil, nil
	}
	return &origin, nil
}
