// Package remote defines the capability set the sync jobs consume from the
// remote prompt database, independent of its transport.
//
// Implementations:
//   - internal/remote/notion: Notion databases over the public REST API
//   - internal/remote/sqlitedb: a self-hosted SQLite database
package remote

import (
	"context"
	"iter"
	"maps"
)

// Well-known field keys of a remote record.
const (
	FieldName        = "name"
	FieldVersion     = "version"
	FieldDescription = "description"
	FieldTags        = "tags"
	FieldTemplate    = "template"
	FieldOrigin      = "origin_framework"

	// Keys of the nested origin_framework map.
	OriginName    = "name"
	OriginSource  = "source"
	OriginConcept = "concept"
)

// Fields holds the opaque key/value content of a remote record.
type Fields map[string]any

// Clone returns a shallow copy of the fields.
func (f Fields) Clone() Fields {
	return maps.Clone(f)
}

// Record is the database-side representation of a template document.
// ID is assigned by the backend and is distinct from the template name.
type Record struct {
	ID     string
	Fields Fields
}

// Name returns the record's template name, or "" when absent or not a string.
func (r Record) Name() string {
	s, _ := r.Fields[FieldName].(string)
	return s
}

// Client is a session with the remote database.
//
// All methods may fail with a *syncerr.TransportError (transient) or a
// *syncerr.RejectedError (permanent). The caller owns the session and must
// call Close on every exit path.
type Client interface {
	// ListAll enumerates every record lazily, page by page. The sequence can
	// only be restarted from the beginning. Iteration stops after the first
	// error is yielded.
	ListAll(ctx context.Context) iter.Seq2[Record, error]

	// FindByName returns the record whose name equals name.
	// The boolean is false when no such record exists.
	FindByName(ctx context.Context, name string) (Record, bool, error)

	// Upsert creates the record for name, or updates it in place when one
	// exists, and returns the persisted record including its identifier.
	Upsert(ctx context.Context, name string, fields Fields) (Record, error)

	// Close releases the session.
	Close() error
}
