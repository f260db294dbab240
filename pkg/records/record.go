// Package records provides the record model the linkage engine compares: immutable records with
// integer-indexed string fields, the missing-value vocabulary and record sources.
package records

import (
	"context"
	"fmt"
	"strings"
)

// FieldID names a semantic field of a record type. Its meaning is opaque to the engine.
type FieldID int

// Record is a structured entity with indexed string fields.
type Record interface {
	// ID returns the stable standardised identifier of the record.
	ID() string
	// Field returns the raw value of a field and whether the record carries it at all.
	Field(id FieldID) (string, bool)
	// FieldName returns a human readable name for diagnostics.
	FieldName(id FieldID) string
}

// Source supplies the records of one record category.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// Schema is an ordered list of field names for one record type. The position of a name is its FieldID.
type Schema struct {
	Type   string
	Fields []string
	index  map[string]FieldID
}

func NewSchema(recordType string, fields ...string) *Schema {
	s := &Schema{
		Type:   recordType,
		Fields: fields,
		index:  make(map[string]FieldID, len(fields)),
	}
	for i, f := range fields {
		s.index[f] = FieldID(i)
	}
	return s
}

// Lookup returns the FieldID of a named field.
func (s *Schema) Lookup(name string) (FieldID, bool) {
	id, ok := s.index[name]
	return id, ok
}

// FieldIDs resolves a list of field names, failing on the first unknown name.
func (s *Schema) FieldIDs(names ...string) ([]FieldID, error) {
	ids := make([]FieldID, 0, len(names))
	for _, name := range names {
		id, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown field '%s' for record type '%s'", name, s.Type)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Schema) Name(id FieldID) string {
	if int(id) < 0 || int(id) >= len(s.Fields) {
		return fmt.Sprintf("field_%d", id)
	}
	return s.Fields[id]
}

// Fields is the default Record implementation: an id plus values laid out by a Schema.
type Fields struct {
	id     string
	schema *Schema
	values []string
}

// New creates a record. Values beyond the schema are ignored; absent trailing values read as missing.
func New(schema *Schema, id string, values ...string) *Fields {
	v := make([]string, len(schema.Fields))
	copy(v, values)
	return &Fields{
		id:     id,
		schema: schema,
		values: v,
	}
}

// FromMap creates a record from named values.
func FromMap(schema *Schema, id string, values map[string]string) *Fields {
	r := New(schema, id)
	for name, value := range values {
		if fid, ok := schema.Lookup(name); ok {
			r.values[fid] = value
		}
	}
	return r
}

func (r *Fields) ID() string {
	return r.id
}

func (r *Fields) Field(id FieldID) (string, bool) {
	if int(id) < 0 || int(id) >= len(r.values) {
		return "", false
	}
	return r.values[id], true
}

func (r *Fields) FieldName(id FieldID) string {
	return r.schema.Name(id)
}

func (r *Fields) Schema() *Schema {
	return r.schema
}

func (r *Fields) String() string {
	var sb strings.Builder
	sb.WriteString(r.id)
	sb.WriteString("{")
	for i, v := range r.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.schema.Fields[i])
		sb.WriteString("=")
		sb.WriteString(v)
	}
	sb.WriteString("}")
	return sb.String()
}

// Slice is an in-memory Source.
type Slice []Record

func (s Slice) Records(_ context.Context) ([]Record, error) {
	out := make([]Record, len(s))
	copy(out, s)
	return out, nil
}

// Index maps record ids to records for reference resolution.
type Index map[string]Record

func NewIndex(collections ...[]Record) Index {
	idx := Index{}
	for _, c := range collections {
		for _, r := range c {
			idx[r.ID()] = r
		}
	}
	return idx
}

// Resolve returns the record for an id.
func (idx Index) Resolve(id string) (Record, bool) {
	r, ok := idx[id]
	return r, ok
}
