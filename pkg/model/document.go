package model

import (
	"fmt"
	"reflect"
	"strings"
)

// Fields is the user-facing content of a document, a JSON-like object.
type Fields map[string]interface{}

// Value resolves a dotted field path ("user.name"). The second result is false
// when any segment is missing or not an object.
func (f Fields) Value(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(f)
	for _, part := range strings.Split(path, ".") {
		m, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a deep copy of the fields.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return Fields(cloneValue(map[string]interface{}(f)).(map[string]interface{}))
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Fields:
		return m, true
	}
	return nil, false
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Fields:
		return cloneValue(map[string]interface{}(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Document is an immutable snapshot of one record. A changed record is a new
// Document value; nothing mutates an existing one.
type Document struct {
	key               DocumentKey
	version           int64
	fields            Fields
	exists            bool
	hasLocalMutations bool
}

// NewDocument returns an existing document. fields is deep-copied.
func NewDocument(key DocumentKey, version int64, fields Fields) *Document {
	if fields == nil {
		fields = Fields{}
	}
	return &Document{
		key:     key,
		version: version,
		fields:  fields.Clone(),
		exists:  true,
	}
}

// NewMissingDocument returns a tombstone: the backend confirmed the key does not exist.
func NewMissingDocument(key DocumentKey, version int64) *Document {
	return &Document{key: key, version: version}
}

// WithLocalMutations returns a copy carrying the given pending-write flag.
func (d *Document) WithLocalMutations(pending bool) *Document {
	cp := *d
	cp.hasLocalMutations = pending
	return &cp
}

// Key returns the document key.
func (d *Document) Key() DocumentKey { return d.key }

// Version returns the backend version the document was read at.
func (d *Document) Version() int64 { return d.version }

// Exists reports whether the document was found; false marks a deletion.
func (d *Document) Exists() bool { return d.exists }

// HasLocalMutations reports whether the document carries writes not yet
// acknowledged by the backend.
func (d *Document) HasLocalMutations() bool { return d.hasLocalMutations }

// Fields returns a copy of the document content.
func (d *Document) Fields() Fields {
	return d.fields.Clone()
}

// Value resolves a dotted field path without copying.
func (d *Document) Value(path string) (interface{}, bool) {
	return d.fields.Value(path)
}

// Data exposes the content read-only for predicate evaluation. Callers must not modify it.
func (d *Document) Data() map[string]interface{} {
	return d.fields
}

// ContentEqual compares identity, existence and fields. The version and the
// local mutation flag are not content: a write acknowledged by the backend
// bumps the version without changing what the document says.
func (d *Document) ContentEqual(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.key == other.key &&
		d.exists == other.exists &&
		reflect.DeepEqual(d.fields, other.fields)
}

// StateEqual reports whether a reader could tell the two apart: same content
// and same local mutation flag. Versions are ignored.
func (d *Document) StateEqual(other *Document) bool {
	if !d.ContentEqual(other) {
		return false
	}
	return d == nil || d.hasLocalMutations == other.hasLocalMutations
}

// Equal compares every attribute, version included.
func (d *Document) Equal(other *Document) bool {
	if !d.StateEqual(other) {
		return false
	}
	return d == nil || d.version == other.version
}

func (d *Document) String() string {
	flag := ""
	if d.hasLocalMutations {
		flag = " (local)"
	}
	if !d.exists {
		return fmt.Sprintf("Missing(%s, v%d)%s", d.key, d.version, flag)
	}
	return fmt.Sprintf("Document(%s, v%d, %v)%s", d.key, d.version, map[string]interface{}(d.fields), flag)
}
