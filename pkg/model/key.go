package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	idRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]{1,64}$`)
)

func CheckDocumentID(id string) bool {
	return idRegex.MatchString(id)
}

// DocumentKey identifies a single document within a collection.
type DocumentKey struct {
	Collection string
	ID         string
}

// NewDocumentKey builds a key without validation.
func NewDocumentKey(collection, id string) DocumentKey {
	return DocumentKey{Collection: collection, ID: id}
}

// ParseDocumentKey parses "collection/id". The collection part may itself contain
// slashes for nested collections; the last segment is the document ID.
func ParseDocumentKey(path string) (DocumentKey, error) {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 || idx == len(path)-1 {
		return DocumentKey{}, fmt.Errorf("invalid document path %q", path)
	}
	id := path[idx+1:]
	if !CheckDocumentID(id) {
		return DocumentKey{}, fmt.Errorf("invalid document id %q: must be 1-64 characters of a-z, A-Z, 0-9, _, ., -", id)
	}
	return DocumentKey{Collection: path[:idx], ID: id}, nil
}

func (k DocumentKey) String() string {
	return k.Collection + "/" + k.ID
}

// Compare orders keys by collection, then by ID.
func (k DocumentKey) Compare(other DocumentKey) int {
	if c := strings.Compare(k.Collection, other.Collection); c != 0 {
		return c
	}
	return strings.Compare(k.ID, other.ID)
}

// KeySet is an immutable set of document keys.
type KeySet struct {
	keys map[DocumentKey]struct{}
}

// NewKeySet copies keys into a new set.
func NewKeySet(keys ...DocumentKey) KeySet {
	m := make(map[DocumentKey]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return KeySet{keys: m}
}

func (s KeySet) Has(key DocumentKey) bool {
	_, ok := s.keys[key]
	return ok
}

func (s KeySet) Len() int {
	return len(s.keys)
}

func (s KeySet) IsEmpty() bool {
	return len(s.keys) == 0
}

// Keys returns the members in key order.
func (s KeySet) Keys() []DocumentKey {
	out := make([]DocumentKey, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// With returns a new set that also contains keys.
func (s KeySet) With(keys ...DocumentKey) KeySet {
	m := make(map[DocumentKey]struct{}, len(s.keys)+len(keys))
	for k := range s.keys {
		m[k] = struct{}{}
	}
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return KeySet{keys: m}
}

// Without returns a new set with keys removed.
func (s KeySet) Without(keys ...DocumentKey) KeySet {
	m := make(map[DocumentKey]struct{}, len(s.keys))
	for k := range s.keys {
		m[k] = struct{}{}
	}
	for _, k := range keys {
		delete(m, k)
	}
	return KeySet{keys: m}
}

func (s KeySet) Equal(other KeySet) bool {
	if len(s.keys) != len(other.keys) {
		return false
	}
	for k := range s.keys {
		if _, ok := other.keys[k]; !ok {
			return false
		}
	}
	return true
}
