// Package docset implements the persistent, query-ordered document set that
// views and snapshots share.
package docset

import (
	"sync"

	"github.com/google/btree"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

// degree 32 as in the index btrees
const degree = 32

// Comparator orders documents for a query. It must be total: documents with
// different keys never compare equal once the key tie-break is applied.
type Comparator func(a, b *model.Document) int

// Set is an immutable ordered set of documents, unique by key. Insert and
// Remove return a new Set; the receiver is never changed, so a Set can be
// shared between snapshots and goroutines freely.
type Set struct {
	cmp    Comparator
	byKey  *btree.BTreeG[*model.Document]
	sorted *btree.BTreeG[*model.Document]

	// btree Clone rewrites the source's copy-on-write context.
	cloneMu *sync.Mutex
}

// New returns an empty set ordered by cmp. A nil cmp orders by key.
func New(cmp Comparator) *Set {
	if cmp == nil {
		cmp = func(a, b *model.Document) int { return 0 }
	}
	return &Set{
		cmp:     cmp,
		byKey:   btree.NewG[*model.Document](degree, keyLess),
		sorted:  btree.NewG[*model.Document](degree, sortedLess(cmp)),
		cloneMu: &sync.Mutex{},
	}
}

func keyLess(a, b *model.Document) bool {
	return a.Key().Compare(b.Key()) < 0
}

func sortedLess(cmp Comparator) btree.LessFunc[*model.Document] {
	return func(a, b *model.Document) bool {
		if c := cmp(a, b); c != 0 {
			return c < 0
		}
		return a.Key().Compare(b.Key()) < 0
	}
}

func keyOnly(key model.DocumentKey) *model.Document {
	return model.NewMissingDocument(key, 0)
}

// Empty returns an empty set with the same ordering.
func (s *Set) Empty() *Set {
	return New(s.cmp)
}

func (s *Set) clone() *Set {
	s.cloneMu.Lock()
	defer s.cloneMu.Unlock()
	return &Set{
		cmp:     s.cmp,
		byKey:   s.byKey.Clone(),
		sorted:  s.sorted.Clone(),
		cloneMu: &sync.Mutex{},
	}
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.byKey.Len()
}

func (s *Set) IsEmpty() bool {
	return s.Len() == 0
}

// Get returns the document stored under key, or nil.
func (s *Set) Get(key model.DocumentKey) *model.Document {
	if s == nil {
		return nil
	}
	doc, _ := s.byKey.Get(keyOnly(key))
	return doc
}

func (s *Set) Has(key model.DocumentKey) bool {
	return s.Get(key) != nil
}

// Insert returns a set containing doc, replacing any document with the same key.
func (s *Set) Insert(doc *model.Document) *Set {
	out := s.clone()
	if old, ok := out.byKey.Get(doc); ok {
		out.sorted.Delete(old)
	}
	out.byKey.ReplaceOrInsert(doc)
	out.sorted.ReplaceOrInsert(doc)
	return out
}

// Remove returns a set without key. Removing an unknown key returns the receiver.
func (s *Set) Remove(key model.DocumentKey) *Set {
	old := s.Get(key)
	if old == nil {
		return s
	}
	out := s.clone()
	out.byKey.Delete(old)
	out.sorted.Delete(old)
	return out
}

// First returns the first document in query order, or nil.
func (s *Set) First() *model.Document {
	if s.IsEmpty() {
		return nil
	}
	doc, _ := s.sorted.Min()
	return doc
}

// Last returns the last document in query order, or nil.
func (s *Set) Last() *model.Document {
	if s.IsEmpty() {
		return nil
	}
	doc, _ := s.sorted.Max()
	return doc
}

// Each visits documents in query order until fn returns false.
func (s *Set) Each(fn func(doc *model.Document) bool) {
	if s == nil {
		return
	}
	s.sorted.Ascend(func(doc *model.Document) bool {
		return fn(doc)
	})
}

// Documents returns the documents in query order.
func (s *Set) Documents() []*model.Document {
	out := make([]*model.Document, 0, s.Len())
	s.Each(func(doc *model.Document) bool {
		out = append(out, doc)
		return true
	})
	return out
}

// Keys returns the set's keys.
func (s *Set) Keys() model.KeySet {
	keys := make([]model.DocumentKey, 0, s.Len())
	s.Each(func(doc *model.Document) bool {
		keys = append(keys, doc.Key())
		return true
	})
	return model.NewKeySet(keys...)
}

// Equal reports whether both sets hold the same documents in the same order.
// Documents are compared with StateEqual, so version-only differences do not
// count.
func (s *Set) Equal(other *Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	a, b := s.Documents(), other.Documents()
	for i := range a {
		if !a[i].StateEqual(b[i]) {
			return false
		}
	}
	return true
}

// Diff lists what changed from old to s: Removed for keys only in old (in
// old's order), then Added for new keys and Modified for keys whose content or
// local mutation flag differs (in s's order). A version-only difference is
// not a change. Diff never emits ChangeMetadata; telling
// content changes from metadata-only ones is the caller's job.
func (s *Set) Diff(old *Set) []DocumentChange {
	var changes []DocumentChange
	old.Each(func(doc *model.Document) bool {
		if !s.Has(doc.Key()) {
			changes = append(changes, DocumentChange{Type: ChangeRemoved, Doc: doc})
		}
		return true
	})
	s.Each(func(doc *model.Document) bool {
		prev := old.Get(doc.Key())
		switch {
		case prev == nil:
			changes = append(changes, DocumentChange{Type: ChangeAdded, Doc: doc})
		case !prev.StateEqual(doc):
			changes = append(changes, DocumentChange{Type: ChangeModified, Doc: doc})
		}
		return true
	})
	return changes
}

// Apply replays changes in order and returns the resulting set.
func (s *Set) Apply(changes []DocumentChange) *Set {
	out := s
	for _, c := range changes {
		if c.Type == ChangeRemoved {
			out = out.Remove(c.Doc.Key())
		} else {
			out = out.Insert(c.Doc)
		}
	}
	return out
}
