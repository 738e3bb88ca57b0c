package view

import (
	"fmt"
	"strings"

	"github.com/syntrixbase/syntrix-client/internal/docset"
	"github.com/syntrixbase/syntrix-client/internal/query"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

// Snapshot describes one transition of a view. It is never mutated after
// construction and may be shared across listeners and goroutines.
type Snapshot struct {
	query                   *query.Query
	documents               *docset.Set
	oldDocuments            *docset.Set
	changes                 []docset.DocumentChange
	mutatedKeys             model.KeySet
	fromCache               bool
	syncStateChanged        bool
	excludesMetadataChanges bool
}

// NewSnapshot builds a snapshot. changes is copied.
func NewSnapshot(
	q *query.Query,
	documents, oldDocuments *docset.Set,
	changes []docset.DocumentChange,
	mutatedKeys model.KeySet,
	fromCache, syncStateChanged, excludesMetadataChanges bool,
) *Snapshot {
	return &Snapshot{
		query:                   q,
		documents:               documents,
		oldDocuments:            oldDocuments,
		changes:                 append([]docset.DocumentChange(nil), changes...),
		mutatedKeys:             mutatedKeys,
		fromCache:               fromCache,
		syncStateChanged:        syncStateChanged,
		excludesMetadataChanges: excludesMetadataChanges,
	}
}

// FromInitialDocuments builds the snapshot a listener sees first: the
// baseline is empty, so every document is Added in query order.
func FromInitialDocuments(q *query.Query, documents *docset.Set, mutatedKeys model.KeySet, fromCache, excludesMetadataChanges bool) *Snapshot {
	empty := documents.Empty()
	return &Snapshot{
		query:                   q,
		documents:               documents,
		oldDocuments:            empty,
		changes:                 documents.Diff(empty),
		mutatedKeys:             mutatedKeys,
		fromCache:               fromCache,
		syncStateChanged:        true,
		excludesMetadataChanges: excludesMetadataChanges,
	}
}

// WithChanges returns a copy with a different change list and exclusion flag.
func (s *Snapshot) WithChanges(changes []docset.DocumentChange, excludesMetadataChanges bool) *Snapshot {
	cp := *s
	cp.changes = append([]docset.DocumentChange(nil), changes...)
	cp.excludesMetadataChanges = excludesMetadataChanges
	return &cp
}

// Query returns the query the snapshot answers.
func (s *Snapshot) Query() *query.Query { return s.query }

// Documents returns the result set after the transition.
func (s *Snapshot) Documents() *docset.Set { return s.documents }

// OldDocuments returns the result set before the transition.
func (s *Snapshot) OldDocuments() *docset.Set { return s.oldDocuments }

// Changes returns a copy of the ordered document changes.
func (s *Snapshot) Changes() []docset.DocumentChange {
	return append([]docset.DocumentChange(nil), s.changes...)
}

// MutatedKeys returns the keys of result documents with local writes.
func (s *Snapshot) MutatedKeys() model.KeySet { return s.mutatedKeys }

// FromCache reports whether the result may be stale.
func (s *Snapshot) FromCache() bool { return s.fromCache }

// SyncStateChanged reports whether FromCache or HasPendingWrites flipped.
func (s *Snapshot) SyncStateChanged() bool { return s.syncStateChanged }

// ExcludesMetadataChanges reports whether metadata-only changes were filtered out.
func (s *Snapshot) ExcludesMetadataChanges() bool { return s.excludesMetadataChanges }

// HasPendingWrites reports whether any document in the result has local writes.
func (s *Snapshot) HasPendingWrites() bool { return !s.mutatedKeys.IsEmpty() }

// Equal compares every field structurally.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return sameQuery(s.query, other.query) &&
		s.documents.Equal(other.documents) &&
		s.oldDocuments.Equal(other.oldDocuments) &&
		docset.ChangesEqual(s.changes, other.changes) &&
		s.mutatedKeys.Equal(other.mutatedKeys) &&
		s.fromCache == other.fromCache &&
		s.syncStateChanged == other.syncStateChanged &&
		s.excludesMetadataChanges == other.excludesMetadataChanges
}

func sameQuery(a, b *query.Query) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.CanonicalID() == b.CanonicalID()
}

func (s *Snapshot) String() string {
	parts := make([]string, 0, len(s.changes))
	for _, c := range s.changes {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("Snapshot(query=%s, docs=%d, changes=[%s], mutated=%d, fromCache=%t, syncStateChanged=%t, excludesMetadata=%t)",
		s.query, s.documents.Len(), strings.Join(parts, ", "), s.mutatedKeys.Len(),
		s.fromCache, s.syncStateChanged, s.excludesMetadataChanges)
}
