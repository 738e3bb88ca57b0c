// Package view maintains the materialized, ordered result of one query and
// turns change batches into snapshots.
package view

import (
	"sort"

	"github.com/syntrixbase/syntrix-client/internal/docset"
	"github.com/syntrixbase/syntrix-client/internal/metrics"
	"github.com/syntrixbase/syntrix-client/internal/query"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

// Changes is one update batch. A nil or non-existing document removes the key.
type Changes map[model.DocumentKey]*model.Document

// TargetChange is the backend's acknowledgment of which keys belong to the
// query. Current marks the query as fully synced as of this batch.
type TargetChange struct {
	Current      bool
	AddedKeys    []model.DocumentKey
	ModifiedKeys []model.DocumentKey
	RemovedKeys  []model.DocumentKey
}

// View is owned by a single caller; it is not safe for concurrent use.
type View struct {
	query      *query.Query
	documents  *docset.Set
	syncedKeys model.KeySet
	current    bool

	computed         bool
	fromCache        bool
	hasPendingWrites bool

	metrics metrics.Metrics
}

// Option configures a View.
type Option func(*View)

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(v *View) {
		if m != nil {
			v.metrics = m
		}
	}
}

// New creates an empty view. remoteKeys are the keys the backend is already
// known to have acknowledged for this query (from the local cache).
func New(q *query.Query, remoteKeys model.KeySet, opts ...Option) *View {
	v := &View{
		query:      q,
		documents:  docset.New(q.Compare),
		syncedKeys: remoteKeys,
		metrics:    &metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Query returns the query the view evaluates.
func (v *View) Query() *query.Query { return v.query }

// Documents returns the current result set.
func (v *View) Documents() *docset.Set { return v.documents }

// SyncedKeys returns the keys the backend has acknowledged for this query.
func (v *View) SyncedKeys() model.KeySet { return v.syncedKeys }

// LimboKeys returns documents in the result that the backend has not
// acknowledged and that carry no local writes explaining their presence.
func (v *View) LimboKeys() model.KeySet {
	return v.limboKeys(v.documents)
}

func (v *View) limboKeys(docs *docset.Set) model.KeySet {
	var limbo []model.DocumentKey
	docs.Each(func(doc *model.Document) bool {
		if !v.syncedKeys.Has(doc.Key()) && !doc.HasLocalMutations() {
			limbo = append(limbo, doc.Key())
		}
		return true
	})
	return model.NewKeySet(limbo...)
}

// ApplyChanges folds a batch (and optional target acknowledgment) into the
// view. It returns nil when neither the result nor its sync state changed.
// Removing unknown keys is a no-op.
func (v *View) ApplyChanges(batch Changes, target *TargetChange) *Snapshot {
	old := v.documents
	next := old
	for key, doc := range batch {
		if doc != nil && v.query.Matches(doc) {
			next = next.Insert(doc)
		} else {
			next = next.Remove(key)
		}
	}
	v.applyTargetChange(target)

	changes := next.Diff(old)
	for i, c := range changes {
		if c.Type == docset.ChangeModified && old.Get(c.Doc.Key()).ContentEqual(c.Doc) {
			changes[i].Type = docset.ChangeMetadata
		}
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changeRank(changes[i].Type) < changeRank(changes[j].Type)
	})

	mutated := mutatedKeys(next)
	fromCache := !v.current || !v.limboKeys(next).IsEmpty()
	hasPendingWrites := !mutated.IsEmpty()
	syncStateChanged := !v.computed || fromCache != v.fromCache || hasPendingWrites != v.hasPendingWrites

	v.documents = next
	if len(changes) == 0 && !syncStateChanged {
		return nil
	}

	v.computed = true
	v.fromCache = fromCache
	v.hasPendingWrites = hasPendingWrites
	for _, c := range changes {
		v.metrics.IncViewChange(c.Type.String())
	}

	return NewSnapshot(v.query, next, old, changes, mutated, fromCache, syncStateChanged, false)
}

// ApplyOnlineStateChange marks the view as no longer current when the client
// goes offline, so listeners learn their data now comes from cache.
func (v *View) ApplyOnlineStateChange(state model.OnlineState) *Snapshot {
	if v.current && state == model.OnlineStateOffline {
		v.current = false
		return v.ApplyChanges(nil, nil)
	}
	return nil
}

func (v *View) applyTargetChange(target *TargetChange) {
	if target == nil {
		return
	}
	v.syncedKeys = v.syncedKeys.With(target.AddedKeys...).With(target.ModifiedKeys...).Without(target.RemovedKeys...)
	v.current = target.Current
}

func mutatedKeys(docs *docset.Set) model.KeySet {
	var keys []model.DocumentKey
	docs.Each(func(doc *model.Document) bool {
		if doc.HasLocalMutations() {
			keys = append(keys, doc.Key())
		}
		return true
	})
	return model.NewKeySet(keys...)
}

// changeRank orders removals first, then additions, then in-place changes.
func changeRank(t docset.ChangeType) int {
	switch t {
	case docset.ChangeRemoved:
		return 0
	case docset.ChangeAdded:
		return 1
	case docset.ChangeModified, docset.ChangeMetadata:
		return 2
	default:
		return 3
	}
}
