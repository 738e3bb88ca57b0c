// Package listener decides, per registered listener, which view snapshots
// reach the application and in what form.
package listener

import (
	"log/slog"

	"github.com/syntrixbase/syntrix-client/internal/docset"
	"github.com/syntrixbase/syntrix-client/internal/metrics"
	"github.com/syntrixbase/syntrix-client/internal/query"
	"github.com/syntrixbase/syntrix-client/internal/view"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

// Handler receives either a snapshot or a terminal error, never both.
type Handler func(snapshot *view.Snapshot, err error)

// QueryListener gates and filters the snapshots of one query for one
// application handler.
//
// A QueryListener is not safe for concurrent use. All calls for one listener
// must come from a single goroutine or be serialized by the caller.
type QueryListener struct {
	query   *query.Query
	options ListenOptions
	handler Handler

	snapshot           *view.Snapshot
	raisedInitialEvent bool
	onlineState        model.OnlineState

	logger  *slog.Logger
	metrics metrics.Metrics
}

// Option configures a QueryListener.
type Option func(*QueryListener)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ql *QueryListener) {
		if l != nil {
			ql.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(ql *QueryListener) {
		if m != nil {
			ql.metrics = m
		}
	}
}

// New creates a listener that has not raised any event yet.
func New(q *query.Query, options ListenOptions, handler Handler, opts ...Option) *QueryListener {
	ql := &QueryListener{
		query:       q,
		options:     options,
		handler:     handler,
		onlineState: model.OnlineStateUnknown,
		logger:      slog.Default(),
		metrics:     &metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(ql)
	}
	return ql
}

// Query returns the listened query.
func (ql *QueryListener) Query() *query.Query { return ql.query }

// Options returns the delivery policy.
func (ql *QueryListener) Options() ListenOptions { return ql.options }

// HasRaisedInitialEvent reports whether any snapshot was ever delivered.
func (ql *QueryListener) HasRaisedInitialEvent() bool { return ql.raisedInitialEvent }

// OnlineState returns the last recorded connectivity state.
func (ql *QueryListener) OnlineState() model.OnlineState { return ql.onlineState }

// OnViewSnapshot considers snap for delivery and reports whether the handler
// was called.
func (ql *QueryListener) OnViewSnapshot(snap *view.Snapshot) bool {
	if !ql.raisedInitialEvent {
		if ql.shouldRaiseInitialEvent(snap, ql.onlineState) {
			ql.raiseInitialEvent(snap)
			return true
		}
		ql.snapshot = snap
		ql.metrics.IncSnapshotSuppressed(metrics.ReasonWaitForSync)
		ql.logger.Debug("Holding back cached snapshot until synced",
			"query", ql.query.CanonicalID(), "online_state", ql.onlineState.String())
		return false
	}

	filtered, raise := FilterSnapshot(snap, ql.options)
	ql.snapshot = filtered
	if !raise {
		ql.metrics.IncSnapshotSuppressed(metrics.ReasonNoChanges)
		return false
	}
	ql.handler(filtered, nil)
	ql.metrics.IncEventRaised(metrics.KindUpdate)
	return true
}

// OnError delivers err to the handler. The raised state is unchanged.
func (ql *QueryListener) OnError(err error) {
	ql.logger.Warn("Query listen failed", "query", ql.query.CanonicalID(), "error", err)
	ql.handler(nil, err)
	ql.metrics.IncEventRaised(metrics.KindError)
}

// ApplyOnlineStateChange records state. A listener still holding back a
// cached initial result raises it once the client is known not to be online.
// Once the initial event is raised, connectivity changes never raise here.
func (ql *QueryListener) ApplyOnlineStateChange(state model.OnlineState) bool {
	ql.onlineState = state
	if ql.raisedInitialEvent || !ql.options.WaitForSyncWhenOnline || ql.snapshot == nil {
		return false
	}
	if !ql.snapshot.FromCache() || state == model.OnlineStateOnline {
		return false
	}
	ql.raiseInitialEvent(ql.snapshot)
	return true
}

func (ql *QueryListener) shouldRaiseInitialEvent(snap *view.Snapshot, state model.OnlineState) bool {
	if ql.options.WaitForSyncWhenOnline && state == model.OnlineStateOnline && snap.FromCache() {
		return false
	}
	return true
}

// raiseInitialEvent delivers snap as if nothing had been observed before:
// empty baseline, every document Added.
func (ql *QueryListener) raiseInitialEvent(snap *view.Snapshot) {
	initial := view.FromInitialDocuments(ql.query, snap.Documents(), snap.MutatedKeys(), snap.FromCache(), false)
	initial, _ = FilterSnapshot(initial, ql.options)
	ql.raisedInitialEvent = true
	ql.snapshot = initial
	ql.handler(initial, nil)
	ql.metrics.IncEventRaised(metrics.KindInitial)
}

// FilterSnapshot applies the listener's metadata policy. It returns the
// snapshot to deliver and whether it is worth raising. Filtering an
// already-filtered snapshot with the same options returns an equal snapshot.
func FilterSnapshot(snap *view.Snapshot, options ListenOptions) (*view.Snapshot, bool) {
	changes := snap.Changes()
	if !options.IncludeDocumentMetadataChanges {
		kept := changes[:0]
		for _, c := range changes {
			switch c.Type {
			case docset.ChangeMetadata:
				continue
			case docset.ChangeAdded, docset.ChangeRemoved, docset.ChangeModified:
				kept = append(kept, c)
			}
		}
		changes = kept
	}

	raise := len(changes) > 0 || (snap.SyncStateChanged() && options.IncludeQueryMetadataChanges)
	if options.excludesMetadataChanges() {
		return snap.WithChanges(changes, true), raise
	}
	return snap, raise
}
