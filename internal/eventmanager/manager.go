// Package eventmanager fans view snapshots out to every listener attached
// to the same query.
package eventmanager

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/syntrixbase/syntrix-client/internal/listener"
	"github.com/syntrixbase/syntrix-client/internal/metrics"
	"github.com/syntrixbase/syntrix-client/internal/query"
	"github.com/syntrixbase/syntrix-client/internal/view"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

// queryListeners groups the listeners of one query with the latest snapshot
// its view produced.
type queryListeners struct {
	query     *query.Query
	listeners []*listener.QueryListener
	snapshot  *view.Snapshot
}

type inSyncListener struct {
	id string
	fn func()
}

// Manager routes snapshots, errors and connectivity changes to query
// listeners. Queries are grouped by canonical id.
//
// Manager is not safe for concurrent use; the owner serializes calls.
// Listener handlers run inline and must not call back into the Manager.
type Manager struct {
	// queries: canonical id -> listeners of that query
	queries     map[string]*queryListeners
	onlineState model.OnlineState
	inSync      []inSyncListener

	logger  *slog.Logger
	metrics metrics.Metrics
}

// Option configures the Manager.
type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(mt metrics.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// New creates a Manager in the Unknown online state.
func New(opts ...Option) *Manager {
	m := &Manager{
		queries:     make(map[string]*queryListeners),
		onlineState: model.OnlineStateUnknown,
		logger:      slog.Default(),
		metrics:     &metrics.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnlineState returns the last state passed to HandleOnlineStateChange.
func (m *Manager) OnlineState() model.OnlineState { return m.onlineState }

// AddQueryListener attaches l and reports whether it is the first listener
// of its query. l is brought up to date with the current online state and,
// when the query already has a snapshot, with that snapshot.
func (m *Manager) AddQueryListener(l *listener.QueryListener) bool {
	id := l.Query().CanonicalID()
	ql, ok := m.queries[id]
	if !ok {
		ql = &queryListeners{query: l.Query()}
		m.queries[id] = ql
	}
	ql.listeners = append(ql.listeners, l)
	m.metrics.AddActiveListeners(1)

	raised := l.ApplyOnlineStateChange(m.onlineState)
	if ql.snapshot != nil && l.OnViewSnapshot(ql.snapshot) {
		raised = true
	}
	if raised {
		m.raiseSnapshotsInSync()
	}

	m.logger.Debug("Query listener added", "query", id, "listeners", len(ql.listeners))
	return !ok
}

// RemoveQueryListener detaches l and reports whether it was the last
// listener of its query. Unknown listeners are ignored.
func (m *Manager) RemoveQueryListener(l *listener.QueryListener) bool {
	id := l.Query().CanonicalID()
	ql, ok := m.queries[id]
	if !ok {
		return false
	}
	for i, existing := range ql.listeners {
		if existing != l {
			continue
		}
		ql.listeners = append(ql.listeners[:i], ql.listeners[i+1:]...)
		m.metrics.AddActiveListeners(-1)
		if len(ql.listeners) == 0 {
			delete(m.queries, id)
			m.logger.Debug("Last query listener removed", "query", id)
			return true
		}
		return false
	}
	return false
}

// HasListeners reports whether any listener is attached to q.
func (m *Manager) HasListeners(q *query.Query) bool {
	_, ok := m.queries[q.CanonicalID()]
	return ok
}

// OnViewSnapshots delivers each snapshot to the listeners of its query and
// remembers it for listeners added later. Snapshots for queries without
// listeners are dropped.
func (m *Manager) OnViewSnapshots(snapshots []*view.Snapshot) {
	raised := false
	for _, snap := range snapshots {
		ql, ok := m.queries[snap.Query().CanonicalID()]
		if !ok {
			continue
		}
		for _, l := range ql.listeners {
			if l.OnViewSnapshot(snap) {
				raised = true
			}
		}
		ql.snapshot = snap
	}
	if raised {
		m.raiseSnapshotsInSync()
	}
}

// OnError delivers err to every listener of q and forgets the query. The
// listeners must be registered again to resume.
func (m *Manager) OnError(q *query.Query, err error) {
	id := q.CanonicalID()
	ql, ok := m.queries[id]
	if !ok {
		return
	}
	for _, l := range ql.listeners {
		l.OnError(err)
	}
	m.metrics.AddActiveListeners(-len(ql.listeners))
	delete(m.queries, id)
}

// HandleOnlineStateChange forwards a connectivity change to every listener.
// Repeating the current state does nothing.
func (m *Manager) HandleOnlineStateChange(state model.OnlineState) {
	if state == m.onlineState {
		return
	}
	m.onlineState = state
	m.logger.Info("Online state changed", "state", state.String())

	raised := false
	for _, ql := range m.queries {
		for _, l := range ql.listeners {
			if l.ApplyOnlineStateChange(state) {
				raised = true
			}
		}
	}
	if raised {
		m.raiseSnapshotsInSync()
	}
}

// AddSnapshotsInSyncListener registers fn to run after every batch that
// raised at least one event, and once immediately. It returns an id for
// RemoveSnapshotsInSyncListener.
func (m *Manager) AddSnapshotsInSyncListener(fn func()) string {
	id := uuid.NewString()
	m.inSync = append(m.inSync, inSyncListener{id: id, fn: fn})
	fn()
	return id
}

// RemoveSnapshotsInSyncListener unregisters the listener with the given id.
func (m *Manager) RemoveSnapshotsInSyncListener(id string) bool {
	for i, l := range m.inSync {
		if l.id == id {
			m.inSync = append(m.inSync[:i], m.inSync[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) raiseSnapshotsInSync() {
	for _, l := range m.inSync {
		l.fn()
	}
}
