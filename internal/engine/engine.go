// Package engine wires views, the event manager and the delivery pool into
// a single entry point for listening to queries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/syntrixbase/syntrix-client/internal/eventmanager"
	"github.com/syntrixbase/syntrix-client/internal/executor"
	"github.com/syntrixbase/syntrix-client/internal/listener"
	"github.com/syntrixbase/syntrix-client/internal/metrics"
	"github.com/syntrixbase/syntrix-client/internal/query"
	"github.com/syntrixbase/syntrix-client/internal/view"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

var (
	// ErrClosed is returned by Listen after Close.
	ErrClosed = errors.New("engine closed")
	// ErrNilHandler is returned by Listen when no handler is given.
	ErrNilHandler = errors.New("nil handler")
)

// Cache supplies locally known documents for a query. It is consulted once
// when the first listener of a query attaches.
type Cache interface {
	Documents(ctx context.Context, q *query.Query) ([]*model.Document, error)
}

// RemoteKeysCache is optionally implemented by a Cache that also knows which
// keys the backend last acknowledged for a query.
type RemoteKeysCache interface {
	RemoteKeys(ctx context.Context, q *query.Query) (model.KeySet, error)
}

// Engine owns one view per listened query and dispatches their snapshots.
// All methods are safe for concurrent use; handlers run on the delivery
// pool and may call back into the Engine.
type Engine struct {
	mu            sync.Mutex
	cfg           Config
	cache         Cache
	views         map[string]*view.View
	registrations map[string]*Registration
	events        *eventmanager.Manager
	pool          *executor.Pool
	closed        bool

	logger  *slog.Logger
	metrics metrics.Metrics
}

// Option configures the Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// New creates an Engine. cfg is expected to be validated. Metrics go to the
// default Prometheus registry unless WithMetrics says otherwise.
func New(cfg Config, cache Cache, opts ...Option) *Engine {
	e := &Engine{
		cfg:           cfg,
		cache:         cache,
		views:         make(map[string]*view.View),
		registrations: make(map[string]*Registration),
		logger:        slog.Default(),
		metrics:       metrics.Prometheus{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "listen-engine")
	e.pool = executor.NewPool(cfg.Workers, e.logger)
	e.events = eventmanager.New(eventmanager.WithLogger(e.logger), eventmanager.WithMetrics(e.metrics))
	return e
}

// Registration is the handle returned by Listen.
type Registration struct {
	id       string
	engine   *Engine
	listener *listener.QueryListener
	async    *listener.AsyncListener
}

// ID returns the listener id assigned at registration.
func (r *Registration) ID() string { return r.id }

// Query returns the listened query.
func (r *Registration) Query() *query.Query { return r.listener.Query() }

// Remove stops delivery to the handler, including events already queued,
// and detaches the listener. It returns model.ErrListenerRemoved when the
// registration was already detached by an earlier Remove or by HandleError;
// delivery is muted either way.
func (r *Registration) Remove() error {
	r.async.Mute()
	if !r.engine.remove(r) {
		return model.ErrListenerRemoved
	}
	return nil
}

// Listen registers handler for q. A nil options pointer selects the
// configured default options. The first listener of a query seeds its view
// from the cache, so the first event may arrive before Listen returns to a
// waiting reader.
func (e *Engine) Listen(ctx context.Context, q *query.Query, options *listener.ListenOptions, handler listener.Handler) (*Registration, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := ctx.Err(); err != nil {
		return nil, model.WrapError(err)
	}
	opts := e.cfg.DefaultOptions
	if options != nil {
		opts = *options
	}

	id := uuid.NewString()
	async := listener.NewAsyncListener(e.pool.For(id), handler, e.metrics)
	ql := listener.New(q, opts, async.OnEvent,
		listener.WithLogger(e.logger.With("listener", id)),
		listener.WithMetrics(e.metrics))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	cid := q.CanonicalID()
	var seed *view.Snapshot
	if _, ok := e.views[cid]; !ok {
		v, snap, err := e.newView(ctx, q)
		if err != nil {
			return nil, err
		}
		e.views[cid] = v
		seed = snap
	}

	e.events.AddQueryListener(ql)
	if seed != nil {
		e.events.OnViewSnapshots([]*view.Snapshot{seed})
	}

	reg := &Registration{id: id, engine: e, listener: ql, async: async}
	e.registrations[id] = reg
	e.logger.Debug("Listener registered", "listener", id, "query", cid)
	return reg, nil
}

func (e *Engine) newView(ctx context.Context, q *query.Query) (*view.View, *view.Snapshot, error) {
	remoteKeys := model.NewKeySet()
	if rk, ok := e.cache.(RemoteKeysCache); ok {
		keys, err := rk.RemoteKeys(ctx, q)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load remote keys for %s: %w", q.CanonicalID(), err)
		}
		remoteKeys = keys
	}

	docs, err := e.cache.Documents(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load cached documents for %s: %w", q.CanonicalID(), err)
	}

	v := view.New(q, remoteKeys, view.WithMetrics(e.metrics))
	batch := make(view.Changes, len(docs))
	for _, doc := range docs {
		batch[doc.Key()] = doc
	}
	return v, v.ApplyChanges(batch, nil), nil
}

func (e *Engine) remove(r *Registration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.registrations[r.id]; !ok {
		return false
	}
	delete(e.registrations, r.id)
	if e.events.RemoveQueryListener(r.listener) {
		delete(e.views, r.listener.Query().CanonicalID())
	}
	e.logger.Debug("Listener removed", "listener", r.id)
	return true
}

// ApplyChanges folds a document batch into every active view. targets maps a
// query canonical id to the backend's acknowledgment for that query.
func (e *Engine) ApplyChanges(batch view.Changes, targets map[string]*view.TargetChange) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for cid := range targets {
		if _, ok := e.views[cid]; !ok {
			e.logger.Debug("Ignoring target change for inactive query", "query", cid)
		}
	}

	var snapshots []*view.Snapshot
	for _, cid := range slices.Sorted(maps.Keys(e.views)) {
		if snap := e.views[cid].ApplyChanges(batch, targets[cid]); snap != nil {
			snapshots = append(snapshots, snap)
		}
	}
	e.events.OnViewSnapshots(snapshots)
}

// HandleOnlineStateChange updates every view and listener with the new
// connectivity state.
func (e *Engine) HandleOnlineStateChange(state model.OnlineState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var snapshots []*view.Snapshot
	for _, cid := range slices.Sorted(maps.Keys(e.views)) {
		if snap := e.views[cid].ApplyOnlineStateChange(state); snap != nil {
			snapshots = append(snapshots, snap)
		}
	}
	e.events.OnViewSnapshots(snapshots)
	e.events.HandleOnlineStateChange(state)
}

// HandleError delivers a listen failure for q to its handlers and drops the
// query. Affected registrations are detached.
func (e *Engine) HandleError(q *query.Query, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cid := q.CanonicalID()
	e.logger.Warn("Listen failed upstream", "query", cid, "error", err)
	e.events.OnError(q, err)
	delete(e.views, cid)
	for id, reg := range e.registrations {
		if reg.listener.Query().CanonicalID() == cid {
			delete(e.registrations, id)
		}
	}
}

// AddSnapshotsInSyncListener registers fn to run on the delivery pool after
// every batch that raised events. It returns an id for removal.
func (e *Engine) AddSnapshotsInSyncListener(fn func()) string {
	exec := e.pool.For(uuid.NewString())
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events.AddSnapshotsInSyncListener(func() { exec.Execute(fn) })
}

func (e *Engine) RemoveSnapshotsInSyncListener(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events.RemoveSnapshotsInSyncListener(id)
}

// ActiveQueries returns the number of queries with at least one listener.
func (e *Engine) ActiveQueries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.views)
}

// Drain waits until every queued delivery has run.
func (e *Engine) Drain(ctx context.Context) error {
	return e.pool.Drain(ctx)
}

// Close mutes every registration and stops the delivery pool. Deliveries
// already queued are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, reg := range e.registrations {
		reg.async.Mute()
	}
	e.pool.Close()
	e.logger.Info("Listen engine closed", "listeners", len(e.registrations))
}
