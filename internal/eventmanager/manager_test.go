package eventmanager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/syntrix-client/internal/listener"
	"github.com/syntrixbase/syntrix-client/internal/metrics"
	"github.com/syntrixbase/syntrix-client/internal/query"
	"github.com/syntrixbase/syntrix-client/internal/view"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

type recorder struct {
	snapshots []*view.Snapshot
	errs      []error
}

func (r *recorder) handle(snap *view.Snapshot, err error) {
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.snapshots = append(r.snapshots, snap)
}

type countingMetrics struct {
	*metrics.NoopMetrics
	active int
}

func (c *countingMetrics) AddActiveListeners(delta int) { c.active += delta }

var (
	usersQuery = query.MustNew("users", []model.Filter{{Field: "age", Op: model.OpGt, Value: 18}}, nil)
	roomsQuery = query.MustNew("rooms", nil, nil)
)

func user(id string, age int) *model.Document {
	return model.NewDocument(model.NewDocumentKey("users", id), 1, model.Fields{"age": age})
}

func syncedSnapshot(t *testing.T, q *query.Query, docs ...*model.Document) *view.Snapshot {
	t.Helper()
	v := view.New(q, model.NewKeySet())
	batch := view.Changes{}
	var keys []model.DocumentKey
	for _, d := range docs {
		batch[d.Key()] = d
		keys = append(keys, d.Key())
	}
	snap := v.ApplyChanges(batch, &view.TargetChange{Current: true, AddedKeys: keys})
	require.NotNil(t, snap)
	return snap
}

func cachedSnapshot(t *testing.T, q *query.Query, docs ...*model.Document) *view.Snapshot {
	t.Helper()
	v := view.New(q, model.NewKeySet())
	batch := view.Changes{}
	for _, d := range docs {
		batch[d.Key()] = d
	}
	snap := v.ApplyChanges(batch, nil)
	require.NotNil(t, snap)
	require.True(t, snap.FromCache())
	return snap
}

func TestManager_AddRemove(t *testing.T) {
	mt := &countingMetrics{}
	m := New(WithMetrics(mt))

	r := &recorder{}
	a := listener.New(usersQuery, listener.ListenOptions{}, r.handle)
	b := listener.New(query.MustNew("users", []model.Filter{{Field: "age", Op: model.OpGt, Value: 18}}, nil), listener.ListenOptions{}, r.handle)
	c := listener.New(roomsQuery, listener.ListenOptions{}, r.handle)

	assert.True(t, m.AddQueryListener(a))
	assert.False(t, m.AddQueryListener(b), "equal queries share one entry")
	assert.True(t, m.AddQueryListener(c))
	assert.Equal(t, 3, mt.active)

	assert.False(t, m.RemoveQueryListener(a))
	assert.False(t, m.RemoveQueryListener(a), "already removed")
	assert.True(t, m.RemoveQueryListener(b))
	assert.False(t, m.HasListeners(usersQuery))
	assert.True(t, m.HasListeners(roomsQuery))
	assert.Equal(t, 1, mt.active)
}

func TestManager_OnViewSnapshotsFanOut(t *testing.T) {
	m := New()
	r1, r2, r3 := &recorder{}, &recorder{}, &recorder{}
	m.AddQueryListener(listener.New(usersQuery, listener.ListenOptions{}, r1.handle))
	m.AddQueryListener(listener.New(usersQuery, listener.ListenOptions{}, r2.handle))
	m.AddQueryListener(listener.New(roomsQuery, listener.ListenOptions{}, r3.handle))

	m.OnViewSnapshots([]*view.Snapshot{
		syncedSnapshot(t, usersQuery, user("alice", 30)),
		syncedSnapshot(t, query.MustNew("orphans", nil, nil)),
	})

	assert.Len(t, r1.snapshots, 1)
	assert.Len(t, r2.snapshots, 1)
	assert.Empty(t, r3.snapshots)
}

func TestManager_LateListenerGetsCurrentSnapshot(t *testing.T) {
	m := New()
	first := &recorder{}
	m.AddQueryListener(listener.New(usersQuery, listener.ListenOptions{}, first.handle))
	snap := syncedSnapshot(t, usersQuery, user("alice", 30), user("bob", 40))
	m.OnViewSnapshots([]*view.Snapshot{snap})

	late := &recorder{}
	assert.False(t, m.AddQueryListener(listener.New(usersQuery, listener.ListenOptions{}, late.handle)))
	require.Len(t, late.snapshots, 1)
	assert.Len(t, late.snapshots[0].Changes(), 2)
	assert.True(t, late.snapshots[0].Documents().Equal(snap.Documents()))
}

func TestManager_OnErrorForgetsQuery(t *testing.T) {
	m := New()
	r1, r2 := &recorder{}, &recorder{}
	m.AddQueryListener(listener.New(usersQuery, listener.ListenOptions{}, r1.handle))
	m.AddQueryListener(listener.New(usersQuery, listener.ListenOptions{}, r2.handle))

	boom := errors.New("rejected")
	m.OnError(usersQuery, boom)
	assert.Equal(t, []error{boom}, r1.errs)
	assert.Equal(t, []error{boom}, r2.errs)
	assert.False(t, m.HasListeners(usersQuery))

	m.OnViewSnapshots([]*view.Snapshot{syncedSnapshot(t, usersQuery, user("alice", 30))})
	assert.Empty(t, r1.snapshots)

	m.OnError(roomsQuery, boom)
}

func TestManager_OnlineStateChange(t *testing.T) {
	m := New()
	m.HandleOnlineStateChange(model.OnlineStateOnline)

	r := &recorder{}
	l := listener.New(usersQuery, listener.ListenOptions{WaitForSyncWhenOnline: true}, r.handle)
	m.AddQueryListener(l)
	assert.Equal(t, model.OnlineStateOnline, l.OnlineState())

	m.OnViewSnapshots([]*view.Snapshot{cachedSnapshot(t, usersQuery, user("alice", 30))})
	assert.Empty(t, r.snapshots)

	m.HandleOnlineStateChange(model.OnlineStateOnline)
	assert.Empty(t, r.snapshots)

	m.HandleOnlineStateChange(model.OnlineStateOffline)
	require.Len(t, r.snapshots, 1)
	assert.True(t, r.snapshots[0].FromCache())
	assert.Equal(t, model.OnlineStateOffline, m.OnlineState())
}

func TestManager_SnapshotsInSync(t *testing.T) {
	m := New()
	calls := 0
	id := m.AddSnapshotsInSyncListener(func() { calls++ })
	assert.Equal(t, 1, calls)

	r := &recorder{}
	m.AddQueryListener(listener.New(usersQuery, listener.ListenOptions{}, r.handle))
	assert.Equal(t, 1, calls, "nothing raised on add")

	m.OnViewSnapshots([]*view.Snapshot{syncedSnapshot(t, usersQuery, user("alice", 30))})
	assert.Equal(t, 2, calls)

	m.OnViewSnapshots([]*view.Snapshot{syncedSnapshot(t, roomsQuery)})
	assert.Equal(t, 2, calls, "no listener raised")

	assert.True(t, m.RemoveSnapshotsInSyncListener(id))
	assert.False(t, m.RemoveSnapshotsInSyncListener(id))
	m.OnViewSnapshots([]*view.Snapshot{syncedSnapshot(t, usersQuery, user("bob", 50))})
	assert.Equal(t, 2, calls)
}
