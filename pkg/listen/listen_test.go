package listen

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Documents(ctx context.Context, q *Query) ([]*model.Document, error) {
	args := m.Called(ctx, q)
	docs, _ := args.Get(0).([]*model.Document)
	return docs, args.Error(1)
}

func setup(t *testing.T, configYAML string) string {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yml"), []byte(configYAML), 0o644))
	return configDir
}

func TestOpen_ListenThroughClient(t *testing.T) {
	configDir := setup(t, `
logging:
  console:
    enabled: false
  file:
    enabled: true
    format: json
  dedup:
    enabled: false
listener:
  workers: 2
`)
	q, err := NewQuery("tasks", []model.Filter{{Field: "done", Op: model.OpEq, Value: false}}, nil)
	require.NoError(t, err)
	t1 := model.NewDocument(model.NewDocumentKey("tasks", "t1"), 1, model.Fields{"done": false})
	cache := &mockCache{}
	cache.On("Documents", mock.Anything, q).Return([]*model.Document{t1}, nil)

	c, err := Open(configDir, cache)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Config().Listener.Workers)

	var mu sync.Mutex
	var snaps []*Snapshot
	reg, err := c.Listen(context.Background(), q, nil, func(s *Snapshot, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			snaps = append(snaps, s)
		}
	})
	require.NoError(t, err)

	t2 := model.NewDocument(model.NewDocumentKey("tasks", "t2"), 1, model.Fields{"done": false})
	c.ApplyChanges(Changes{t2.Key(): t2}, map[string]*TargetChange{q.CanonicalID(): {Current: true}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))

	mu.Lock()
	require.Len(t, snaps, 2)
	assert.Equal(t, 2, snaps[1].Documents().Len())
	mu.Unlock()

	require.NoError(t, reg.Remove())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	data, err := os.ReadFile(filepath.Join(filepath.Dir(configDir), "logs", "listen.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Listen client started")
	assert.Contains(t, string(data), "Listen client stopped")
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrNilCache)

	configDir := setup(t, `
listener:
  workers: -1
`)
	_, err = Open(configDir, &mockCache{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listener.workers")
}
