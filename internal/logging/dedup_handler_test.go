package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDedup(window time.Duration) (*DedupHandler, *bytes.Buffer, *fakeClock) {
	var buf bytes.Buffer
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := NewDedupHandler(slog.NewTextHandler(&buf, nil), window)
	h.state.now = clock.now
	return h, &buf, clock
}

func TestDedupHandler_SuppressesWithinWindow(t *testing.T) {
	h, buf, clock := newTestDedup(time.Second)
	logger := slog.New(h)

	logger.Info("held back", "query", "users")
	logger.Info("held back", "query", "users")
	logger.Info("held back", "query", "rooms")
	assert.Equal(t, 2, strings.Count(buf.String(), "held back"))

	clock.advance(2 * time.Second)
	logger.Info("held back", "query", "users")

	out := buf.String()
	assert.Equal(t, 4, strings.Count(out, "held back"), "summary plus the new occurrence")
	assert.Contains(t, out, "repeated_count=1")
}

func TestDedupHandler_LevelDistinguishes(t *testing.T) {
	h, buf, _ := newTestDedup(time.Minute)
	logger := slog.New(h)
	logger.Info("same")
	logger.Warn("same")
	assert.Equal(t, 2, strings.Count(buf.String(), "same"))
}

func TestDedupHandler_WithAttrsSharesState(t *testing.T) {
	h, buf, _ := newTestDedup(time.Minute)
	a := slog.New(h).With("listener", "a")
	b := slog.New(h).With("listener", "b")

	a.Info("raised")
	a.Info("raised")
	b.Info("raised")
	assert.Equal(t, 2, strings.Count(buf.String(), "raised"))

	h.Flush()
	out := buf.String()
	assert.Contains(t, out, "listener=a")
	assert.Contains(t, out, "repeated_count=1")
	assert.Equal(t, 3, strings.Count(out, "raised"))
}

func TestDedupHandler_WithGroup(t *testing.T) {
	h, _, _ := newTestDedup(time.Minute)
	assert.Same(t, h, h.WithGroup(""))
	g := h.WithGroup("engine").(*DedupHandler)
	assert.Equal(t, "engine.", g.prefix)
	assert.Same(t, h.state, g.state)
}

func TestDedupHandler_ZeroWindowPassesThrough(t *testing.T) {
	h, buf, _ := newTestDedup(0)
	logger := slog.New(h)
	logger.Info("again")
	logger.Info("again")
	assert.Equal(t, 2, strings.Count(buf.String(), "again"))
	assert.NoError(t, h.Close())
}

func TestDedupHandler_Eviction(t *testing.T) {
	h, buf, clock := newTestDedup(time.Second)
	h.state.maxEntries = 2
	ctx := context.Background()

	log := func(msg string) {
		r := slog.NewRecord(clock.now(), slog.LevelInfo, msg, 0)
		assert.NoError(t, h.Handle(ctx, r))
	}

	log("one")
	log("one")
	log("two")
	clock.advance(2 * time.Second)
	log("three")

	out := buf.String()
	assert.Contains(t, out, "repeated_count=1", "expired entry summarized on eviction")
	assert.Len(t, h.state.seen, 1)
}

func TestDedupHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h := NewDedupHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}), time.Second)
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
