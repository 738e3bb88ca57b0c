package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultDedupEntries = 1024

// DedupHandler passes the first occurrence of a record through and swallows
// identical records (level, message, attributes, timestamp ignored) for the
// rest of the window. When the window closes, the next occurrence or Flush
// emits a summary carrying the number of suppressed repeats.
type DedupHandler struct {
	next   slog.Handler
	prefix string // attrs and groups added via WithAttrs/WithGroup
	state  *dedupState
}

type dedupState struct {
	mu         sync.Mutex
	window     time.Duration
	maxEntries int
	now        func() time.Time
	seen       map[uint64]*dedupEntry
}

type dedupEntry struct {
	first      time.Time
	suppressed int
	record     slog.Record
	handler    slog.Handler
}

// NewDedupHandler wraps next with a dedup window. A window <= 0 disables
// suppression.
func NewDedupHandler(next slog.Handler, window time.Duration) *DedupHandler {
	return &DedupHandler{
		next: next,
		state: &dedupState{
			window:     window,
			maxEntries: defaultDedupEntries,
			now:        time.Now,
			seen:       make(map[uint64]*dedupEntry),
		},
	}
}

func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *DedupHandler) Handle(ctx context.Context, r slog.Record) error {
	s := h.state
	if s.window <= 0 {
		return h.next.Handle(ctx, r)
	}
	key := h.hash(r)
	now := s.now()

	s.mu.Lock()
	entry, ok := s.seen[key]
	if ok && now.Sub(entry.first) < s.window {
		entry.suppressed++
		s.mu.Unlock()
		return nil
	}
	var pending []*dedupEntry
	if ok && entry.suppressed > 0 {
		pending = append(pending, entry)
	}
	if len(s.seen) >= s.maxEntries {
		pending = append(pending, s.evictLocked(now)...)
	}
	s.seen[key] = &dedupEntry{first: now, record: r.Clone(), handler: h.next}
	s.mu.Unlock()

	emitSummaries(ctx, pending)
	return h.next.Handle(ctx, r)
}

// evictLocked drops expired entries, returning those that still owe a
// summary. If nothing expired, the table is reset.
func (s *dedupState) evictLocked(now time.Time) []*dedupEntry {
	var pending []*dedupEntry
	for key, e := range s.seen {
		if now.Sub(e.first) >= s.window {
			if e.suppressed > 0 {
				pending = append(pending, e)
			}
			delete(s.seen, key)
		}
	}
	if len(s.seen) >= s.maxEntries {
		for _, e := range s.seen {
			if e.suppressed > 0 {
				pending = append(pending, e)
			}
		}
		s.seen = make(map[uint64]*dedupEntry)
	}
	return pending
}

// Flush emits summaries for every record that was suppressed and clears
// the window.
func (h *DedupHandler) Flush() {
	s := h.state
	s.mu.Lock()
	var pending []*dedupEntry
	for _, e := range s.seen {
		if e.suppressed > 0 {
			pending = append(pending, e)
		}
	}
	s.seen = make(map[uint64]*dedupEntry)
	s.mu.Unlock()

	emitSummaries(context.Background(), pending)
}

// Close flushes pending summaries.
func (h *DedupHandler) Close() error {
	h.Flush()
	return nil
}

func emitSummaries(ctx context.Context, entries []*dedupEntry) {
	for _, e := range entries {
		r := e.record.Clone()
		r.Time = time.Now()
		r.AddAttrs(slog.Int("repeated_count", e.suppressed))
		_ = e.handler.Handle(ctx, r)
	}
}

func (h *DedupHandler) hash(r slog.Record) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(h.prefix)
	_, _ = d.WriteString(r.Level.String())
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(a.String())
		return true
	})
	return d.Sum64()
}

func (h *DedupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		b.WriteString(a.String())
		b.WriteByte(';')
	}
	return &DedupHandler{next: h.next.WithAttrs(attrs), prefix: b.String(), state: h.state}
}

func (h *DedupHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &DedupHandler{next: h.next.WithGroup(name), prefix: h.prefix + name + ".", state: h.state}
}
