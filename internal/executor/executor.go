// Package executor provides ordered execution contexts for listener delivery.
package executor

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
)

// Executor runs tasks. Implementations in this package run tasks submitted
// to the same Executor in submission order.
type Executor interface {
	Execute(task func())
}

// Immediate runs each task on the caller's goroutine.
type Immediate struct{}

func (Immediate) Execute(task func()) { task() }

// Serial is an unbounded FIFO queue drained by at most one goroutine at a
// time. Execute never blocks on the task itself.
type Serial struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	closed  bool
	idle    chan struct{}
	name    string
	logger  *slog.Logger
}

// SerialOption configures a Serial executor.
type SerialOption func(*Serial)

// WithLogger sets the logger used to report task panics and late submissions.
func WithLogger(l *slog.Logger) SerialOption {
	return func(s *Serial) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithName labels the queue in log output.
func WithName(name string) SerialOption {
	return func(s *Serial) { s.name = name }
}

func NewSerial(opts ...SerialOption) *Serial {
	s := &Serial{logger: slog.Default(), name: "serial"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute enqueues task. Tasks submitted after Close are dropped.
func (s *Serial) Execute(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn("Executor closed, dropping task", "executor", s.name)
		return
	}
	s.queue = append(s.queue, task)
	if !s.running {
		s.running = true
		s.idle = make(chan struct{})
		go s.run()
	}
}

func (s *Serial) run() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.runTask(task)
	}
}

func (s *Serial) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Task panicked", "executor", s.name, "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// Len returns the number of tasks waiting to run.
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Drain blocks until the queue is empty and no task is running.
func (s *Serial) Drain(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks. Queued tasks still run.
func (s *Serial) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Pool shares a fixed number of serial queues between many keys. A key is
// always pinned to the same queue, so tasks for one key stay ordered.
type Pool struct {
	queues []*Serial
}

// NewPool creates a pool of size queues. size <= 0 means 16.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 16
	}
	p := &Pool{queues: make([]*Serial, size)}
	for i := range p.queues {
		p.queues[i] = NewSerial(WithLogger(logger), WithName(fmt.Sprintf("pool-%d", i)))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.queues) }

// For returns the queue key is pinned to.
func (p *Pool) For(key string) Executor {
	h := fnv.New32a()
	h.Write([]byte(key))
	return p.queues[int(h.Sum32()%uint32(len(p.queues)))]
}

// Drain waits for every queue to go idle.
func (p *Pool) Drain(ctx context.Context) error {
	for _, q := range p.queues {
		if err := q.Drain(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops every queue from accepting tasks.
func (p *Pool) Close() {
	for _, q := range p.queues {
		q.Close()
	}
}
