package listener

import (
	"sync/atomic"

	"github.com/syntrixbase/syntrix-client/internal/executor"
	"github.com/syntrixbase/syntrix-client/internal/metrics"
	"github.com/syntrixbase/syntrix-client/internal/view"
)

// AsyncListener moves handler calls onto an ordered executor and lets the
// owner cut delivery off for good with Mute.
type AsyncListener struct {
	exec    executor.Executor
	handler Handler
	muted   atomic.Bool
	metrics metrics.Metrics
}

// NewAsyncListener wraps handler. exec must run tasks in submission order.
func NewAsyncListener(exec executor.Executor, handler Handler, m metrics.Metrics) *AsyncListener {
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	return &AsyncListener{exec: exec, handler: handler, metrics: m}
}

// OnEvent schedules delivery and returns without waiting for it. The mute
// flag is checked when the task runs, not when it is queued. OnEvent has the
// Handler signature so an AsyncListener can back a QueryListener.
func (a *AsyncListener) OnEvent(snapshot *view.Snapshot, err error) {
	a.exec.Execute(func() {
		if a.muted.Load() {
			a.metrics.IncDeliveryDropped()
			return
		}
		a.handler(snapshot, err)
	})
}

// Mute stops every delivery that has not started yet, including queued ones.
// A handler call already in progress finishes. Mute may be called from the
// handler itself.
func (a *AsyncListener) Mute() {
	a.muted.Store(true)
}

func (a *AsyncListener) IsMuted() bool {
	return a.muted.Load()
}
