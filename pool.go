// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"runtime"
	"sync"
	"time"
)

// defaultIdleTimeout is how long a temporary worker stays idle before
// retiring.
const defaultIdleTimeout = time.Second

// Pool runs submitted tasks on a bounded set of workers: a fixed core
// group that lives for the pool's lifetime plus temporary workers
// created on demand up to the maximum, each retiring after an idle
// timeout. Tasks that arrive while every worker is busy at the
// maximum wait in an unbounded FIFO backlog.
type Pool struct {
	core int
	max  int

	idle    Cell[time.Duration]
	handler Cell[func(error)]

	mu      sync.Mutex
	roster  []*worker
	live    int
	backlog []func()
	head    int

	closed  Flag
	closing chan struct{}
	drained *Completion
}

// NewPool returns a started pool with core resident workers and up to
// max workers in total. Panics unless 0 <= core <= max and max >= 1.
func NewPool(core, max int) *Pool {
	if core < 0 || max < 1 || core > max {
		panic("task: invalid pool size")
	}
	p := &Pool{
		core:    core,
		max:     max,
		closing: make(chan struct{}),
	}
	p.idle.Set(defaultIdleTimeout)
	p.drained = newCompletion(p)
	p.mu.Lock()
	for range core {
		w := newWorker(p, false)
		p.roster = append(p.roster, w)
		p.live++
		go w.run(nil)
	}
	p.mu.Unlock()
	return p
}

// defaultPool is the shared pool behind nil-pool arguments.
var defaultPool = sync.OnceValue(func() *Pool {
	n := runtime.GOMAXPROCS(0)
	return NewPool(n, 4*n)
})

// DefaultPool returns the process-wide shared pool, created on first
// use with GOMAXPROCS core workers and four times that in total.
func DefaultPool() *Pool {
	return defaultPool()
}

// poolOrDefault resolves the nil-pool convention.
func poolOrDefault(p *Pool) *Pool {
	if p != nil {
		return p
	}
	return DefaultPool()
}

// SetErrorHandler installs fn as the destination for task panics and
// rejected submissions. A nil fn restores the default, which writes
// to standard error.
func (p *Pool) SetErrorHandler(fn func(error)) {
	p.handler.Set(fn)
}

// SetIdleTimeout sets how long temporary workers linger before
// retiring. Applies to idle periods that begin after the call.
func (p *Pool) SetIdleTimeout(d time.Duration) {
	p.idle.Set(d)
}

func (p *Pool) reportError(err error) {
	fn := p.handler.Get()
	if fn == nil {
		fn = defaultErrorHandler
	}
	fn(err)
}

func (p *Pool) idleTimeout() time.Duration {
	return p.idle.Get()
}

// Submit runs fn on the pool. The task starts immediately when an
// idle worker exists or a temporary worker can be created, and
// otherwise waits in the backlog. After Close the task is dropped and
// the error handler receives [ErrClosed]. Panics if fn is nil.
func (p *Pool) Submit(fn func()) {
	if fn == nil {
		panic("task: nil task")
	}
	if !p.trySubmit(fn) {
		p.reportError(ErrClosed)
	}
}

// trySubmit is Submit without the rejection report.
// Returns false when the pool is closed.
func (p *Pool) trySubmit(fn func()) bool {
	p.mu.Lock()
	if p.closed.IsSet() {
		p.mu.Unlock()
		return false
	}
	// One pass over the roster: purge retired workers and claim the
	// first idle one. Claiming is a CAS on the worker's state word so
	// a temporary worker's idle timeout cannot race the offer.
	var claimed *worker
	kept := p.roster[:0]
	for _, w := range p.roster {
		if w.state.Load() == workerEnded {
			continue
		}
		if claimed == nil && w.state.CompareAndSwap(workerIdle, workerBusy) {
			claimed = w
		}
		kept = append(kept, w)
	}
	clear(p.roster[len(kept):])
	p.roster = kept
	if claimed != nil {
		p.mu.Unlock()
		claimed.slot <- fn
		return true
	}
	if len(p.roster) < p.max {
		w := newWorker(p, len(p.roster) >= p.core)
		p.roster = append(p.roster, w)
		p.live++
		p.mu.Unlock()
		go w.run(fn)
		return true
	}
	p.backlog = append(p.backlog, fn)
	p.mu.Unlock()
	return true
}

// popBacklog removes the oldest waiting task, nil when none.
// Caller holds mu.
func (p *Pool) popBacklog() func() {
	if p.head == len(p.backlog) {
		return nil
	}
	fn := p.backlog[p.head]
	p.backlog[p.head] = nil
	p.head++
	if p.head == len(p.backlog) {
		p.backlog = p.backlog[:0]
		p.head = 0
	} else if p.head > 64 && p.head*2 >= len(p.backlog) {
		n := copy(p.backlog, p.backlog[p.head:])
		clear(p.backlog[n:])
		p.backlog = p.backlog[:n]
		p.head = 0
	}
	return fn
}

// Size returns the number of live workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	n := p.live
	p.mu.Unlock()
	return n
}

// Idle returns the number of workers waiting for a task.
func (p *Pool) Idle() int {
	p.mu.Lock()
	n := 0
	for _, w := range p.roster {
		if w.state.Load() == workerIdle {
			n++
		}
	}
	p.mu.Unlock()
	return n
}

// Backlog returns the number of tasks waiting for a worker.
func (p *Pool) Backlog() int {
	p.mu.Lock()
	n := len(p.backlog) - p.head
	p.mu.Unlock()
	return n
}

// Close stops accepting tasks, lets the backlog drain, and retires
// every worker. The returned completion fires once the last worker
// has exited. Close is idempotent: later calls return the same
// completion. Continuations of promises homed on a closed pool run
// inline on the fulfilling goroutine.
func (p *Pool) Close() *Completion {
	p.mu.Lock()
	if p.closed.Set() {
		close(p.closing)
		if p.live == 0 {
			p.mu.Unlock()
			p.drained.Complete()
			return p.drained
		}
	}
	p.mu.Unlock()
	return p.drained
}
