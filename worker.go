// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"strconv"
	"time"

	"code.hybscloud.com/atomix"
)

// Worker states. Offers claim idle→busy with CAS; the idle timeout
// claims idle→ended. Busy→idle happens under the pool lock between
// tasks, so a backlog append and an idle transition cannot cross.
const (
	workerIdle uint32 = iota
	workerBusy
	workerEnded
)

// workerSerial numbers workers across all pools for error reporting.
var workerSerial atomix.Uint32

// worker owns one goroutine. Tasks arrive preloaded at spawn, through
// the single-slot handoff channel after an idle claim, or from the
// pool backlog between tasks.
type worker struct {
	pool  *Pool
	name  string
	slot  chan func()
	state atomix.Uint32
	temp  bool
}

// newWorker returns a worker in the busy state so it cannot be
// claimed before its goroutine is ready.
func newWorker(p *Pool, temp bool) *worker {
	w := &worker{
		pool: p,
		name: "worker-" + strconv.FormatUint(uint64(workerSerial.Add(1)), 10),
		slot: make(chan func(), 1),
		temp: temp,
	}
	w.state.Store(workerBusy)
	return w
}

// run is the worker goroutine body. task may be preloaded by spawn.
func (w *worker) run(task func()) {
	for {
		if task != nil {
			w.exec(task)
		}
		task = w.next()
		if task == nil {
			return
		}
	}
}

// exec runs one task, converting a panic into a [PanicError] for the
// pool's error handler. The worker survives.
func (w *worker) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.reportError(&PanicError{Origin: w.name, Value: r})
		}
	}()
	task()
}

// next returns the worker's next task, blocking while idle.
// A nil return retires the worker.
func (w *worker) next() func() {
	p := w.pool
	p.mu.Lock()
	if task := p.popBacklog(); task != nil {
		p.mu.Unlock()
		return task
	}
	if p.closed.IsSet() {
		p.mu.Unlock()
		w.retire()
		return nil
	}
	w.state.Store(workerIdle)
	p.mu.Unlock()
	if w.temp {
		return w.awaitTemp()
	}
	return w.awaitCore()
}

// awaitCore blocks until a task is offered or the pool closes.
func (w *worker) awaitCore() func() {
	select {
	case task := <-w.slot:
		return task
	case <-w.pool.closing:
		return w.wakeClosed()
	}
}

// awaitTemp blocks like awaitCore but retires after the idle timeout.
func (w *worker) awaitTemp() func() {
	timer := time.NewTimer(w.pool.idleTimeout())
	defer timer.Stop()
	select {
	case task := <-w.slot:
		return task
	case <-w.pool.closing:
		return w.wakeClosed()
	case <-timer.C:
		if !w.state.CompareAndSwap(workerIdle, workerEnded) {
			// An offer claimed this worker first; its task is already
			// in flight on the slot.
			return <-w.slot
		}
		w.unlist()
		return nil
	}
}

// wakeClosed resolves the race between the close broadcast and an
// in-flight offer: a task that won the claim is still honored, and
// the backlog drains before the worker retires.
func (w *worker) wakeClosed() func() {
	if !w.state.CompareAndSwap(workerIdle, workerBusy) {
		return <-w.slot
	}
	p := w.pool
	p.mu.Lock()
	if task := p.popBacklog(); task != nil {
		p.mu.Unlock()
		return task
	}
	p.mu.Unlock()
	w.retire()
	return nil
}

// retire marks the worker ended and unlists it.
func (w *worker) retire() {
	w.state.Store(workerEnded)
	w.unlist()
}

// unlist drops the worker from the live count, completing the pool's
// drain when it is the last one out of a closed pool.
func (w *worker) unlist() {
	p := w.pool
	p.mu.Lock()
	p.live--
	last := p.closed.IsSet() && p.live == 0
	p.mu.Unlock()
	if last {
		p.drained.Complete()
	}
}
