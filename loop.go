// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"time"
	"weak"

	"code.hybscloud.com/atomix"
)

// Strategy decides how long a loop sleeps between iterations.
// NextDelay returns the wait before the next run; ok=false means
// sleep until woken or stopped.
type Strategy interface {
	NextDelay() (d time.Duration, ok bool)
}

// StrategyFunc adapts a function to the [Strategy] interface.
type StrategyFunc func() (time.Duration, bool)

func (f StrategyFunc) NextDelay() (time.Duration, bool) { return f() }

// Every returns a fixed-interval strategy.
func Every(d time.Duration) Strategy {
	return StrategyFunc(func() (time.Duration, bool) { return d, true })
}

// OnWake returns a strategy that sleeps until [Loop.Wake] or
// [Loop.Stop].
func OnWake() Strategy {
	return StrategyFunc(func() (time.Duration, bool) { return 0, false })
}

// Loop states. Run claims idle→running; Stop on a never-started loop
// claims idle→stopped, preventing the run outright.
const (
	loopIdle uint32 = iota
	loopRunning
	loopStopped
)

// Loop repeatedly runs an operation, sleeping per its strategy
// between iterations, until the operation reports done, an attached
// check fails, or [Loop.Stop] is called. The operation always runs at
// least once per [Loop.Run].
type Loop struct {
	op       func() bool
	strategy Strategy
	check    func() bool

	state   atomix.Uint32
	brk     Flag
	broken  chan struct{}
	wake    chan struct{}
	stopped List[weak.Pointer[Completion]]
}

// NewLoop returns a loop running op under the given sleep strategy.
// op returns false to end the loop. A nil strategy means [OnWake].
func NewLoop(op func() bool, s Strategy) *Loop {
	if op == nil {
		panic("task: nil loop operation")
	}
	if s == nil {
		s = OnWake()
	}
	return &Loop{
		op:       op,
		strategy: s,
		broken:   make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// WithCheck returns a new loop that additionally requires pred to
// hold for the loop to continue. The receiver is left untouched and
// remains independently runnable.
func (l *Loop) WithCheck(pred func() bool) *Loop {
	nl := NewLoop(l.op, l.strategy)
	if prev := l.check; prev != nil {
		nl.check = func() bool { return prev() && pred() }
	} else {
		nl.check = pred
	}
	return nl
}

// Start runs the loop on pool and registers it with the default
// shutdown registry. A nil pool means [DefaultPool].
func (l *Loop) Start(pool *Pool) {
	DefaultShutdown().Register(l)
	poolOrDefault(pool).Submit(l.Run)
}

// Run executes the loop on the calling goroutine until done. A loop
// runs at most once: a second Run returns immediately, as does Run
// after Stop. Stop completions are fulfilled on exit even when the
// operation panics out of the loop.
func (l *Loop) Run() {
	if !l.state.CompareAndSwap(loopIdle, loopRunning) {
		return
	}
	defer l.finish()
	for l.iterate() {
		if !l.sleep() {
			return
		}
	}
}

// iterate runs the operation once and reports whether to keep going.
func (l *Loop) iterate() bool {
	if !l.op() {
		return false
	}
	if l.brk.IsSet() {
		return false
	}
	if l.check != nil && !l.check() {
		return false
	}
	return true
}

// sleep waits out the strategy delay. Returns false when the loop was
// stopped while sleeping. A wake ends the sleep early.
func (l *Loop) sleep() bool {
	d, bounded := l.strategy.NextDelay()
	if !bounded {
		select {
		case <-l.broken:
			return false
		case <-l.wake:
			return true
		}
	}
	if d <= 0 {
		// Still yield to a pending stop.
		select {
		case <-l.broken:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-l.broken:
		return false
	case <-l.wake:
		return true
	case <-timer.C:
		return true
	}
}

// finish publishes the stopped state, then fulfills every pending
// stop completion. Store before drain: a Stop that misses the stopped
// state is guaranteed to have enlisted before the drain.
func (l *Loop) finish() {
	l.state.Store(loopStopped)
	for _, wp := range l.stopped.Drain() {
		if c := wp.Value(); c != nil {
			c.Complete()
		}
	}
}

// Wake ends the current sleep early, starting the next iteration
// immediately. A wake with no sleep in progress is remembered for the
// next one.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// IsStopped reports whether the loop has exited or was stopped before
// running.
func (l *Loop) IsStopped() bool {
	return l.state.Load() == loopStopped
}

// Stop asks the loop to end after the current iteration and returns a
// completion that fires once the run has actually exited. Stopping a
// loop that never started completes immediately and keeps it from
// running. Stop is idempotent and safe from any goroutine; every call
// gets a valid completion. The loop holds them weakly, so an
// abandoned completion does not stay pinned until the loop exits.
func (l *Loop) Stop() *Completion {
	if l.state.CompareAndSwap(loopIdle, loopStopped) {
		l.brk.Set()
		return Done()
	}
	if l.state.Load() == loopStopped {
		return Done()
	}
	c := NewCompletion()
	l.stopped.Add(weak.Make(c))
	l.brk.Once(func() { close(l.broken) })
	if l.state.Load() == loopStopped {
		c.Complete()
	}
	return c
}

// RepeatForever starts a loop running op every interval on the
// default pool and registers it with the default shutdown registry.
func RepeatForever(op func(), interval time.Duration) *Loop {
	l := NewLoop(func() bool { op(); return true }, Every(interval))
	l.Start(nil)
	return l
}
