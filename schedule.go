// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"slices"
	"sync"
	"time"
)

// Scheduler runs registered actions at wall-clock deadlines on one
// loop, sleeping exactly until the earliest deadline. Daily entries
// reschedule themselves for the next day after each run; adding a
// nearer deadline wakes the loop so it never oversleeps.
type Scheduler struct {
	pool *Pool

	mu      sync.Mutex
	entries []*Entry

	started Flag
	loop    *Loop
}

// Entry is one scheduled action.
type Entry struct {
	s     *Scheduler
	op    func()
	at    time.Time
	daily bool
	gone  bool
}

// NextRun returns when the entry fires next. Meaningless once the
// entry is no longer scheduled.
func (e *Entry) NextRun() time.Time {
	e.s.mu.Lock()
	at := e.at
	e.s.mu.Unlock()
	return at
}

// IsScheduled reports whether the entry is still pending. Daily
// entries stay scheduled until cancelled; one-shot entries leave the
// schedule when they fire.
func (e *Entry) IsScheduled() bool {
	e.s.mu.Lock()
	v := !e.gone
	e.s.mu.Unlock()
	return v
}

// Cancel removes the entry from the scheduler. Safe to call more than
// once; a run already in progress is not interrupted.
func (e *Entry) Cancel() {
	e.s.mu.Lock()
	e.gone = true
	e.s.entries = slices.DeleteFunc(e.s.entries, func(x *Entry) bool { return x == e })
	e.s.mu.Unlock()
	e.s.loop.Wake()
}

// NewScheduler returns a scheduler whose actions run inside a loop on
// pool. The loop starts with the first scheduled entry; end it with
// [Scheduler.Stop]. A nil pool means [DefaultPool].
func NewScheduler(pool *Pool) *Scheduler {
	s := &Scheduler{pool: pool}
	s.loop = NewLoop(s.runDue, StrategyFunc(s.nextDelay))
	return s
}

// Stop ends the scheduling loop. Pending entries never fire again.
func (s *Scheduler) Stop() *Completion {
	return s.loop.Stop()
}

// ScheduleAt registers op to run once at t. A deadline already in the
// past fires on the next loop iteration.
func (s *Scheduler) ScheduleAt(op func(), t time.Time) *Entry {
	return s.add(&Entry{s: s, op: op, at: t})
}

// ScheduleDaily registers op to run every day at hour:min local time,
// starting today if that moment is still ahead and tomorrow
// otherwise. Panics on an invalid hour or minute.
func (s *Scheduler) ScheduleDaily(op func(), hour, min int) *Entry {
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		panic("task: invalid daily schedule time")
	}
	return s.add(&Entry{s: s, op: op, at: nextDaily(time.Now(), hour, min), daily: true})
}

func (s *Scheduler) add(e *Entry) *Entry {
	if e.op == nil {
		panic("task: nil scheduled action")
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.sortLocked()
	s.mu.Unlock()
	s.started.Once(func() {
		poolOrDefault(s.pool).Submit(s.loop.Run)
	})
	s.loop.Wake()
	return e
}

// sortLocked keeps entries ordered by deadline, earliest first.
// Caller holds mu.
func (s *Scheduler) sortLocked() {
	slices.SortStableFunc(s.entries, func(a, b *Entry) int {
		return a.at.Compare(b.at)
	})
}

// nextDaily computes the first hour:min occurrence after now.
func nextDaily(now time.Time, hour, min int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// runDue fires every entry whose deadline has passed. Daily entries
// advance from their previous deadline rather than from now, so a
// late run does not drift the schedule.
func (s *Scheduler) runDue() bool {
	now := time.Now()
	var due []*Entry
	s.mu.Lock()
	for len(s.entries) > 0 && !s.entries[0].at.After(now) {
		e := s.entries[0]
		s.entries = s.entries[1:]
		due = append(due, e)
	}
	for _, e := range due {
		if e.daily {
			e.at = e.at.Add(24 * time.Hour)
			s.entries = append(s.entries, e)
		} else {
			e.gone = true
		}
	}
	if len(due) > 0 {
		s.sortLocked()
	}
	s.mu.Unlock()
	for _, e := range due {
		s.fire(e)
	}
	return true
}

// fire runs one entry, containing panics so one bad action cannot
// take down the scheduling loop.
func (s *Scheduler) fire(e *Entry) {
	defer func() {
		if r := recover(); r != nil {
			poolOrDefault(s.pool).reportError(&PanicError{Origin: "scheduler", Value: r})
		}
	}()
	e.op()
}

// nextDelay sleeps until the earliest deadline, or indefinitely when
// nothing is scheduled.
func (s *Scheduler) nextDelay() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0, false
	}
	return time.Until(s.entries[0].at), true
}

// defaultScheduler serves RepeatDaily.
var defaultScheduler = sync.OnceValue(func() *Scheduler {
	s := NewScheduler(nil)
	DefaultShutdown().Register(s.loop)
	return s
})

// RepeatDaily schedules op to run every day at hour:min local time on
// the shared scheduler, whose loop is registered with the default
// shutdown registry.
func RepeatDaily(op func(), hour, min int) *Entry {
	return defaultScheduler().ScheduleDaily(op, hour, min)
}
