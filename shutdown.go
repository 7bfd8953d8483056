// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"sync"
	"time"
	"weak"
)

// shutdownGrace is the settle time granted after StopAll's bounded
// wait before stragglers are reported.
const shutdownGrace = 50 * time.Millisecond

// Shutdown tracks running loops weakly and stops them together.
// Registration never extends a loop's lifetime: an unreachable loop
// is pruned rather than pinned. Stopping is explicit: the owner of
// the process lifecycle calls [Shutdown.StopAll].
type Shutdown struct {
	reg List[weak.Pointer[Loop]]
}

// NewShutdown returns an empty shutdown registry.
func NewShutdown() *Shutdown {
	return &Shutdown{}
}

// defaultShutdown is the process-wide registry used by [Loop.Start].
var defaultShutdown = sync.OnceValue(NewShutdown)

// DefaultShutdown returns the process-wide shutdown registry.
func DefaultShutdown() *Shutdown {
	return defaultShutdown()
}

// Register adds l to the registry. The reference is weak: a loop that
// becomes unreachable is dropped at the next StopAll or Registered.
func (s *Shutdown) Register(l *Loop) {
	s.reg.Add(weak.Make(l))
}

// Registered returns the number of loops still reachable, pruning
// entries whose loops have been collected.
func (s *Shutdown) Registered() int {
	n := 0
	s.reg.Update(func(ptrs []weak.Pointer[Loop]) []weak.Pointer[Loop] {
		kept := ptrs[:0]
		for _, wp := range ptrs {
			if wp.Value() == nil {
				continue
			}
			kept = append(kept, wp)
			n++
		}
		return kept
	})
	return n
}

// StopAll stops every registered loop, waits up to maxWait for all of
// them to exit, then grants a short grace period to late finishers.
// It returns the stop completions still pending after that, empty
// when everything stopped in time. The registry is drained: loops
// registered afterwards belong to the next StopAll.
func (s *Shutdown) StopAll(maxWait time.Duration) []*Completion {
	var pending []*Completion
	for _, wp := range s.reg.Drain() {
		l := wp.Value()
		if l == nil {
			continue
		}
		pending = append(pending, l.Stop())
	}
	if len(pending) == 0 {
		return nil
	}
	if !All(pending...).WaitFor(maxWait) {
		time.Sleep(shutdownGrace)
	}
	var stragglers []*Completion
	for _, c := range pending {
		if !c.IsComplete() {
			stragglers = append(stragglers, c)
		}
	}
	return stragglers
}

// StopAllLoops stops everything in the default registry.
func StopAllLoops(maxWait time.Duration) []*Completion {
	return DefaultShutdown().StopAll(maxWait)
}
