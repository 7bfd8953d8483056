// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"time"

	"code.hybscloud.com/atomix"
)

// Completion is a promise that carries no value: it only becomes
// complete. It is the done-signal of loops, queued requests, and pool
// shutdown.
type Completion struct {
	p Promise[struct{}]
}

// NewCompletion returns a pending completion whose callbacks are
// scheduled on [DefaultPool].
func NewCompletion() *Completion {
	return newCompletion(nil)
}

func newCompletion(pool *Pool) *Completion {
	return &Completion{p: Promise[struct{}]{pool: pool, done: make(chan struct{})}}
}

// Done returns a completion that is already complete.
func Done() *Completion {
	c := newCompletion(nil)
	c.Complete()
	return c
}

// Complete marks the completion done. The first call wins and returns
// true; later calls return false and change nothing.
func (c *Completion) Complete() bool {
	return c.p.Fulfill(struct{}{})
}

// IsComplete reports whether Complete has been called.
func (c *Completion) IsComplete() bool {
	return c.p.IsFulfilled()
}

// Wait blocks until the completion is done.
func (c *Completion) Wait() {
	c.p.Wait()
}

// WaitFor blocks up to d. Returns false if d elapsed first.
func (c *Completion) WaitFor(d time.Duration) bool {
	_, ok := c.p.WaitFor(d)
	return ok
}

// OnComplete registers fn to run once the completion is done:
// immediately on the calling goroutine if already complete, otherwise
// on the completion's pool, never on the completing goroutine.
func (c *Completion) OnComplete(fn func()) {
	c.p.OnComplete(func(struct{}) { fn() })
}

// onDone registers fn to run on the completing goroutine. Internal
// combinators use it for bookkeeping that must not wait for a worker.
func (c *Completion) onDone(fn func()) {
	c.p.onFulfill(func(struct{}) { fn() })
}

// All returns a completion that completes once every completion in cs
// is done. With no arguments the result is already complete.
func All(cs ...*Completion) *Completion {
	out := NewCompletion()
	if len(cs) == 0 {
		out.Complete()
		return out
	}
	var completed atomix.Uint32
	total := uint32(len(cs))
	for _, c := range cs {
		c.onDone(func() {
			if completed.Add(1) == total {
				out.Complete()
			}
		})
	}
	return out
}
