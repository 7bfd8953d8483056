// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import "sync"

// Queue admits completion-producing requests with at most maxWidth
// running at once. Push hands back a completion that fires when the
// request's own completion does; requests beyond the width wait in
// FIFO order and start as running ones finish.
type Queue struct {
	pool     *Pool
	maxWidth int

	mu      sync.Mutex
	width   int
	waiting []waitingRequest
}

type waitingRequest struct {
	factory func() *Completion
	proxy   *Completion
}

// NewQueue returns a queue admitting at most maxWidth concurrent
// requests. Factory panics are reported through pool's error handler;
// a nil pool means [DefaultPool].
func NewQueue(pool *Pool, maxWidth int) *Queue {
	if maxWidth < 1 {
		panic("task: queue width must be at least 1")
	}
	return &Queue{pool: pool, maxWidth: maxWidth}
}

// Push admits the request produced by factory. Within the width limit
// factory runs right away on the calling goroutine and its completion
// is returned directly; otherwise the request waits its turn and Push
// returns a proxy that completes together with the request's own
// completion. A factory that panics or returns nil counts as
// immediately complete, with the panic reported to the error handler,
// so a width slot can never leak.
func (q *Queue) Push(factory func() *Completion) *Completion {
	if factory == nil {
		panic("task: nil queue request")
	}
	q.mu.Lock()
	if q.width < q.maxWidth {
		q.width++
		q.mu.Unlock()
		c := q.invoke(factory)
		if c.IsComplete() {
			q.release()
			return c
		}
		c.onDone(q.release)
		return c
	}
	proxy := newCompletion(q.pool)
	q.waiting = append(q.waiting, waitingRequest{factory: factory, proxy: proxy})
	q.mu.Unlock()
	return proxy
}

// invoke runs the factory outside the queue lock, containing panics.
// A nil completion or a panic yields an already-complete one.
func (q *Queue) invoke(factory func() *Completion) (c *Completion) {
	defer func() {
		if r := recover(); r != nil {
			poolOrDefault(q.pool).reportError(&PanicError{Origin: "queue", Value: r})
			c = Done()
		}
	}()
	c = factory()
	if c == nil {
		c = Done()
	}
	return c
}

// release returns a width slot and starts waiting requests while
// slots are free. Requests that complete synchronously hand their
// slot back within the same pass, so a burst of instant requests
// drains iteratively instead of recursing.
func (q *Queue) release() {
	q.mu.Lock()
	q.width--
	for q.width < q.maxWidth && len(q.waiting) > 0 {
		req := q.waiting[0]
		q.waiting[0] = waitingRequest{}
		q.waiting = q.waiting[1:]
		q.width++
		q.mu.Unlock()
		c := q.invoke(req.factory)
		if c.IsComplete() {
			req.proxy.Complete()
			q.mu.Lock()
			q.width--
			continue
		}
		proxy := req.proxy
		c.onDone(func() {
			proxy.Complete()
			q.release()
		})
		q.mu.Lock()
	}
	q.mu.Unlock()
}

// Width returns the number of requests currently running.
func (q *Queue) Width() int {
	q.mu.Lock()
	w := q.width
	q.mu.Unlock()
	return w
}

// Waiting returns the number of requests queued behind the width
// limit.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	n := len(q.waiting)
	q.mu.Unlock()
	return n
}
