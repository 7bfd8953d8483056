// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// ActionQueue runs plain operations with at most maxWidth running at
// once. Operations wait in an unbounded FIFO drained by up to
// maxWidth pool workers; each Push returns a completion that fires
// when its operation has run.
type ActionQueue struct {
	pool     *Pool
	maxWidth int

	mu       sync.Mutex
	waiting  []queuedAction
	drainers int
}

type queuedAction struct {
	op   func()
	done *Completion
}

// NewActionQueue returns an action queue running at most maxWidth
// operations concurrently on pool. A nil pool means [DefaultPool].
func NewActionQueue(pool *Pool, maxWidth int) *ActionQueue {
	if maxWidth < 1 {
		panic("task: queue width must be at least 1")
	}
	return &ActionQueue{pool: pool, maxWidth: maxWidth}
}

// Push enqueues op and returns a completion that fires once it has
// run. A drainer is recruited from the pool unless the width limit is
// already staffed. A panic in op goes to the pool's error handler;
// the completion still fires.
func (q *ActionQueue) Push(op func()) *Completion {
	if op == nil {
		panic("task: nil action")
	}
	done := newCompletion(q.pool)
	q.mu.Lock()
	q.waiting = append(q.waiting, queuedAction{op: op, done: done})
	recruit := q.drainers < q.maxWidth
	if recruit {
		q.drainers++
	}
	q.mu.Unlock()
	if recruit {
		poolOrDefault(q.pool).Submit(q.drain)
	}
	return done
}

// drain runs queued actions one at a time until none are left.
// Deregistration and the emptiness check share one critical section,
// so an action observed by no drainer cannot exist.
func (q *ActionQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.waiting) == 0 {
			q.drainers--
			q.mu.Unlock()
			return
		}
		a := q.waiting[0]
		q.waiting[0] = queuedAction{}
		q.waiting = q.waiting[1:]
		q.mu.Unlock()
		runQueuedAction(poolOrDefault(q.pool), a)
	}
}

// Width returns the number of active drainers.
func (q *ActionQueue) Width() int {
	q.mu.Lock()
	n := q.drainers
	q.mu.Unlock()
	return n
}

// Waiting returns the number of actions not yet started.
func (q *ActionQueue) Waiting() int {
	q.mu.Lock()
	n := len(q.waiting)
	q.mu.Unlock()
	return n
}

// runQueuedAction executes one action, containing panics, and fires
// its completion either way.
func runQueuedAction(p *Pool, a queuedAction) {
	defer a.done.Complete()
	defer func() {
		if r := recover(); r != nil {
			p.reportError(&PanicError{Origin: "actionqueue", Value: r})
		}
	}()
	a.op()
}

// BoundedActionQueue is an [ActionQueue] over a bounded lock-free
// MPMC ring: Push becomes TryPush, which rejects instead of buffering
// when the ring is full. Suited to admission control at ingest
// boundaries where shedding beats unbounded queueing.
type BoundedActionQueue struct {
	pool     *Pool
	maxWidth uint32
	ring     lfq.Queue[queuedAction]
	reserved atomix.Uint32
	drainers atomix.Uint32
}

// NewBoundedActionQueue returns a bounded action queue running at
// most maxWidth operations concurrently on pool, holding at most
// capacity pending operations. Capacity rounds up to the next power
// of two; panics when maxWidth < 1 or capacity < 2. A nil pool means
// [DefaultPool].
func NewBoundedActionQueue(pool *Pool, maxWidth, capacity int) *BoundedActionQueue {
	if maxWidth < 1 {
		panic("task: queue width must be at least 1")
	}
	if capacity < 2 {
		panic("task: bounded queue capacity must be at least 2")
	}
	return &BoundedActionQueue{
		pool:     pool,
		maxWidth: uint32(maxWidth),
		ring:     lfq.NewMPMC[queuedAction](capacity),
	}
}

// TryPush enqueues op without blocking. When the ring is full it
// returns [ErrSaturated], which errors.Is reports as
// [code.hybscloud.com/iox.ErrWouldBlock]; retry once capacity frees.
// On success the returned completion fires when op has run.
func (q *BoundedActionQueue) TryPush(op func()) (*Completion, error) {
	if op == nil {
		panic("task: nil action")
	}
	done := newCompletion(q.pool)
	a := queuedAction{op: op, done: done}
	// Reserve before enqueueing: drainers treat a reservation they
	// cannot dequeue yet as an in-flight push and wait it out.
	q.reserved.Add(1)
	if err := q.ring.Enqueue(&a); err != nil {
		q.reserved.Add(^uint32(0))
		return nil, ErrSaturated
	}
	q.recruit()
	return done, nil
}

// recruit adds a drainer when the width limit has room.
func (q *BoundedActionQueue) recruit() {
	for {
		n := q.drainers.Load()
		if n >= q.maxWidth {
			return
		}
		if q.drainers.CompareAndSwap(n, n+1) {
			poolOrDefault(q.pool).Submit(q.drain)
			return
		}
	}
}

// drain runs ring actions until the reservation count hits zero. An
// empty dequeue with reservations outstanding is an in-flight push or
// the ring's anti-livelock threshold; both resolve with producer
// progress, so back off and retry rather than exit.
func (q *BoundedActionQueue) drain() {
	var bo iox.Backoff
	for {
		a, err := q.ring.Dequeue()
		if err == nil {
			q.reserved.Add(^uint32(0))
			bo.Reset()
			runQueuedAction(poolOrDefault(q.pool), a)
			continue
		}
		if q.reserved.Load() != 0 {
			bo.Wait()
			continue
		}
		// Release the drainer slot, then close the race with a push
		// that read the pre-release slot count: retake the slot if new
		// reservations appeared, otherwise leave for good.
		q.drainers.Add(^uint32(0))
		if q.reserved.Load() == 0 || !q.retake() {
			return
		}
		bo.Reset()
	}
}

// retake reclaims a drainer slot after release, failing when the
// width limit is already staffed again.
func (q *BoundedActionQueue) retake() bool {
	for {
		n := q.drainers.Load()
		if n >= q.maxWidth {
			return false
		}
		if q.drainers.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Width returns the number of active drainers.
func (q *BoundedActionQueue) Width() int {
	return int(q.drainers.Load())
}

// Waiting returns the number of operations enqueued or mid-push, an
// instantaneous snapshot.
func (q *BoundedActionQueue) Waiting() int {
	return int(q.reserved.Load())
}
