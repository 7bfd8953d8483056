// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/task"
)

func TestActionQueueRunsAll(t *testing.T) {
	pool := task.NewPool(4, 4)
	defer pool.Close()
	q := task.NewActionQueue(pool, 4)

	const n = 20
	var runs atomic.Int32
	done := make([]*task.Completion, n)
	for i := range done {
		done[i] = q.Push(func() { runs.Add(1) })
	}
	if !task.All(done...).WaitFor(2 * time.Second) {
		t.Fatal("actions did not finish")
	}
	if got := runs.Load(); got != n {
		t.Fatalf("runs got %d, want %d", got, n)
	}
	waitUntil(t, 2*time.Second, func() bool { return q.Width() == 0 })
	if got := q.Waiting(); got != 0 {
		t.Fatalf("waiting got %d, want 0", got)
	}
}

func TestActionQueueWidthBound(t *testing.T) {
	pool := task.NewPool(4, 8)
	defer pool.Close()
	q := task.NewActionQueue(pool, 2)

	var running, high atomic.Int32
	const n = 12
	done := make([]*task.Completion, n)
	for i := range done {
		done[i] = q.Push(func() {
			cur := running.Add(1)
			for {
				h := high.Load()
				if cur <= h || high.CompareAndSwap(h, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		})
	}
	if !task.All(done...).WaitFor(5 * time.Second) {
		t.Fatal("actions did not finish")
	}
	if got := high.Load(); got > 2 {
		t.Fatalf("concurrent actions got %d, want at most 2", got)
	}
}

func TestActionQueueFIFO(t *testing.T) {
	pool := task.NewPool(2, 2)
	defer pool.Close()
	q := task.NewActionQueue(pool, 1)

	const n = 20
	order := make(chan int, n)
	var last *task.Completion
	for i := range n {
		last = q.Push(func() { order <- i })
	}
	if !last.WaitFor(2 * time.Second) {
		t.Fatal("actions did not finish")
	}
	for want := range n {
		if got := <-order; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}
}

func TestActionQueuePanicContained(t *testing.T) {
	pool := task.NewPool(1, 1)
	defer pool.Close()
	errs := make(chan error, 1)
	pool.SetErrorHandler(func(err error) { errs <- err })
	q := task.NewActionQueue(pool, 1)

	c := q.Push(func() { panic("bad action") })
	if !c.WaitFor(2 * time.Second) {
		t.Fatal("completion must fire even when the action panics")
	}
	select {
	case err := <-errs:
		var pe *task.PanicError
		if !errors.As(err, &pe) {
			t.Fatalf("got %T, want *task.PanicError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler did not run")
	}

	ran := make(chan struct{})
	q.Push(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("action after a panic did not run")
	}
}

func TestActionQueueValidation(t *testing.T) {
	func() {
		defer func() {
			if recover() == nil {
				t.Error("NewActionQueue with zero width must panic")
			}
		}()
		task.NewActionQueue(nil, 0)
	}()
	q := task.NewActionQueue(nil, 1)
	defer func() {
		if recover() == nil {
			t.Error("Push(nil) must panic")
		}
	}()
	q.Push(nil)
}

func TestBoundedActionQueueRunsAll(t *testing.T) {
	skipRace(t)
	pool := task.NewPool(2, 4)
	defer pool.Close()
	q := task.NewBoundedActionQueue(pool, 2, 16)

	const n = 10
	var runs atomic.Int32
	done := make([]*task.Completion, 0, n)
	for range n {
		c, err := q.TryPush(func() { runs.Add(1) })
		if err != nil {
			t.Fatalf("TryPush: %v", err)
		}
		done = append(done, c)
	}
	if !task.All(done...).WaitFor(2 * time.Second) {
		t.Fatal("actions did not finish")
	}
	if got := runs.Load(); got != n {
		t.Fatalf("runs got %d, want %d", got, n)
	}
	waitUntil(t, 2*time.Second, func() bool { return q.Width() == 0 && q.Waiting() == 0 })
}

func TestBoundedActionQueueSaturates(t *testing.T) {
	skipRace(t)
	pool := task.NewPool(1, 1)
	defer pool.Close()
	q := task.NewBoundedActionQueue(pool, 1, 2)

	started := make(chan struct{})
	gate := make(chan struct{})
	first, err := q.TryPush(func() { close(started); <-gate })
	if err != nil {
		t.Fatalf("TryPush: %v", err)
	}
	<-started

	// the single drainer is blocked; pushes must hit the ring bound
	var accepted []*task.Completion
	var saturated error
	for range 8 {
		c, err := q.TryPush(func() {})
		if err != nil {
			saturated = err
			break
		}
		accepted = append(accepted, c)
	}
	if saturated == nil {
		t.Fatal("ring never saturated")
	}
	if !errors.Is(saturated, task.ErrSaturated) {
		t.Fatalf("got %v, want ErrSaturated", saturated)
	}
	if !errors.Is(saturated, iox.ErrWouldBlock) || !iox.IsWouldBlock(saturated) {
		t.Fatalf("%v must report as would-block", saturated)
	}
	if len(accepted) == 0 {
		t.Fatal("pushes below the bound must be accepted")
	}

	close(gate)
	if !first.WaitFor(2 * time.Second) {
		t.Fatal("gated action did not finish")
	}
	if !task.All(accepted...).WaitFor(2 * time.Second) {
		t.Fatal("accepted actions did not finish")
	}

	// capacity freed: pushes are accepted again
	waitUntil(t, 2*time.Second, func() bool {
		c, err := q.TryPush(func() {})
		if err != nil {
			return false
		}
		return c.WaitFor(2 * time.Second)
	})
}

func TestBoundedActionQueueFIFO(t *testing.T) {
	skipRace(t)
	pool := task.NewPool(2, 2)
	defer pool.Close()
	q := task.NewBoundedActionQueue(pool, 1, 64)

	const n = 32
	order := make(chan int, n)
	var last *task.Completion
	for i := range n {
		c, err := q.TryPush(func() { order <- i })
		if err != nil {
			t.Fatalf("TryPush %d: %v", i, err)
		}
		last = c
	}
	if !last.WaitFor(2 * time.Second) {
		t.Fatal("actions did not finish")
	}
	for want := range n {
		if got := <-order; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}
}

func TestBoundedActionQueueValidation(t *testing.T) {
	skipRace(t)
	for _, tt := range []struct{ width, capacity int }{
		{0, 8},
		{1, 1},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NewBoundedActionQueue(%d, %d) must panic", tt.width, tt.capacity)
				}
			}()
			task.NewBoundedActionQueue(nil, tt.width, tt.capacity)
		}()
	}
}
