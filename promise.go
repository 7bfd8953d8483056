// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"sync"
	"time"
)

// Promise is a single-assignment container of a value of type T.
// It starts empty, accepts exactly one [Promise.Fulfill], and lets any
// number of goroutines wait for or react to the value. Create with
// [NewPromise] or [Fulfilled]; the zero value is not usable.
type Promise[T any] struct {
	pool      *Pool
	fulfilled Flag
	done      chan struct{}
	mu        sync.Mutex
	value     T
	scheduled []func(T) // run on the pool at fulfillment
	inline    []func(T) // run on the fulfilling goroutine
}

// NewPromise returns an empty promise whose continuations are
// scheduled on pool. A nil pool means [DefaultPool].
func NewPromise[T any](pool *Pool) *Promise[T] {
	return &Promise[T]{pool: pool, done: make(chan struct{})}
}

// Fulfilled returns a promise already holding v. Continuations
// registered on it run inline on the registering goroutine.
func Fulfilled[T any](v T) *Promise[T] {
	p := NewPromise[T](nil)
	p.Fulfill(v)
	return p
}

// Fulfill installs v as the promise's value. The first call wins and
// returns true; every later call returns false and changes nothing.
// Waiters wake and registered callbacks are scheduled on the
// promise's pool.
func (p *Promise[T]) Fulfill(v T) bool {
	p.mu.Lock()
	if !p.fulfilled.Set() {
		p.mu.Unlock()
		return false
	}
	p.value = v
	scheduled, inline := p.scheduled, p.inline
	p.scheduled, p.inline = nil, nil
	p.mu.Unlock()
	close(p.done)
	for _, fn := range inline {
		fn(v)
	}
	for _, fn := range scheduled {
		p.dispatch(fn, v)
	}
	return true
}

// IsFulfilled reports whether the value has been installed.
func (p *Promise[T]) IsFulfilled() bool {
	return p.fulfilled.IsSet()
}

// TryGet returns the value without blocking.
// ok is false while the promise is still empty.
func (p *Promise[T]) TryGet() (v T, ok bool) {
	select {
	case <-p.done:
		return p.value, true
	default:
		return v, false
	}
}

// Wait blocks until the promise is fulfilled and returns the value.
func (p *Promise[T]) Wait() T {
	<-p.done
	return p.value
}

// WaitFor blocks up to d for fulfillment. ok is false if d elapsed
// first; the promise is untouched and a later Wait still works.
func (p *Promise[T]) WaitFor(d time.Duration) (v T, ok bool) {
	select {
	case <-p.done:
		return p.value, true
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.value, true
	case <-timer.C:
		return v, false
	}
}

// OnComplete registers fn to receive the value. If the promise is
// already fulfilled, fn runs immediately on the calling goroutine.
// Otherwise it is scheduled on the promise's pool at fulfillment,
// never on the fulfilling goroutine.
func (p *Promise[T]) OnComplete(fn func(T)) {
	p.mu.Lock()
	if p.fulfilled.IsSet() {
		v := p.value
		p.mu.Unlock()
		fn(v)
		return
	}
	p.scheduled = append(p.scheduled, fn)
	p.mu.Unlock()
}

// onFulfill registers fn to run on the fulfilling goroutine, or right
// away when the value is already present. Internal combinators use it
// for bookkeeping that must not wait for a worker.
func (p *Promise[T]) onFulfill(fn func(T)) {
	p.mu.Lock()
	if p.fulfilled.IsSet() {
		v := p.value
		p.mu.Unlock()
		fn(v)
		return
	}
	p.inline = append(p.inline, fn)
	p.mu.Unlock()
}

// schedule runs fn on the promise's pool. Falls back to the calling
// goroutine when the pool is closed so continuations cannot be lost
// during shutdown.
func (p *Promise[T]) schedule(fn func()) {
	if !poolOrDefault(p.pool).trySubmit(fn) {
		fn()
	}
}

func (p *Promise[T]) dispatch(fn func(T), v T) {
	p.schedule(func() { fn(v) })
}

// Map returns a promise holding f of p's value. If p is already
// fulfilled, f runs on the calling goroutine and the result arrives
// pre-fulfilled. Otherwise f is scheduled on p's pool at fulfillment.
func Map[T, U any](p *Promise[T], f func(T) U) *Promise[U] {
	out := NewPromise[U](p.pool)
	p.OnComplete(func(v T) {
		out.Fulfill(f(v))
	})
	return out
}

// MapAsync is [Map] with a forced hop: f runs on p's pool even when p
// is already fulfilled, keeping slow transforms off the calling
// goroutine.
func MapAsync[T, U any](p *Promise[T], f func(T) U) *Promise[U] {
	out := NewPromise[U](p.pool)
	p.onFulfill(func(v T) {
		out.schedule(func() { out.Fulfill(f(v)) })
	})
	return out
}

// FlatMap chains a promise-returning continuation: the result
// fulfills with the value of the promise f returns. f runs like
// [Map]: inline when p is already fulfilled, on p's pool otherwise.
func FlatMap[T, U any](p *Promise[T], f func(T) *Promise[U]) *Promise[U] {
	out := NewPromise[U](p.pool)
	p.OnComplete(func(v T) {
		f(v).onFulfill(func(u U) { out.Fulfill(u) })
	})
	return out
}

// Async runs f once on pool and fulfills the returned promise with
// its result. If f panics the promise stays empty and the panic is
// reported to the pool's error handler; use [TryAsync] to observe
// failures. A nil pool means [DefaultPool].
func Async[T any](pool *Pool, f func() T) *Promise[T] {
	p := NewPromise[T](pool)
	p.schedule(func() { p.Fulfill(f()) })
	return p
}
