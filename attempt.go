// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"time"

	"code.hybscloud.com/kont"
)

// Attempt is a promise of a fallible result: it settles exactly once,
// succeeding with a T or failing with an error. The settled value is
// a [code.hybscloud.com/kont.Either] with the error on the left.
type Attempt[T any] struct {
	p Promise[kont.Either[error, T]]
}

// NewAttempt returns an unsettled attempt whose continuations are
// scheduled on pool. A nil pool means [DefaultPool].
func NewAttempt[T any](pool *Pool) *Attempt[T] {
	return &Attempt[T]{p: Promise[kont.Either[error, T]]{pool: pool, done: make(chan struct{})}}
}

// Succeed settles the attempt with v. The first settle wins.
func (a *Attempt[T]) Succeed(v T) bool {
	return a.p.Fulfill(kont.Right[error](v))
}

// Fail settles the attempt with err. The first settle wins.
func (a *Attempt[T]) Fail(err error) bool {
	return a.p.Fulfill(kont.Left[error, T](err))
}

// IsSettled reports whether the attempt has succeeded or failed.
func (a *Attempt[T]) IsSettled() bool {
	return a.p.IsFulfilled()
}

// Wait blocks until the attempt settles. Right on success, Left on
// failure.
func (a *Attempt[T]) Wait() kont.Either[error, T] {
	return a.p.Wait()
}

// WaitFor blocks up to d for the attempt to settle.
// ok is false if d elapsed first.
func (a *Attempt[T]) WaitFor(d time.Duration) (e kont.Either[error, T], ok bool) {
	return a.p.WaitFor(d)
}

// OnSuccess registers fn to receive the value if the attempt
// succeeds. Scheduling follows [Promise.OnComplete].
func (a *Attempt[T]) OnSuccess(fn func(T)) {
	a.p.OnComplete(func(e kont.Either[error, T]) {
		if v, ok := e.GetRight(); ok {
			fn(v)
		}
	})
}

// OnFailure registers fn to receive the error if the attempt fails.
// Scheduling follows [Promise.OnComplete].
func (a *Attempt[T]) OnFailure(fn func(error)) {
	a.p.OnComplete(func(e kont.Either[error, T]) {
		if err, ok := e.GetLeft(); ok {
			fn(err)
		}
	})
}

// OnSettled registers fn to receive the Either either way.
// Scheduling follows [Promise.OnComplete].
func (a *Attempt[T]) OnSettled(fn func(kont.Either[error, T])) {
	a.p.OnComplete(fn)
}

// TryAsync runs f once on pool: the attempt succeeds with f's value
// or fails with its error. A recovered panic fails the attempt with a
// [PanicError]. A nil pool means [DefaultPool].
func TryAsync[T any](pool *Pool, f func() (T, error)) *Attempt[T] {
	a := NewAttempt[T](pool)
	a.p.schedule(func() {
		v, err := runTry(f)
		if err != nil {
			a.Fail(err)
			return
		}
		a.Succeed(v)
	})
	return a
}

// runTry invokes f, converting a panic into a PanicError.
func runTry[T any](f func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Origin: "attempt", Value: r}
		}
	}()
	return f()
}

// Retry runs f on pool up to maxAttempts times, sleeping delay
// between consecutive tries and never after the last. The attempt
// settles with the first success or the error of the final try.
// maxAttempts below 1 counts as 1. A recovered panic counts as a
// failed try.
func Retry[T any](pool *Pool, f func() (T, error), maxAttempts int, delay time.Duration) *Attempt[T] {
	a := NewAttempt[T](pool)
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var attempt func(remaining int)
	attempt = func(remaining int) {
		v, err := runTry(f)
		if err == nil {
			a.Succeed(v)
			return
		}
		if remaining <= 1 {
			a.Fail(err)
			return
		}
		time.AfterFunc(delay, func() {
			a.p.schedule(func() { attempt(remaining - 1) })
		})
	}
	a.p.schedule(func() { attempt(maxAttempts) })
	return a
}

// WithBackup returns an attempt that mirrors a on success and runs
// backup when a fails; the fallback's outcome settles the result.
// backup never runs when a succeeds. Like [Map], backup runs inline
// when a is already settled and on a's pool otherwise.
func WithBackup[T any](a *Attempt[T], backup func() (T, error)) *Attempt[T] {
	out := NewAttempt[T](a.p.pool)
	a.p.OnComplete(func(e kont.Either[error, T]) {
		if v, ok := e.GetRight(); ok {
			out.Succeed(v)
			return
		}
		v, err := runTry(backup)
		if err != nil {
			out.Fail(err)
			return
		}
		out.Succeed(v)
	})
	return out
}

// WithBackupTry chains a fallback attempt: when a fails, next is
// started and its result settles the returned attempt.
func WithBackupTry[T any](a *Attempt[T], next func() *Attempt[T]) *Attempt[T] {
	out := NewAttempt[T](a.p.pool)
	a.p.OnComplete(func(e kont.Either[error, T]) {
		if v, ok := e.GetRight(); ok {
			out.Succeed(v)
			return
		}
		next().p.onFulfill(func(e2 kont.Either[error, T]) {
			out.p.Fulfill(e2)
		})
	})
	return out
}

// WithTimeout returns an attempt that succeeds with p's value if it
// arrives within d and fails with [ErrTimeout] otherwise. The
// underlying promise keeps running either way; a timeout only
// abandons the wait.
func WithTimeout[T any](p *Promise[T], d time.Duration) *Attempt[T] {
	a := NewAttempt[T](p.pool)
	timer := time.AfterFunc(d, func() {
		a.Fail(ErrTimeout)
	})
	p.onFulfill(func(v T) {
		if a.Succeed(v) {
			timer.Stop()
		}
	})
	return a
}

// MapAttempt transforms a success value, short-circuiting failures: a
// failed a settles the result with the same error and f never runs.
// Like [Map], f runs inline when a is already settled.
func MapAttempt[T, U any](a *Attempt[T], f func(T) U) *Attempt[U] {
	out := NewAttempt[U](a.p.pool)
	a.p.OnComplete(func(e kont.Either[error, T]) {
		out.p.Fulfill(kont.MapEither(e, f))
	})
	return out
}

// FlatMapAttempt chains a fallible continuation, short-circuiting
// failures.
func FlatMapAttempt[T, U any](a *Attempt[T], f func(T) *Attempt[U]) *Attempt[U] {
	out := NewAttempt[U](a.p.pool)
	a.p.OnComplete(func(e kont.Either[error, T]) {
		if err, ok := e.GetLeft(); ok {
			out.Fail(err)
			return
		}
		v, _ := e.GetRight()
		f(v).p.onFulfill(func(e2 kont.Either[error, U]) {
			out.p.Fulfill(e2)
		})
	})
	return out
}
