// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// Cell is a lock-guarded container for a single value of type T.
// Update applies read-modify-write sequences without interleaving,
// which plain assignment cannot guarantee. The zero value is ready to
// use and holds the zero value of T.
type Cell[T any] struct {
	mu sync.Mutex
	v  T
}

// NewCell returns a cell holding v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{v: v}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	v := c.v
	c.mu.Unlock()
	return v
}

// Set replaces the current value with v.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

// Swap replaces the current value with v and returns the previous one.
func (c *Cell[T]) Swap(v T) T {
	c.mu.Lock()
	old := c.v
	c.v = v
	c.mu.Unlock()
	return old
}

// Update stores f(current) while holding the cell's lock and returns
// the stored value. Concurrent Updates never interleave. f must not
// call back into the cell.
func (c *Cell[T]) Update(f func(T) T) T {
	c.mu.Lock()
	c.v = f(c.v)
	v := c.v
	c.mu.Unlock()
	return v
}

// Flag is an atomic boolean for break and close signaling.
// The zero value is unset.
type Flag struct {
	v atomix.Uint32
}

// Set sets the flag. Returns true if this call moved it from unset to
// set, false if it was already set.
func (f *Flag) Set() bool {
	return f.v.CompareAndSwap(0, 1)
}

// Reset clears the flag.
func (f *Flag) Reset() {
	f.v.Store(0)
}

// IsSet reports whether the flag is set.
func (f *Flag) IsSet() bool {
	return f.v.Load() != 0
}

// Once runs fn if and only if this call moved the flag from unset to
// set, so fn runs at most once per flag generation. The claim is
// consumed even if fn panics.
func (f *Flag) Once(fn func()) bool {
	if !f.Set() {
		return false
	}
	fn()
	return true
}

// List is a lock-guarded slice: append at the tail, pop from the
// head, drain the whole contents. Suited to completion fan-out and
// registry bookkeeping where contention is low.
type List[T any] struct {
	mu    sync.Mutex
	items []T
}

// Add appends v.
func (l *List[T]) Add(v T) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

// Pop removes and returns the oldest element.
// ok is false when the list is empty.
func (l *List[T]) Pop() (v T, ok bool) {
	l.mu.Lock()
	if len(l.items) == 0 {
		l.mu.Unlock()
		return v, false
	}
	v = l.items[0]
	var zero T
	l.items[0] = zero // drop the reference so the backing array does not retain it
	l.items = l.items[1:]
	l.mu.Unlock()
	return v, true
}

// Len returns the number of elements.
func (l *List[T]) Len() int {
	l.mu.Lock()
	n := len(l.items)
	l.mu.Unlock()
	return n
}

// Drain removes and returns all elements, oldest first.
func (l *List[T]) Drain() []T {
	l.mu.Lock()
	items := l.items
	l.items = nil
	l.mu.Unlock()
	return items
}

// Update replaces the contents with f(current) while holding the
// list's lock. f must not call back into the list.
func (l *List[T]) Update(f func([]T) []T) {
	l.mu.Lock()
	l.items = f(l.items)
	l.mu.Unlock()
}
