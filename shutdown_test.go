// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task_test

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"code.hybscloud.com/task"
)

func TestShutdownStopAll(t *testing.T) {
	pool := task.NewPool(2, 2)
	defer pool.Close()
	sd := task.NewShutdown()

	var runs atomic.Int32
	loops := make([]*task.Loop, 2)
	for i := range loops {
		l := task.NewLoop(func() bool {
			runs.Add(1)
			return true
		}, task.Every(2*time.Millisecond))
		sd.Register(l)
		pool.Submit(l.Run)
		loops[i] = l
	}
	waitUntil(t, 2*time.Second, func() bool { return runs.Load() >= 4 })

	if stragglers := sd.StopAll(2 * time.Second); len(stragglers) != 0 {
		t.Fatalf("stragglers got %d, want 0", len(stragglers))
	}
	for i, l := range loops {
		if !l.IsStopped() {
			t.Fatalf("loop %d must be stopped", i)
		}
	}
	if got := sd.Registered(); got != 0 {
		t.Fatalf("registered after StopAll got %d, want 0", got)
	}
}

func TestShutdownEmpty(t *testing.T) {
	sd := task.NewShutdown()
	if stragglers := sd.StopAll(10 * time.Millisecond); stragglers != nil {
		t.Fatalf("got %v, want nil", stragglers)
	}
}

func TestShutdownReportsStraggler(t *testing.T) {
	pool := task.NewPool(1, 1)
	defer pool.Close()
	sd := task.NewShutdown()

	started := make(chan struct{})
	gate := make(chan struct{})
	l := task.NewLoop(func() bool {
		started <- struct{}{}
		<-gate
		return true
	}, task.Every(time.Millisecond))
	sd.Register(l)
	pool.Submit(l.Run)
	<-started

	stragglers := sd.StopAll(20 * time.Millisecond)
	if len(stragglers) != 1 {
		t.Fatalf("stragglers got %d, want 1", len(stragglers))
	}
	if stragglers[0].IsComplete() {
		t.Fatal("straggler completion must still be pending")
	}
	close(gate)
	if !stragglers[0].WaitFor(2 * time.Second) {
		t.Fatal("straggler did not finish after release")
	}
	if !l.IsStopped() {
		t.Fatal("loop must be stopped")
	}
}

func TestShutdownWeakRegistration(t *testing.T) {
	sd := task.NewShutdown()
	l := task.NewLoop(func() bool { return true }, nil)
	sd.Register(l)
	if got := sd.Registered(); got != 1 {
		t.Fatalf("registered got %d, want 1", got)
	}
	l = nil
	waitUntil(t, 2*time.Second, func() bool {
		runtime.GC()
		return sd.Registered() == 0
	})
}

func TestStopAllLoopsDefaultRegistry(t *testing.T) {
	var runs atomic.Int32
	l := task.RepeatForever(func() { runs.Add(1) }, 2*time.Millisecond)
	waitUntil(t, 2*time.Second, func() bool { return runs.Load() >= 2 })

	if stragglers := task.StopAllLoops(2 * time.Second); len(stragglers) != 0 {
		t.Fatalf("stragglers got %d, want 0", len(stragglers))
	}
	if !l.IsStopped() {
		t.Fatal("loop must be stopped")
	}
}
