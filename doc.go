// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package task provides a small concurrency runtime: an elastic
// worker pool, single-assignment promises, stoppable loops, and
// width-gated admission queues.
//
// Tasks are plain functions submitted to a [Pool]; everything above
// the pool composes out of [Promise], [Completion], and [Attempt].
//
// # Architecture
//
//   - Pool: Fixed core workers plus temporary ones up to a maximum, with an unbounded FIFO backlog. Offers claim idle workers by CAS on a state word; temporaries retire after an idle timeout.
//   - Futures: [Promise] (single assignment), [Completion] (no payload), and [Attempt] (fallible, settling to [code.hybscloud.com/kont.Either]). Callbacks run on the owning pool, never on the fulfilling goroutine.
//   - Loops: [Loop] runs an operation under a sleep [Strategy] until stopped; [Scheduler] multiplexes wall-clock deadlines onto one loop. [Shutdown] stops registered loops together, holding them weakly.
//   - Admission: [Queue] gates completion-producing requests to a width, [ActionQueue] drains plain operations with recruited workers, and [BoundedActionQueue] swaps the unbounded FIFO for a lock-free MPMC ring from [code.hybscloud.com/lfq], shedding on overflow with [ErrSaturated].
//
// # Error Handling
//
//   - Panics in tasks become [PanicError] values delivered to the pool's error handler; the worker survives.
//   - Bounded waits return ok=false or [ErrTimeout] rather than cancelling the awaited work.
//   - Backpressure follows [code.hybscloud.com/iox.ErrWouldBlock] semantics: [ErrSaturated] wraps it.
//
// # Example
//
//	pool := task.NewPool(4, 16)
//	sum := task.Async(pool, func() int { return 2 + 2 })
//	doubled := task.Map(sum, func(n int) int { return n * 2 })
//	loop := task.RepeatForever(poll, time.Second)
//	_ = doubled.Wait()
//	loop.Stop().Wait()
//	pool.Close().Wait()
package task
