// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"errors"
	"fmt"
	"os"

	"code.hybscloud.com/iox"
)

// ErrTimeout reports that a bounded wait elapsed before the awaited
// value arrived. [WithTimeout] attempts fail with it.
var ErrTimeout = errors.New("task: timeout")

// ErrClosed reports a submission to a pool after [Pool.Close].
// Delivered to the pool's error handler; the rejected task is dropped.
var ErrClosed = errors.New("task: pool closed")

// ErrSaturated reports that a bounded queue rejected a push because
// its ring is full. Wraps [code.hybscloud.com/iox.ErrWouldBlock]:
// retry once capacity frees.
var ErrSaturated = fmt.Errorf("task: queue saturated: %w", iox.ErrWouldBlock)

// PanicError carries a recovered panic value across a goroutine
// boundary. Origin names the worker or component that recovered it.
type PanicError struct {
	Origin string
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task: panic on %s: %v", e.Origin, e.Value)
}

// defaultErrorHandler is the fallback destination for task errors
// when a pool has no handler configured.
func defaultErrorHandler(err error) {
	fmt.Fprintln(os.Stderr, err)
}
