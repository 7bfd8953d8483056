// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task_test

import (
	"testing"
	"time"

	"code.hybscloud.com/iox"
)

// waitUntil polls cond with adaptive backoff until it holds, failing
// the test after the deadline. Used where the asserted state is
// reached asynchronously on a pool worker.
func waitUntil(tb testing.TB, deadline time.Duration, cond func() bool) {
	tb.Helper()
	var bo iox.Backoff
	limit := time.Now().Add(deadline)
	for !cond() {
		if time.Now().After(limit) {
			tb.Fatalf("condition not reached within %v", deadline)
		}
		bo.Wait()
	}
}
