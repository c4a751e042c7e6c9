//go:build linux && (amd64 || arm64)

/*
 *
 * Copyright 2025 fmq-go authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package fmq

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The futex words live in the shared control region and are waited on from
// two different processes, so the process-local PRIVATE variants of the ops
// must not be used here.
const (
	futexWaitOp = 0 // FUTEX_WAIT
	futexWakeOp = 1 // FUTEX_WAKE
)

// futexWait waits for the value at addr to change from val, or until
// timeoutNs elapses (timeoutNs <= 0 waits a minimal bounded interval rather
// than forever; a crashed peer must not wedge this side indefinitely).
//
// Callers must re-check their logical condition after this returns: wakeups
// can be spurious, and EAGAIN/EINTR are reported as success.
func futexWait(addr *uint32, val uint32, timeoutNs int64) error {
	// Re-check the value before entering the syscall. This closes the
	// lost-wake window between the caller's sequence snapshot and futex entry.
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	if timeoutNs <= 0 {
		timeoutNs = 1e6 // 1ms bounded poll when no deadline was supplied
	}
	ts := unix.NsecToTimespec(timeoutNs)

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitOp),
		uintptr(val),
		uintptr(unsafe.Pointer(&ts)),
		0,
		0,
	)

	switch errno {
	case 0:
		return nil
	case unix.EAGAIN, unix.EINTR:
		// Value already changed, or interrupted by a signal: the caller's
		// condition re-check handles both.
		return nil
	case unix.ETIMEDOUT:
		return ErrWaitTimeout
	default:
		return fmt.Errorf("fmq: futex wait: %w", errno)
	}
}

// futexWake wakes up to n waiters on addr and returns how many were woken.
func futexWake(addr *uint32, n int) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakeOp),
		uintptr(n),
		0,
		0,
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("fmq: futex wake: %w", errno)
	}
	return int(r1), nil
}
