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

import "errors"

var (
	// ErrInvalidArgument indicates an oversized count, a short caller buffer,
	// a non-positive capacity/element size, or a blocking call against the
	// unsynchronized flavor.
	ErrInvalidArgument = errors.New("fmq: invalid argument")

	// ErrInvalidDescriptor indicates a malformed or inconsistent descriptor
	// at attach time.
	ErrInvalidDescriptor = errors.New("fmq: invalid descriptor")

	// ErrResourceExhausted indicates the shared-region allocator could not
	// satisfy the request.
	ErrResourceExhausted = errors.New("fmq: resource exhausted")

	// ErrQueueFull is the ordinary, expected outcome of a non-blocking write
	// against a queue without room for the requested count. Callers retry or
	// back off.
	ErrQueueFull = errors.New("fmq: queue full")

	// ErrQueueEmpty is the ordinary, expected outcome of a non-blocking read
	// against a queue without the requested count available.
	ErrQueueEmpty = errors.New("fmq: queue empty")

	// ErrProtocolViolation indicates the shared control structure broke its
	// invariant (readPos <= writePos <= readPos+capacity). The local handle is
	// permanently failed once this is observed; continuing would read garbage.
	ErrProtocolViolation = errors.New("fmq: control structure invariant violated")

	// ErrWaitTimeout is returned by the blocking entry points when the bounded
	// wait expires before space or data becomes available.
	ErrWaitTimeout = errors.New("fmq: wait timed out")

	// ErrClosed indicates the local handle has been closed.
	ErrClosed = errors.New("fmq: queue closed")

	// ErrUnsupported indicates the platform lacks shared-memory or futex
	// support; only linux/amd64 and linux/arm64 are implemented.
	ErrUnsupported = errors.New("fmq: not supported on this platform")
)
