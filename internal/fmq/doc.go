/*
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
 */

// Package fmq implements a fast message queue: a fixed-capacity ring buffer of
// fixed-size elements living in memory shared between two processes.
//
// One process creates a queue and obtains a serializable Descriptor; the
// descriptor travels to the peer through any out-of-band channel; each side
// attaches its own Queue handle over the same physical memory. After that,
// Write on one side and Read on the other move data directly through shared
// memory with no kernel round-trip on the fast path.
//
// Full and empty states are disambiguated by tracking read and write positions
// as monotonically increasing 64-bit counters rather than wrapped indices; the
// wrap is computed modulo capacity only when addressing the data region. A
// queue is created with one of two flavors: Synchronized (single writer,
// single reader, futex-backed bounded waits, no data loss) or Unsynchronized
// (writes never fail; a full queue is overwritten and the reader detects the
// gap).
package fmq
