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
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// Queue is a process-local handle over a shared message queue. It owns the
// local mappings of the control and data regions (unmapped on Close) and a
// cached copy of the queue geometry taken from a validated descriptor; the
// shared copies are never consulted again after attach, so a peer that
// corrupts them can at most break its own view.
//
// Exactly one process should write and one should read a given queue. Write
// and Read are the only operations that touch shared state; they are safe
// against the peer process but a single handle must not be used by multiple
// local writers (or readers) concurrently.
type Queue struct {
	ctrlRegion *Region
	dataRegion *Region

	ctrl *controlBlock
	data []byte // dataRegion.Mem[:capacity*elemSize]

	capacity  uint64 // element count
	elemSize  uint64 // bytes per element
	dataBytes uint64 // capacity * elemSize
	mask      uint64 // capacity-1, valid only when pow2
	pow2      bool
	flavor    Flavor
	creator   bool

	// failed latches once a control-structure invariant violation is
	// observed; every later operation refuses with ErrProtocolViolation.
	failed atomic.Bool
	closed atomic.Bool
}

// regionSeq disambiguates queues created in the same nanosecond.
var regionSeq atomic.Uint64

func newQueueName() string {
	return fmt.Sprintf("%d-%d-%d", os.Getpid(), time.Now().UnixNano(), regionSeq.Add(1))
}

// Create allocates the control and data shared regions for a new queue,
// zero-initializes the control block, and returns a ready-to-use local handle
// for the creating side together with the transferable descriptor for the
// peer. The creator conventionally owns the backing memory and releases it
// with Destroy; allocator failures are reported as ErrResourceExhausted.
func Create(capacity, elemSize uint64, flavor Flavor) (*Queue, Descriptor, error) {
	if capacity == 0 || elemSize == 0 {
		return nil, Descriptor{}, fmt.Errorf("%w: capacity and element size must be positive", ErrInvalidArgument)
	}
	if !flavor.valid() {
		return nil, Descriptor{}, fmt.Errorf("%w: unknown flavor %d", ErrInvalidArgument, flavor)
	}
	dataBytes, ok := mulNoOverflow(capacity, elemSize)
	if !ok {
		return nil, Descriptor{}, fmt.Errorf("%w: capacity*elemSize overflows", ErrInvalidArgument)
	}

	name := newQueueName()
	ctrlRegion, err := createRegion(name+"-ctrl", controlBlockSize)
	if err != nil {
		return nil, Descriptor{}, err
	}
	dataRegion, err := createRegion(name+"-data", dataBytes)
	if err != nil {
		ctrlRegion.Close()
		ctrlRegion.Unlink()
		return nil, Descriptor{}, err
	}

	ctrl := controlAt(ctrlRegion.Mem)
	initControl(ctrl, capacity, elemSize, flavor)

	desc := Descriptor{
		Capacity:   capacity,
		ElemSize:   elemSize,
		Flavor:     flavor,
		CtrlRegion: RegionRef{Name: ctrlRegion.Name, Size: controlBlockSize},
		DataRegion: RegionRef{Name: dataRegion.Name, Size: dataBytes},
	}
	q := newQueue(ctrlRegion, dataRegion, ctrl, capacity, elemSize, flavor, true)
	return q, desc, nil
}

// Attach maps the regions named by a descriptor into the calling process and
// returns a local handle over them. The descriptor is validated first and the
// mapped control block is cross-checked against it; the control block is not
// re-zeroed, since the peer may already be using the queue.
func Attach(desc Descriptor) (*Queue, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	ctrlRegion, err := openRegion(desc.CtrlRegion.Name, desc.CtrlRegion.Size)
	if err != nil {
		return nil, err
	}
	dataRegion, err := openRegion(desc.DataRegion.Name, desc.DataRegion.Size)
	if err != nil {
		ctrlRegion.Close()
		return nil, err
	}
	ctrl := controlAt(ctrlRegion.Mem)
	if err := validateControl(ctrl, desc.Capacity, desc.ElemSize, desc.Flavor); err != nil {
		dataRegion.Close()
		ctrlRegion.Close()
		return nil, err
	}
	return newQueue(ctrlRegion, dataRegion, ctrl, desc.Capacity, desc.ElemSize, desc.Flavor, false), nil
}

func newQueue(ctrlRegion, dataRegion *Region, ctrl *controlBlock, capacity, elemSize uint64, flavor Flavor, creator bool) *Queue {
	dataBytes := capacity * elemSize
	return &Queue{
		ctrlRegion: ctrlRegion,
		dataRegion: dataRegion,
		ctrl:       ctrl,
		data:       dataRegion.Mem[:dataBytes],
		capacity:   capacity,
		elemSize:   elemSize,
		dataBytes:  dataBytes,
		mask:       capacity - 1,
		pow2:       capacity&(capacity-1) == 0,
		flavor:     flavor,
		creator:    creator,
	}
}

// Capacity returns the queue's element capacity.
func (q *Queue) Capacity() uint64 { return q.capacity }

// ElemSize returns the size of one element in bytes.
func (q *Queue) ElemSize() uint64 { return q.elemSize }

// Flavor returns the queue's synchronization flavor.
func (q *Queue) Flavor() Flavor { return q.flavor }

// Failed reports whether the handle has latched a protocol violation.
func (q *Queue) Failed() bool { return q.failed.Load() }

// posOffset maps a monotonic element position to an element index in the data
// region. Counter wraparound of the 64-bit position itself is a documented
// non-goal: at one element per nanosecond it takes centuries to reach.
func (q *Queue) posOffset(pos uint64) uint64 {
	if q.pow2 {
		return pos & q.mask
	}
	return pos % q.capacity
}

func (q *Queue) checkOperable() error {
	if q.closed.Load() {
		return ErrClosed
	}
	if q.failed.Load() {
		return ErrProtocolViolation
	}
	return nil
}

func (q *Queue) checkCount(buf []byte, count uint64) (uint64, error) {
	if count > q.capacity {
		return 0, fmt.Errorf("%w: count %d exceeds capacity %d", ErrInvalidArgument, count, q.capacity)
	}
	nbytes := count * q.elemSize
	if uint64(len(buf)) < nbytes {
		return 0, fmt.Errorf("%w: buffer holds %d bytes, need %d", ErrInvalidArgument, len(buf), nbytes)
	}
	return nbytes, nil
}

// Write attempts to place count elements from buf into the queue. It never
// blocks and never writes partially: if the synchronized queue lacks room for
// all count elements it returns ErrQueueFull immediately and callers retry or
// back off. On the unsynchronized flavor a write that would overflow proceeds
// anyway, overwriting the oldest unread elements.
//
// The element bytes are fully copied into the data region before the new
// write position is published, so a reader that observes the position also
// observes the data.
func (q *Queue) Write(buf []byte, count uint64) error {
	if err := q.checkOperable(); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	nbytes, err := q.checkCount(buf, count)
	if err != nil {
		return err
	}

	w := q.ctrl.WritePos()
	r := q.ctrl.ReadPos()
	used := w - r
	if q.flavor == Synchronized {
		if used > q.capacity {
			q.failed.Store(true)
			return fmt.Errorf("%w: writePos-readPos=%d exceeds capacity %d", ErrProtocolViolation, used, q.capacity)
		}
		if q.capacity-used < count {
			return ErrQueueFull
		}
	}

	q.copyIn(w, buf[:nbytes])
	q.ctrl.SetWritePos(w + count)

	if q.flavor == Synchronized {
		q.ctrl.BumpDataSeq()
		futexWake(q.ctrl.dataSeqAddr(), 1)
	}
	return nil
}

// Read attempts to copy count elements out of the queue into buf. It never
// blocks and never reads partially: if fewer than count elements are
// available it returns ErrQueueEmpty immediately.
//
// On the unsynchronized flavor a reader that has been lapped by the writer
// resynchronizes to the oldest still-intact position and loses the
// overwritten elements; on the synchronized flavor the same observation is a
// protocol violation that permanently fails the handle.
func (q *Queue) Read(buf []byte, count uint64) error {
	if err := q.checkOperable(); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	nbytes, err := q.checkCount(buf, count)
	if err != nil {
		return err
	}

	w := q.ctrl.WritePos()
	r := q.ctrl.ReadPos()
	avail := w - r
	if avail > q.capacity {
		if q.flavor != Unsynchronized {
			q.failed.Store(true)
			return fmt.Errorf("%w: writePos-readPos=%d exceeds capacity %d", ErrProtocolViolation, avail, q.capacity)
		}
		// Writer lapped this reader. Skip the lost elements; what remains may
		// still be overwritten mid-read, which this flavor tolerates.
		r = w - q.capacity
		q.ctrl.SetReadPos(r)
		avail = q.capacity
	}
	if avail < count {
		return ErrQueueEmpty
	}

	q.copyOut(r, buf[:nbytes])
	q.ctrl.SetReadPos(r + count)

	if q.flavor == Synchronized {
		q.ctrl.BumpSpaceSeq()
		futexWake(q.ctrl.spaceSeqAddr(), 1)
	}
	return nil
}

// copyIn copies src into the data region starting at element position pos,
// splitting at the wraparound boundary when the range crosses the end.
func (q *Queue) copyIn(pos uint64, src []byte) {
	start := q.posOffset(pos) * q.elemSize
	end := start + uint64(len(src))
	if end <= q.dataBytes {
		copy(q.data[start:end], src)
		return
	}
	first := q.dataBytes - start
	copy(q.data[start:], src[:first])
	copy(q.data, src[first:])
}

// copyOut copies out of the data region starting at element position pos,
// splitting at the wraparound boundary when the range crosses the end.
func (q *Queue) copyOut(pos uint64, dst []byte) {
	start := q.posOffset(pos) * q.elemSize
	end := start + uint64(len(dst))
	if end <= q.dataBytes {
		copy(dst, q.data[start:end])
		return
	}
	first := q.dataBytes - start
	copy(dst[:first], q.data[start:])
	copy(dst[first:], q.data[:uint64(len(dst))-first])
}

// AvailableToWrite returns how many elements could currently be written. The
// result is advisory: the peer may change it between the query and a
// subsequent Write, so callers must still handle ErrQueueFull.
func (q *Queue) AvailableToWrite() uint64 {
	if q.checkOperable() != nil {
		return 0
	}
	used := q.ctrl.WritePos() - q.ctrl.ReadPos()
	if used > q.capacity {
		if q.flavor == Synchronized {
			q.failed.Store(true)
		}
		return 0
	}
	return q.capacity - used
}

// AvailableToRead returns how many elements could currently be read. Advisory
// in the same sense as AvailableToWrite.
func (q *Queue) AvailableToRead() uint64 {
	if q.checkOperable() != nil {
		return 0
	}
	avail := q.ctrl.WritePos() - q.ctrl.ReadPos()
	if avail > q.capacity {
		if q.flavor == Synchronized {
			q.failed.Store(true)
			return 0
		}
		return q.capacity
	}
	return avail
}

// WriteBlocking writes count elements, waiting on the space futex word when
// the queue is full. The wait is bounded by timeout; a timeout <= 0 degrades
// to a single non-blocking attempt. Indefinite waits are deliberately not
// offered: a crashed or hung peer must not wedge this side forever. Only the
// synchronized flavor supports blocking.
func (q *Queue) WriteBlocking(buf []byte, count uint64, timeout time.Duration) error {
	if q.flavor != Synchronized {
		return fmt.Errorf("%w: blocking write requires the synchronized flavor", ErrInvalidArgument)
	}
	deadline := time.Now().Add(timeout)
	for {
		// Snapshot the sequence before checking availability; a reader that
		// frees space afterwards bumps the word and the wait falls through.
		seq := q.ctrl.SpaceSeq()
		err := q.Write(buf, count)
		if !errors.Is(err, ErrQueueFull) {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrWaitTimeout
		}
		if err := futexWait(q.ctrl.spaceSeqAddr(), seq, remaining.Nanoseconds()); err != nil && !errors.Is(err, ErrWaitTimeout) {
			return err
		}
	}
}

// ReadBlocking reads count elements, waiting on the data futex word when the
// queue is empty. Timeout semantics match WriteBlocking.
func (q *Queue) ReadBlocking(buf []byte, count uint64, timeout time.Duration) error {
	if q.flavor != Synchronized {
		return fmt.Errorf("%w: blocking read requires the synchronized flavor", ErrInvalidArgument)
	}
	deadline := time.Now().Add(timeout)
	for {
		seq := q.ctrl.DataSeq()
		err := q.Read(buf, count)
		if !errors.Is(err, ErrQueueEmpty) {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrWaitTimeout
		}
		if err := futexWait(q.ctrl.dataSeqAddr(), seq, remaining.Nanoseconds()); err != nil && !errors.Is(err, ErrWaitTimeout) {
			return err
		}
	}
}

// Close releases the local mappings. The shared memory stays alive for the
// peer; only the creator's Destroy removes the backing regions. Close is
// idempotent.
func (q *Queue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	var firstErr error
	if err := q.dataRegion.Close(); err != nil {
		firstErr = err
	}
	if err := q.ctrlRegion.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Destroy releases the local mappings and, on the creating side, the backing
// shared regions themselves. The peer's existing mappings survive until that
// side closes its own handle; the kernel reclaims the memory when the last
// mapping is gone. Attaching by name is no longer possible afterwards.
func (q *Queue) Destroy() error {
	var firstErr error
	if q.creator {
		if err := q.ctrlRegion.Unlink(); err != nil {
			firstErr = err
		}
		if err := q.dataRegion.Unlink(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := q.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
