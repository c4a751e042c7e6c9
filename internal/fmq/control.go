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
)

// Control region layout constants.
const (
	// Magic bytes identifying an FMQ control block.
	controlMagic = "FMQCTRL\x00"

	// Current control block version.
	controlVersion = uint32(1)

	// Control block size, aligned to two cache lines.
	controlBlockSize = 128
)

// controlBlock is the shared control structure. It lives at offset 0 of the
// control region and is mutated by both processes. Neither side trusts the
// capacity/elemSize fields here beyond cross-checking them against its own
// validated descriptor at attach time.
type controlBlock struct {
	magic    [8]byte  // 0x00: "FMQCTRL\0"
	version  uint32   // 0x08: control block version
	flavor   uint32   // 0x0C: Flavor tag, fixed at creation
	capacity uint64   // 0x10: element count
	elemSize uint64   // 0x18: bytes per element
	writePos uint64   // 0x20: monotonic write position (elements), writer-owned
	readPos  uint64   // 0x28: monotonic read position (elements), reader-owned
	dataSeq  uint32   // 0x30: futex word bumped by the writer after publishing data
	spaceSeq uint32   // 0x34: futex word bumped by the reader after freeing space
	pad      uint64   // 0x38
	reserved [64]byte // 0x40-0x7F: reserved to 128B
}

// controlAt interprets the start of a mapped control region as a controlBlock.
// The region must be at least controlBlockSize bytes; callers validate before
// calling.
func controlAt(mem []byte) *controlBlock {
	return (*controlBlock)(unsafe.Pointer(&mem[0]))
}

// Magic returns the magic bytes. Not atomic; written once at creation before
// the descriptor is handed out.
func (c *controlBlock) Magic() [8]byte {
	return c.magic
}

// SetMagic sets the magic bytes.
func (c *controlBlock) SetMagic(magic [8]byte) {
	c.magic = magic
}

// Version returns the control block version.
func (c *controlBlock) Version() uint32 {
	return atomic.LoadUint32(&c.version)
}

// SetVersion sets the control block version.
func (c *controlBlock) SetVersion(v uint32) {
	atomic.StoreUint32(&c.version, v)
}

// Flavor returns the queue flavor recorded at creation.
func (c *controlBlock) Flavor() uint32 {
	return atomic.LoadUint32(&c.flavor)
}

// SetFlavor records the queue flavor.
func (c *controlBlock) SetFlavor(f uint32) {
	atomic.StoreUint32(&c.flavor, f)
}

// Capacity returns the element capacity recorded at creation.
func (c *controlBlock) Capacity() uint64 {
	return atomic.LoadUint64(&c.capacity)
}

// SetCapacity records the element capacity.
func (c *controlBlock) SetCapacity(n uint64) {
	atomic.StoreUint64(&c.capacity, n)
}

// ElemSize returns the element size recorded at creation.
func (c *controlBlock) ElemSize() uint64 {
	return atomic.LoadUint64(&c.elemSize)
}

// SetElemSize records the element size.
func (c *controlBlock) SetElemSize(n uint64) {
	atomic.StoreUint64(&c.elemSize, n)
}

// WritePos returns the monotonic write position. The load carries acquire
// semantics: a reader observing a position also observes every data byte the
// writer copied before publishing it.
func (c *controlBlock) WritePos() uint64 {
	return atomic.LoadUint64(&c.writePos)
}

// SetWritePos publishes a new write position with release semantics.
func (c *controlBlock) SetWritePos(pos uint64) {
	atomic.StoreUint64(&c.writePos, pos)
}

// ReadPos returns the monotonic read position.
func (c *controlBlock) ReadPos() uint64 {
	return atomic.LoadUint64(&c.readPos)
}

// SetReadPos publishes a new read position with release semantics.
func (c *controlBlock) SetReadPos(pos uint64) {
	atomic.StoreUint64(&c.readPos, pos)
}

// DataSeq returns the data-availability futex word.
func (c *controlBlock) DataSeq() uint32 {
	return atomic.LoadUint32(&c.dataSeq)
}

// BumpDataSeq atomically increments the data-availability futex word.
func (c *controlBlock) BumpDataSeq() uint32 {
	return atomic.AddUint32(&c.dataSeq, 1)
}

// SpaceSeq returns the space-availability futex word.
func (c *controlBlock) SpaceSeq() uint32 {
	return atomic.LoadUint32(&c.spaceSeq)
}

// BumpSpaceSeq atomically increments the space-availability futex word.
func (c *controlBlock) BumpSpaceSeq() uint32 {
	return atomic.AddUint32(&c.spaceSeq, 1)
}

// dataSeqAddr returns the address of the data futex word for wait/wake calls.
func (c *controlBlock) dataSeqAddr() *uint32 {
	return &c.dataSeq
}

// spaceSeqAddr returns the address of the space futex word for wait/wake calls.
func (c *controlBlock) spaceSeqAddr() *uint32 {
	return &c.spaceSeq
}

// initControl zero-initializes a freshly created control block. Only the
// creating side calls this, before the descriptor leaves the process.
func initControl(c *controlBlock, capacity, elemSize uint64, flavor Flavor) {
	var magic [8]byte
	copy(magic[:], controlMagic)
	c.SetMagic(magic)
	c.SetVersion(controlVersion)
	c.SetFlavor(uint32(flavor))
	c.SetCapacity(capacity)
	c.SetElemSize(elemSize)
	c.SetWritePos(0)
	c.SetReadPos(0)
}

// validateControl cross-checks a mapped control block against the locally
// validated descriptor values. Attach fails rather than trusting the shared
// copy; after this check the handle only ever uses its own cached geometry.
func validateControl(c *controlBlock, capacity, elemSize uint64, flavor Flavor) error {
	magic := c.Magic()
	if string(magic[:]) != controlMagic {
		return fmt.Errorf("%w: bad control magic", ErrInvalidDescriptor)
	}
	if v := c.Version(); v != controlVersion {
		return fmt.Errorf("%w: unsupported control version %d", ErrInvalidDescriptor, v)
	}
	if got := c.Capacity(); got != capacity {
		return fmt.Errorf("%w: capacity mismatch: control %d, descriptor %d", ErrInvalidDescriptor, got, capacity)
	}
	if got := c.ElemSize(); got != elemSize {
		return fmt.Errorf("%w: element size mismatch: control %d, descriptor %d", ErrInvalidDescriptor, got, elemSize)
	}
	if got := c.Flavor(); got != uint32(flavor) {
		return fmt.Errorf("%w: flavor mismatch: control %d, descriptor %d", ErrInvalidDescriptor, got, flavor)
	}
	return nil
}
