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
	"encoding/binary"
	"fmt"
)

// Flavor is a queue's synchronization policy, fixed at creation time.
type Flavor uint32

const (
	// Synchronized assumes exactly one writer and one reader side. Writes fail
	// rather than overwrite, and bounded futex waits are available. Data is
	// never lost or read twice.
	Synchronized Flavor = 1

	// Unsynchronized never blocks and applies no back-pressure: a write that
	// would overflow proceeds anyway, overwriting not-yet-read elements.
	// Appropriate for loss-tolerant telemetry, not correctness-critical
	// payloads.
	Unsynchronized Flavor = 2
)

// String returns the flavor name.
func (f Flavor) String() string {
	switch f {
	case Synchronized:
		return "synchronized"
	case Unsynchronized:
		return "unsynchronized"
	default:
		return fmt.Sprintf("flavor(%d)", uint32(f))
	}
}

func (f Flavor) valid() bool {
	return f == Synchronized || f == Unsynchronized
}

// RegionRef names a shared-memory region. Regions are path-addressable
// (backed by a named file under /dev/shm), so a RegionRef is plain data and
// any bytes channel can carry it to the peer process.
type RegionRef struct {
	Name string // region name, unique per queue instance
	Size uint64 // region size in bytes
}

// Descriptor is an inert, serializable description of a queue instance:
// enough for a second process to attach to it. It is immutable once created
// and does not itself own the shared memory; the creator side owns the
// regions and releases them via Queue.Destroy.
type Descriptor struct {
	Capacity   uint64    // element count
	ElemSize   uint64    // bytes per element
	Flavor     Flavor    // synchronization policy
	CtrlRegion RegionRef // holds the control block
	DataRegion RegionRef // holds Capacity*ElemSize bytes of element data
}

// Descriptor wire format (little-endian):
//
//	[8]byte  magic "FMQDESC\0"
//	uint32   version
//	uint32   flavor
//	uint64   capacity
//	uint64   elemSize
//	uint16   ctrlNameLen, ctrlName bytes, uint64 ctrlSize
//	uint16   dataNameLen, dataName bytes, uint64 dataSize
const (
	descriptorMagic   = "FMQDESC\x00"
	descriptorVersion = uint32(1)

	// Fixed-size portion of the encoding, excluding the two names.
	descriptorFixedSize = 8 + 4 + 4 + 8 + 8 + 2 + 8 + 2 + 8

	// maxRegionNameLen bounds the region names a decoder will accept.
	maxRegionNameLen = 255
)

// Validate checks the descriptor for internal consistency. It is called by
// Attach before any region is mapped; a descriptor that fails here must never
// reach the allocator.
func (d Descriptor) Validate() error {
	if d.Capacity == 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidDescriptor)
	}
	if d.ElemSize == 0 {
		return fmt.Errorf("%w: element size must be positive", ErrInvalidDescriptor)
	}
	if !d.Flavor.valid() {
		return fmt.Errorf("%w: unknown flavor %d", ErrInvalidDescriptor, d.Flavor)
	}
	if !validRegionName(d.CtrlRegion.Name) {
		return fmt.Errorf("%w: unsafe control region name %q", ErrInvalidDescriptor, d.CtrlRegion.Name)
	}
	if !validRegionName(d.DataRegion.Name) {
		return fmt.Errorf("%w: unsafe data region name %q", ErrInvalidDescriptor, d.DataRegion.Name)
	}
	if d.CtrlRegion.Size < controlBlockSize {
		return fmt.Errorf("%w: control region %d bytes, need at least %d",
			ErrInvalidDescriptor, d.CtrlRegion.Size, controlBlockSize)
	}
	dataBytes, ok := mulNoOverflow(d.Capacity, d.ElemSize)
	if !ok {
		return fmt.Errorf("%w: capacity*elemSize overflows", ErrInvalidDescriptor)
	}
	if d.DataRegion.Size < dataBytes {
		return fmt.Errorf("%w: data region %d bytes, need at least %d",
			ErrInvalidDescriptor, d.DataRegion.Size, dataBytes)
	}
	return nil
}

// validRegionName restricts region names to the charset newQueueName produces.
// Names become path components under the shared-memory directory; a separator
// smuggled in by a malicious peer's descriptor would let Attach map a file
// outside it.
func validRegionName(name string) bool {
	if name == "" || len(name) > maxRegionNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

// mulNoOverflow multiplies a*b, reporting whether the product fits in uint64.
func mulNoOverflow(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/a != b {
		return 0, false
	}
	return p, true
}

// EncodeDescriptor serializes a descriptor for transfer to the peer process.
func EncodeDescriptor(d Descriptor) []byte {
	size := descriptorFixedSize + len(d.CtrlRegion.Name) + len(d.DataRegion.Name)
	out := make([]byte, size)
	i := copy(out, descriptorMagic)
	binary.LittleEndian.PutUint32(out[i:i+4], descriptorVersion)
	i += 4
	binary.LittleEndian.PutUint32(out[i:i+4], uint32(d.Flavor))
	i += 4
	binary.LittleEndian.PutUint64(out[i:i+8], d.Capacity)
	i += 8
	binary.LittleEndian.PutUint64(out[i:i+8], d.ElemSize)
	i += 8
	binary.LittleEndian.PutUint16(out[i:i+2], uint16(len(d.CtrlRegion.Name)))
	i += 2
	i += copy(out[i:], d.CtrlRegion.Name)
	binary.LittleEndian.PutUint64(out[i:i+8], d.CtrlRegion.Size)
	i += 8
	binary.LittleEndian.PutUint16(out[i:i+2], uint16(len(d.DataRegion.Name)))
	i += 2
	i += copy(out[i:], d.DataRegion.Name)
	binary.LittleEndian.PutUint64(out[i:i+8], d.DataRegion.Size)
	return out
}

// DecodeDescriptor parses an encoded descriptor. The result is additionally
// passed through Validate so callers get a descriptor that is safe to hand to
// Attach.
func DecodeDescriptor(b []byte) (Descriptor, error) {
	var d Descriptor
	if len(b) < descriptorFixedSize {
		return d, fmt.Errorf("%w: short encoding (%d bytes)", ErrInvalidDescriptor, len(b))
	}
	if string(b[:8]) != descriptorMagic {
		return d, fmt.Errorf("%w: bad magic", ErrInvalidDescriptor)
	}
	i := 8
	if v := binary.LittleEndian.Uint32(b[i : i+4]); v != descriptorVersion {
		return d, fmt.Errorf("%w: unsupported version %d", ErrInvalidDescriptor, v)
	}
	i += 4
	d.Flavor = Flavor(binary.LittleEndian.Uint32(b[i : i+4]))
	i += 4
	d.Capacity = binary.LittleEndian.Uint64(b[i : i+8])
	i += 8
	d.ElemSize = binary.LittleEndian.Uint64(b[i : i+8])
	i += 8

	var err error
	d.CtrlRegion, i, err = decodeRegionRef(b, i)
	if err != nil {
		return Descriptor{}, err
	}
	d.DataRegion, _, err = decodeRegionRef(b, i)
	if err != nil {
		return Descriptor{}, err
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func decodeRegionRef(b []byte, i int) (RegionRef, int, error) {
	if len(b[i:]) < 2 {
		return RegionRef{}, 0, fmt.Errorf("%w: region name length missing", ErrInvalidDescriptor)
	}
	nameLen := int(binary.LittleEndian.Uint16(b[i : i+2]))
	i += 2
	if nameLen > maxRegionNameLen {
		return RegionRef{}, 0, fmt.Errorf("%w: region name too long", ErrInvalidDescriptor)
	}
	if len(b[i:]) < nameLen+8 {
		return RegionRef{}, 0, fmt.Errorf("%w: region bytes missing", ErrInvalidDescriptor)
	}
	name := string(b[i : i+nameLen])
	i += nameLen
	size := binary.LittleEndian.Uint64(b[i : i+8])
	i += 8
	return RegionRef{Name: name, Size: size}, i, nil
}
