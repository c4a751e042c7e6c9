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

package bench

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Control-channel frame layout (12 bytes, little-endian):
//
//	uint32 length   // payload length in bytes (excludes this header)
//	uint8  op       // OpCode
//	uint8  flags    // flagReply / flagError
//	uint16 reserved // set to zero
//	uint32 seq      // request sequence; replies echo it
//
// The control channel only carries the queue descriptors and small benchmark
// commands; bulk data never travels here.
const frameHeaderSize = 12

// maxFramePayload bounds what a reader will accept; the largest legitimate
// payload is a timestamp array for a benchmark run.
const maxFramePayload = 16 << 20

// OpCode identifies a benchmark control operation.
type OpCode uint8

const (
	// OpConfigureInbox asks the service to create the queue the client will
	// read from (the service's outbox). The reply payload is the encoded
	// descriptor.
	OpConfigureInbox OpCode = 0x01

	// OpConfigureOutbox asks the service to create the queue the client will
	// write to (the service's inbox). The reply payload is the encoded
	// descriptor.
	OpConfigureOutbox OpCode = 0x02

	// OpRequestWrite asks the service to write count pattern bytes into its
	// outbox. Request payload: uint32 count. Reply payload: uint32 written
	// (count on success, 0 if the queue was full).
	OpRequestWrite OpCode = 0x03

	// OpRequestRead asks the service to read count bytes from its inbox.
	// Request payload: uint32 count. Reply payload: uint32 read.
	OpRequestRead OpCode = 0x04

	// OpStartPingPong starts the echo worker: numIter packets read from the
	// inbox and written back to the outbox. Request payload: uint32 numIter.
	// Empty reply acknowledges the start, not completion.
	OpStartPingPong OpCode = 0x05

	// OpStartWriteTest starts the timed writer: numIter packets written to
	// the outbox, each send timestamped. Request payload: uint32 numIter.
	OpStartWriteTest OpCode = 0x06

	// OpSendTimeData delivers the client's per-packet receive timestamps so
	// the service can compute the mean write-to-read delay. Request payload:
	// uint32 count followed by count int64 nanosecond stamps. Reply payload:
	// int64 mean delay in nanoseconds.
	OpSendTimeData OpCode = 0x07
)

const (
	flagReply = uint8(0x01)
	flagError = uint8(0x02)
)

type frameHeader struct {
	Length uint32
	Op     OpCode
	Flags  uint8
	Seq    uint32
}

func writeFrame(w io.Writer, op OpCode, flags uint8, seq uint32, payload []byte) error {
	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	hdr[4] = byte(op)
	hdr[5] = flags
	binary.LittleEndian.PutUint16(hdr[6:8], 0)
	binary.LittleEndian.PutUint32(hdr[8:12], seq)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func readFrame(r io.Reader) (frameHeader, []byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return frameHeader{}, nil, err
	}
	fh := frameHeader{
		Length: binary.LittleEndian.Uint32(hdr[0:4]),
		Op:     OpCode(hdr[4]),
		Flags:  hdr[5],
		Seq:    binary.LittleEndian.Uint32(hdr[8:12]),
	}
	if fh.Length > maxFramePayload {
		return frameHeader{}, nil, fmt.Errorf("bench: frame payload %d exceeds limit", fh.Length)
	}
	var payload []byte
	if fh.Length > 0 {
		payload = make([]byte, fh.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return frameHeader{}, nil, err
		}
	}
	return fh, payload, nil
}

func encodeU32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func decodeU32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("bench: expected 4-byte payload, got %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

func encodeI64(v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

func decodeI64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("bench: expected 8-byte payload, got %d", len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func encodeTimeData(stamps []int64) []byte {
	out := make([]byte, 4+8*len(stamps))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(stamps)))
	for i, s := range stamps {
		binary.LittleEndian.PutUint64(out[4+8*i:], uint64(s))
	}
	return out
}

func decodeTimeData(b []byte) ([]int64, error) {
	if len(b) < 4 {
		return nil, errors.New("bench: time data payload too short")
	}
	n := int(binary.LittleEndian.Uint32(b[0:4]))
	if len(b) != 4+8*n {
		return nil, fmt.Errorf("bench: time data payload %d bytes, header says %d stamps", len(b), n)
	}
	stamps := make([]int64, n)
	for i := range stamps {
		stamps[i] = int64(binary.LittleEndian.Uint64(b[4+8*i:]))
	}
	return stamps, nil
}
