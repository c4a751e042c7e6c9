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
	"testing"
	"unsafe"
)

func TestControlBlockSize(t *testing.T) {
	if got := unsafe.Sizeof(controlBlock{}); got != controlBlockSize {
		t.Fatalf("controlBlock is %d bytes, layout requires %d", got, controlBlockSize)
	}
}

func TestControlInitAndValidate(t *testing.T) {
	mem := make([]byte, controlBlockSize)
	c := controlAt(mem)
	initControl(c, 1024, 8, Synchronized)

	if err := validateControl(c, 1024, 8, Synchronized); err != nil {
		t.Fatalf("validateControl rejected a fresh control block: %v", err)
	}
	if c.WritePos() != 0 || c.ReadPos() != 0 {
		t.Fatalf("positions not zeroed: writePos=%d readPos=%d", c.WritePos(), c.ReadPos())
	}

	if err := validateControl(c, 512, 8, Synchronized); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("capacity mismatch: got %v, want ErrInvalidDescriptor", err)
	}
	if err := validateControl(c, 1024, 4, Synchronized); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("element size mismatch: got %v, want ErrInvalidDescriptor", err)
	}
	if err := validateControl(c, 1024, 8, Unsynchronized); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("flavor mismatch: got %v, want ErrInvalidDescriptor", err)
	}

	c.magic[0] = 'X'
	if err := validateControl(c, 1024, 8, Synchronized); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("bad magic: got %v, want ErrInvalidDescriptor", err)
	}
}

func TestControlSequenceWords(t *testing.T) {
	mem := make([]byte, controlBlockSize)
	c := controlAt(mem)
	initControl(c, 16, 1, Synchronized)

	if c.DataSeq() != 0 || c.SpaceSeq() != 0 {
		t.Fatal("sequence words not zeroed")
	}
	c.BumpDataSeq()
	c.BumpSpaceSeq()
	c.BumpSpaceSeq()
	if c.DataSeq() != 1 || c.SpaceSeq() != 2 {
		t.Fatalf("sequence words: data=%d space=%d, want 1 and 2", c.DataSeq(), c.SpaceSeq())
	}
}
