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
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Region is a process-local mapping over a named shared-memory region. Two
// Region values in different processes may reference the same physical
// memory; each owns only its own mapping. The creating side additionally owns
// the name and removes it via Unlink.
type Region struct {
	Name string // region name from the descriptor
	Size uint64 // mapped size in bytes
	Mem  []byte // the mapping

	file *os.File
	path string
}

// regionPath resolves a region name to its backing file path. /dev/shm is
// preferred; both sides on the same host resolve identically.
func regionPath(name string) string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", "fmq_"+name)
	}
	return filepath.Join(os.TempDir(), "fmq_"+name)
}

// createRegion allocates a new shared region of the given size. The name must
// not already be in use; creation is exclusive so two creators cannot race
// onto the same backing file.
func createRegion(name string, size uint64) (*Region, error) {
	path := regionPath(name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: create region %s: %v", ErrResourceExhausted, path, err)
	}
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: resize region %s to %d: %v", ErrResourceExhausted, path, size, err)
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: mmap region %s: %v", ErrResourceExhausted, path, err)
	}
	return &Region{Name: name, Size: size, Mem: mem, file: file, path: path}, nil
}

// openRegion maps an existing shared region described by a validated
// descriptor. The backing file must be at least the descriptor's size; the
// mapping never extends past what the local descriptor copy specifies.
func openRegion(name string, size uint64) (*Region, error) {
	path := regionPath(name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open region %s: %v", ErrInvalidDescriptor, path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: stat region %s: %v", ErrInvalidDescriptor, path, err)
	}
	if uint64(info.Size()) < size {
		file.Close()
		return nil, fmt.Errorf("%w: region %s is %d bytes, descriptor says %d",
			ErrInvalidDescriptor, path, info.Size(), size)
	}
	mem, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: mmap region %s: %v", ErrInvalidDescriptor, path, err)
	}
	return &Region{Name: name, Size: size, Mem: mem, file: file, path: path}, nil
}

// Close unmaps the local view and closes the file. The backing memory stays
// alive for the peer; Close never removes the name.
func (r *Region) Close() error {
	var firstErr error
	if r.Mem != nil {
		if err := unix.Munmap(r.Mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("munmap region %s: %w", r.Name, err)
		}
		r.Mem = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.file = nil
	}
	return firstErr
}

// Unlink removes the region name. Only the creator calls this; the kernel
// reclaims the memory once every mapping is gone.
func (r *Region) Unlink() error {
	if r.path == "" {
		return nil
	}
	err := os.Remove(r.path)
	r.path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
