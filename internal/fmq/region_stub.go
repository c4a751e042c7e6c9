//go:build !linux || !(amd64 || arm64)

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

// Region is a process-local mapping over a named shared-memory region.
// Shared regions are not supported on this platform.
type Region struct {
	Name string
	Size uint64
	Mem  []byte
}

func createRegion(name string, size uint64) (*Region, error) {
	return nil, ErrUnsupported
}

func openRegion(name string, size uint64) (*Region, error) {
	return nil, ErrUnsupported
}

// Close unmaps the local view.
func (r *Region) Close() error { return nil }

// Unlink removes the region name.
func (r *Region) Unlink() error { return nil }
