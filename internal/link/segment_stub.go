//go:build !unix

/*
 * Copyright 2025 The Buffy Authors
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

package link

import (
	"errors"
	"os"
)

// File-backed segments need mmap; on unsupported platforms the pair still
// works over any caller-supplied region (New/Init/Attach).
var errSegmentsUnsupported = errors.New("link: file-backed segments are not supported on this platform")

// Segment is a mapped file holding a pair.
type Segment struct {
	File   *os.File
	Mem    []byte
	Pair   *Pair
	Path   string
	Offset int
}

// CreateSegment is unsupported on this platform.
func CreateSegment(name string, txLenPow2, rxLenPow2 uint8) (*Segment, error) {
	return nil, errSegmentsUnsupported
}

// OpenSegment is unsupported on this platform.
func OpenSegment(name string) (*Segment, error) {
	return nil, errSegmentsUnsupported
}

// OpenImage is unsupported on this platform.
func OpenImage(path string) (*Segment, int, error) {
	return nil, 0, errSegmentsUnsupported
}

// OpenImageAt is unsupported on this platform.
func OpenImageAt(path string, offset int) (*Segment, error) {
	return nil, errSegmentsUnsupported
}

// Close is a no-op on this platform.
func (s *Segment) Close() error { return nil }

// RemoveSegment is unsupported on this platform.
func RemoveSegment(name string) error { return errSegmentsUnsupported }
