//go:build unix

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
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CreateSegment creates a file-backed shared memory segment holding a
// freshly initialized pair and maps it. The "device" and "host" sides can
// then live in separate processes mapping the same file.
func CreateSegment(name string, txLenPow2, rxLenPow2 uint8) (*Segment, error) {
	total, _, _, err := Layout(txLenPow2, rxLenPow2)
	if err != nil {
		return nil, err
	}
	path := segmentPath(name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(total)); err != nil {
		cleanup()
		return nil, fmt.Errorf("resize segment: %w", err)
	}
	mem, err := mapFile(file, int(total))
	if err != nil {
		cleanup()
		return nil, err
	}

	pair, err := Init(mem, txLenPow2, rxLenPow2)
	if err != nil {
		unix.Munmap(mem)
		cleanup()
		return nil, err
	}
	return &Segment{File: file, Mem: mem, Pair: pair, Path: path}, nil
}

// OpenSegment maps an existing segment file and attaches to the pair at its
// start.
func OpenSegment(name string) (*Segment, error) {
	return openPairFile(segmentPath(name), 0)
}

// OpenImage maps an arbitrary file (for example a dumped or emulated RAM
// image) and scans it for a pair header. Returns the segment and the header
// offset within the file.
func OpenImage(path string) (*Segment, int, error) {
	seg, err := openPairFile(path, -1)
	if err != nil {
		return nil, 0, err
	}
	return seg, seg.Offset, nil
}

// OpenImageAt maps a file and attaches to a pair at a known offset,
// skipping the scan. Used with a cached offset from a previous OpenImage.
func OpenImageAt(path string, offset int) (*Segment, error) {
	if offset < 0 || offset%4 != 0 {
		return nil, fmt.Errorf("bad pair offset %d", offset)
	}
	return openPairFile(path, offset)
}

// openPairFile maps path and attaches at the given offset; offset -1 means
// scan for the header.
func openPairFile(path string, offset int) (*Segment, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat segment: %w", err)
	}
	size := int(info.Size())
	if size < HeaderSize {
		file.Close()
		return nil, fmt.Errorf("segment file too small: %d bytes", size)
	}
	mem, err := mapFile(file, size)
	if err != nil {
		file.Close()
		return nil, err
	}

	if offset < 0 {
		off, ok := Scan(mem)
		if !ok {
			unix.Munmap(mem)
			file.Close()
			return nil, fmt.Errorf("no pair header found in %s", path)
		}
		offset = off
	}
	pair, err := Attach(mem[offset:])
	if err != nil {
		unix.Munmap(mem)
		file.Close()
		return nil, err
	}
	return &Segment{File: file, Mem: mem, Pair: pair, Path: path, Offset: offset}, nil
}

// Segment is a mapped file holding a pair.
type Segment struct {
	File   *os.File
	Mem    []byte
	Pair   *Pair
	Path   string
	Offset int // header offset within Mem
}

// Close unmaps the region and closes the file. The file itself is left in
// place; RemoveSegment deletes it.
func (s *Segment) Close() error {
	var firstErr error
	if s.Mem != nil {
		if err := unix.Munmap(s.Mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("munmap: %w", err)
		}
		s.Mem = nil
		s.Pair = nil
	}
	if s.File != nil {
		if err := s.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.File = nil
	}
	return firstErr
}

// RemoveSegment deletes a named segment file.
func RemoveSegment(name string) error {
	return os.Remove(segmentPath(name))
}

// segmentPath places segments in /dev/shm when present, falling back to the
// temporary directory.
func segmentPath(name string) string {
	dir := os.TempDir()
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		dir = "/dev/shm"
	}
	return filepath.Join(dir, "buffy_"+name)
}

// mapFile maps a file shared read-write.
func mapFile(file *os.File, size int) ([]byte, error) {
	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return mem, nil
}
