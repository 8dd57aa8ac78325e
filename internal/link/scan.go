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

import "encoding/binary"

// Scan searches a memory image for a channel pair and returns the byte
// offset of its header. Candidates are word-aligned occurrences of the
// magic constant; a candidate only counts when the full header behind it
// validates, so a stray copy of the magic in the data stream is skipped.
//
// A host tool typically scans a device's RAM image once, caches the offset,
// and revalidates the cached location on later attaches before falling back
// to a fresh scan.
func Scan(mem []byte) (int, bool) {
	for off := 0; off+HeaderSize <= len(mem); off += 4 {
		if binary.NativeEndian.Uint32(mem[off:]) != Magic {
			continue
		}
		if validateHeader(mem[off:]) == nil {
			return off, true
		}
	}
	return 0, false
}
