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

import "sync/atomic"

// ring is one direction of a pair: a view of one head/tail index couple in
// the header plus the storage area they wrap over. The same algorithm
// serves all four uses (device Tx write, device Rx read, host Tx read, host
// Rx write); the sides differ only in which index field each one owns.
//
// head is the next slot the producer writes, tail the next slot the
// consumer reads. Empty is head == tail, so at most capacity-1 bytes are
// ever live; the sacrificed slot is what keeps empty distinguishable from
// full without a separate count.
type ring struct {
	h           *header
	headOff     uint32 // header offset of the producer index
	tailOff     uint32 // header offset of the consumer index
	overflowOff uint32 // header offset of the overflow counter, 0 if none
	bufOff      uint32 // region-relative offset of the storage area
	capacity    uint32 // power of two
}

func (r *ring) head() uint32     { return atomic.LoadUint32(r.h.word(r.headOff)) }
func (r *ring) setHead(v uint32) { atomic.StoreUint32(r.h.word(r.headOff), v) }
func (r *ring) tail() uint32     { return atomic.LoadUint32(r.h.word(r.tailOff)) }
func (r *ring) setTail(v uint32) { atomic.StoreUint32(r.h.word(r.tailOff), v) }

func (r *ring) storage() []byte {
	return r.h.mem[r.bufOff : r.bufOff+r.capacity]
}

// reset zeroes both indices. Only used on corruption; it deliberately
// writes the foreign index too, which is the one moment the single-writer
// rule is waived.
func (r *ring) reset() {
	r.setTail(0)
	r.setHead(0)
}

// corrupt reports whether either index is outside the storage area. The
// indices live in memory an external tool writes without access control, so
// every bounds computation must be preceded by this check.
func (r *ring) corrupt() bool {
	return r.head() >= r.capacity || r.tail() >= r.capacity
}

// enqueue copies bytes from p into the ring starting at head and returns
// the number queued, which is short when the ring fills. A full ring bumps
// the overflow counter once per call that observes zero space. Out-of-range
// indices reset the ring and make the whole call return 0.
//
// Only the side that owns head may call this. The consumer may move tail
// concurrently; the snapshot taken each iteration makes that harmless, at
// worst under-reporting space that the next call will see.
func (r *ring) enqueue(p []byte) int {
	pos := 0
	buf := r.storage()
	for pos < len(p) {
		tail := r.tail()
		head := r.head()
		if tail >= r.capacity || head >= r.capacity {
			r.reset()
			return 0
		}

		var run uint32
		if head >= tail {
			if tail == 0 {
				// Tail at slot 0: stop one short of the array end so head
				// never catches tail exactly.
				run = r.capacity - head - 1
			} else {
				run = r.capacity - head
			}
		} else {
			run = tail - head - 1
		}
		if run == 0 {
			// Full.
			if r.overflowOff != 0 {
				atomic.AddUint32(r.h.word(r.overflowOff), 1)
			}
			break
		}

		n := int(run)
		if rem := len(p) - pos; n > rem {
			n = rem
		}
		copy(buf[head:int(head)+n], p[pos:pos+n])

		// The atomic store publishes the copied bytes: a consumer that
		// observes the new head is guaranteed to see the data behind it.
		r.setHead((head + uint32(n)) & (r.capacity - 1))

		pos += n
	}
	return pos
}

// dequeue copies bytes out of the ring starting at tail into p and returns
// the number read. Each copy stops at the physical end of the array; the
// loop then continues from slot 0, so a single call can drain a wrapped
// region in two segments. Out-of-range indices reset the ring and make the
// whole call return 0.
//
// Only the side that owns tail may call this.
func (r *ring) dequeue(p []byte) int {
	pos := 0
	buf := r.storage()
	for pos < len(p) {
		tail := r.tail()
		head := r.head()
		if tail >= r.capacity || head >= r.capacity {
			r.reset()
			return 0
		}

		if head == tail {
			// Empty.
			break
		}

		var run uint32
		if head > tail {
			run = head - tail
		} else {
			// Wrapped: read to the end of the array only; the next
			// iteration picks up from slot 0.
			run = r.capacity - tail
		}

		n := int(run)
		if rem := len(p) - pos; n > rem {
			n = rem
		}
		copy(p[pos:pos+n], buf[tail:int(tail)+n])

		// Publishing tail frees the space for the producer.
		r.setTail((tail + uint32(n)) & (r.capacity - 1))

		pos += n
	}
	return pos
}

// usable returns the number of bytes the ring can hold, capacity-1.
func (r *ring) usable() int {
	return int(r.capacity) - 1
}

// free returns the total remaining space, using the same head/tail
// relationship branches as enqueue but summing both segments of a wrapped
// free region.
func (r *ring) free() int {
	tail := r.tail()
	head := r.head()
	if head >= tail {
		if tail == 0 {
			return int(r.capacity - head - 1)
		}
		// head to the array end, plus slot 0 to one short of tail.
		return int(r.capacity-head) + int(tail-1)
	}
	return int(tail - head - 1)
}

// used returns the number of live bytes, (head - tail) mod capacity.
func (r *ring) used() int {
	return int((r.head() - r.tail()) & (r.capacity - 1))
}

// overflows returns the overflow counter, or 0 for rings without one.
func (r *ring) overflows() uint32 {
	if r.overflowOff == 0 {
		return 0
	}
	return atomic.LoadUint32(r.h.word(r.overflowOff))
}
