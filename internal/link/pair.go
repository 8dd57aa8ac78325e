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
	"fmt"
)

// ErrCorruptIndices is returned by host-side operations that find an index
// outside the ring. The device self-heals this condition; the host reports
// it instead, because on the host it usually means the region is not what
// we think it is (stale address, rebuilt firmware) and silently resetting
// would scribble on unknown memory.
var ErrCorruptIndices = errors.New("link: ring index out of range")

// Pair is a validated view of a buffy channel pair living at the start of a
// shared memory region. It owns no goroutines and never allocates after
// construction; all state lives in the region itself.
//
// A Pair hands out at most one Device and one Host handle's worth of
// concurrency: per direction there is exactly one producer and one
// consumer, and each index field has exactly one writer. Two concurrent
// consumers of the same direction are undefined, not detected.
type Pair struct {
	mem []byte
	hdr header
	tx  ring
	rx  ring
}

// State is a snapshot of the pair's observable counters, for diagnostics.
// Indices are read atomically but not as one consistent set.
type State struct {
	TxHead      uint32
	TxTail      uint32
	RxHead      uint32
	RxTail      uint32
	TxOverflows uint32
	TxCapacity  int
	RxCapacity  int
}

// New allocates a fresh region sized for the given capacity exponents and
// initializes a pair in it. Capacities are 1<<txLenPow2 and 1<<rxLenPow2
// bytes.
func New(txLenPow2, rxLenPow2 uint8) (*Pair, error) {
	total, _, _, err := Layout(txLenPow2, rxLenPow2)
	if err != nil {
		return nil, err
	}
	return Init(make([]byte, total), txLenPow2, rxLenPow2)
}

// Init initializes a pair in a caller-supplied region. The region is
// borrowed: the pair never frees or reallocates it, so the caller may place
// it wherever the device and host can both reach (a mapped file, a static
// buffer). The region must be 4-byte aligned and at least Layout() bytes.
//
// The magic word is stored last, so a scanner that finds it is guaranteed
// to see a fully initialized header.
func Init(mem []byte, txLenPow2, rxLenPow2 uint8) (*Pair, error) {
	total, txOff, rxOff, err := Layout(txLenPow2, rxLenPow2)
	if err != nil {
		return nil, err
	}
	if len(mem) < int(total) {
		return nil, fmt.Errorf("region too small: %d bytes, need %d", len(mem), total)
	}
	if err := checkWordAligned(mem); err != nil {
		return nil, err
	}
	p := &Pair{mem: mem, hdr: header{mem: mem}}

	p.hdr.SetVersion(Version)
	p.hdr.SetTxLenPow2(txLenPow2)
	p.hdr.SetRxLenPow2(rxLenPow2)
	p.hdr.SetTxBufOffset(txOff)
	p.hdr.SetRxBufOffset(rxOff)
	p.bindRings()
	p.tx.reset()
	p.rx.reset()
	p.hdr.SetInitialized(true)
	p.hdr.SetMagic(Magic)
	return p, nil
}

// Attach validates an already-initialized pair at the start of mem and
// returns a view of it. Use Scan first when the pair sits at an unknown
// offset inside a larger image.
func Attach(mem []byte) (*Pair, error) {
	if err := validateHeader(mem); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	p := &Pair{mem: mem, hdr: header{mem: mem}}
	p.bindRings()
	return p, nil
}

// bindRings wires the two ring views to their header fields. Tx carries the
// overflow counter; Rx has none, an asymmetry kept from the wire contract
// (host writes are assumed not to overflow; the host layers its own
// queueing on top).
func (p *Pair) bindRings() {
	p.tx = ring{
		h:           &p.hdr,
		headOff:     OffTxHead,
		tailOff:     OffTxTail,
		overflowOff: OffTxOverflow,
		bufOff:      p.hdr.TxBufOffset(),
		capacity:    1 << p.hdr.TxLenPow2(),
	}
	p.rx = ring{
		h:        &p.hdr,
		headOff:  OffRxHead,
		tailOff:  OffRxTail,
		bufOff:   p.hdr.RxBufOffset(),
		capacity: 1 << p.hdr.RxLenPow2(),
	}
}

// State returns a diagnostic snapshot of indices and counters.
func (p *Pair) State() State {
	return State{
		TxHead:      p.tx.head(),
		TxTail:      p.tx.tail(),
		RxHead:      p.rx.head(),
		RxTail:      p.rx.tail(),
		TxOverflows: p.tx.overflows(),
		TxCapacity:  int(p.tx.capacity),
		RxCapacity:  int(p.rx.capacity),
	}
}

// Region returns the whole underlying memory region, header included.
// Debug and tooling use only; writes race both sides.
func (p *Pair) Region() []byte { return p.mem }

// TxRaw returns the raw Tx storage area. Debug use only: reading it ignores
// the indices, writing it races the producer.
func (p *Pair) TxRaw() []byte { return p.tx.storage() }

// RxRaw returns the raw Rx storage area. Debug use only.
func (p *Pair) RxRaw() []byte { return p.rx.storage() }

// Size returns the total region size described by the pair's layout.
func (p *Pair) Size() int {
	total, _, _, _ := Layout(p.hdr.TxLenPow2(), p.hdr.RxLenPow2())
	return int(total)
}

// Device returns the device-side handle. The device is the producer of Tx
// and the consumer of Rx: it owns tx_head and rx_tail and must be the only
// caller of this handle's mutating operations.
func (p *Pair) Device() *Device { return &Device{p: p} }

// Host returns the host-side handle. The host is the consumer of Tx and
// the producer of Rx: it owns tx_tail and rx_head.
func (p *Pair) Host() *Host { return &Host{p: p} }

// Device is the embedded-side view of a pair.
type Device struct {
	p *Pair
}

// TxEnqueue queues bytes for the host and returns how many fit. A short
// count is not an error; the caller retries with the remainder later. Each
// call that finds the ring full increments the overflow counter once.
func (d *Device) TxEnqueue(p []byte) int {
	return d.p.tx.enqueue(p)
}

// TxInspectRead drains pending Tx bytes exactly like the host's read would.
// It moves the same tail index as the real host consumer, so running it
// concurrently with an attached host is unsynchronized and undefined. It
// exists for third-party observers on targets that have no host attached.
func (d *Device) TxInspectRead(buf []byte) int {
	return d.p.tx.dequeue(buf)
}

// TxCapacity returns the usable Tx capacity in bytes, one less than the
// ring size.
func (d *Device) TxCapacity() int { return d.p.tx.usable() }

// TxFree returns the space currently available for TxEnqueue. The value may
// be stale by the time it is used; staleness only under-reports.
func (d *Device) TxFree() int { return d.p.tx.free() }

// RxDequeue reads bytes sent by the host and returns how many were pending,
// up to len(buf). Corrupted Rx indices reset the ring and return 0,
// discarding unread data; availability wins over integrity on a debug
// channel.
func (d *Device) RxDequeue(buf []byte) int {
	return d.p.rx.dequeue(buf)
}

// Host is the host-tool-side view of a pair, mirroring the algorithm the
// device runs so the two interoperate over nothing but the shared indices.
type Host struct {
	p *Pair
}

// ReadTx drains bytes the device queued and returns how many were read.
// Returns ErrCorruptIndices if the Tx indices are out of range.
func (h *Host) ReadTx(buf []byte) (int, error) {
	if h.p.tx.corrupt() {
		return 0, ErrCorruptIndices
	}
	return h.p.tx.dequeue(buf), nil
}

// WriteRx queues bytes for the device and returns how many fit; a short
// count means the Rx ring is full and the caller should retry once the
// device drains it. Returns ErrCorruptIndices if the Rx indices are out of
// range.
func (h *Host) WriteRx(data []byte) (int, error) {
	if h.p.rx.corrupt() {
		return 0, ErrCorruptIndices
	}
	return h.p.rx.enqueue(data), nil
}

// TxPending returns the number of bytes waiting in Tx.
func (h *Host) TxPending() int { return h.p.tx.used() }

// RxFree returns the space currently available for WriteRx.
func (h *Host) RxFree() int { return h.p.rx.free() }

// TxOverflows returns the device's Tx overflow counter: the number of
// enqueue calls that found the ring full.
func (h *Host) TxOverflows() uint32 { return h.p.tx.overflows() }
