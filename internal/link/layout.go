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
	"sync/atomic"
	"unsafe"
)

// Memory layout constants. The header is the wire contract: an external
// reader interprets the region by these byte offsets and nothing else.
const (
	// Magic identifies the structure and, because it only matches when
	// read in the writer's byte order, the byte order too.
	Magic = uint32(0xdd664662) // "bFfY"

	// Version is the current layout version.
	Version = uint8(1)

	// HeaderSize is the size of the fixed header in bytes.
	HeaderSize = 36

	// MaxLenPow2 bounds the per-ring capacity exponent. A header claiming
	// more than 64KiB per ring is treated as garbage.
	MaxLenPow2 = 16

	// storageAlign is the alignment of the first storage area after the
	// header.
	storageAlign = 64
)

// Header field offsets in bytes. Exported because they are the wire
// contract: an external reader with nothing but a raw view of the region
// interprets it by these offsets.
const (
	OffMagic       = 0  // uint32
	OffVersion     = 4  // uint8
	OffTxLenPow2   = 5  // uint8
	OffRxLenPow2   = 6  // uint8
	OffInitialized = 7  // uint8
	OffTxTail      = 8  // uint32
	OffTxHead      = 12 // uint32
	OffRxTail      = 16 // uint32
	OffRxHead      = 20 // uint32
	OffTxOverflow  = 24 // uint32
	OffTxBuf       = 28 // uint32, region-relative offset of Tx storage
	OffRxBuf       = 32 // uint32, region-relative offset of Rx storage
)

// header provides typed access to the pair header at the start of a shared
// memory region. All multi-byte fields are accessed atomically through
// pointers into the region; the region must therefore be 4-byte aligned.
type header struct {
	mem []byte
}

// word returns a pointer to the uint32 field at the given offset.
func (h *header) word(off uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(&h.mem[off]))
}

func (h *header) Magic() uint32        { return atomic.LoadUint32(h.word(OffMagic)) }
func (h *header) SetMagic(v uint32)    { atomic.StoreUint32(h.word(OffMagic), v) }
func (h *header) Version() uint8       { return h.mem[OffVersion] }
func (h *header) SetVersion(v uint8)   { h.mem[OffVersion] = v }
func (h *header) TxLenPow2() uint8     { return h.mem[OffTxLenPow2] }
func (h *header) SetTxLenPow2(v uint8) { h.mem[OffTxLenPow2] = v }
func (h *header) RxLenPow2() uint8     { return h.mem[OffRxLenPow2] }
func (h *header) SetRxLenPow2(v uint8) { h.mem[OffRxLenPow2] = v }

func (h *header) Initialized() bool { return h.mem[OffInitialized] != 0 }
func (h *header) SetInitialized(v bool) {
	if v {
		h.mem[OffInitialized] = 1
	} else {
		h.mem[OffInitialized] = 0
	}
}

func (h *header) TxBufOffset() uint32     { return atomic.LoadUint32(h.word(OffTxBuf)) }
func (h *header) SetTxBufOffset(v uint32) { atomic.StoreUint32(h.word(OffTxBuf), v) }
func (h *header) RxBufOffset() uint32     { return atomic.LoadUint32(h.word(OffRxBuf)) }
func (h *header) SetRxBufOffset(v uint32) { atomic.StoreUint32(h.word(OffRxBuf), v) }

// IsPowerOfTwo returns true if n is a power of two.
func IsPowerOfTwo(n uint32) bool {
	return n > 0 && n&(n-1) == 0
}

// alignTo aligns a size up to the storage alignment boundary.
func alignTo(size uint32) uint32 {
	return (size + storageAlign - 1) &^ (storageAlign - 1)
}

// Layout computes the region layout for the given capacity exponents:
// total region size and the region-relative offsets of the Tx and Rx
// storage areas. Tx storage follows the header on an aligned boundary; Rx
// storage follows Tx immediately.
func Layout(txLenPow2, rxLenPow2 uint8) (total, txOff, rxOff uint32, err error) {
	if txLenPow2 < 1 || txLenPow2 > MaxLenPow2 {
		return 0, 0, 0, fmt.Errorf("tx capacity exponent %d out of range [1, %d]", txLenPow2, MaxLenPow2)
	}
	if rxLenPow2 < 1 || rxLenPow2 > MaxLenPow2 {
		return 0, 0, 0, fmt.Errorf("rx capacity exponent %d out of range [1, %d]", rxLenPow2, MaxLenPow2)
	}
	txOff = alignTo(HeaderSize)
	rxOff = txOff + 1<<txLenPow2
	total = rxOff + 1<<rxLenPow2
	return total, txOff, rxOff, nil
}

// checkWordAligned verifies the region base is 4-byte aligned, which the
// atomic index accesses require.
func checkWordAligned(mem []byte) error {
	if len(mem) == 0 {
		return fmt.Errorf("empty region")
	}
	if uintptr(unsafe.Pointer(&mem[0]))%4 != 0 {
		return fmt.Errorf("region is not 4-byte aligned")
	}
	return nil
}

// validateHeader checks that the header at the start of mem describes a
// structure this package understands and that the storage areas it points
// at lie inside mem.
func validateHeader(mem []byte) error {
	if len(mem) < HeaderSize {
		return fmt.Errorf("region too small for header: %d bytes", len(mem))
	}
	if err := checkWordAligned(mem); err != nil {
		return err
	}
	h := &header{mem: mem}
	if m := h.Magic(); m != Magic {
		return fmt.Errorf("bad magic 0x%08x, want 0x%08x", m, Magic)
	}
	if v := h.Version(); v != Version {
		return fmt.Errorf("unsupported version %d, want %d", v, Version)
	}
	txPow2, rxPow2 := h.TxLenPow2(), h.RxLenPow2()
	if txPow2 < 1 || txPow2 > MaxLenPow2 {
		return fmt.Errorf("tx capacity exponent %d out of range [1, %d]", txPow2, MaxLenPow2)
	}
	if rxPow2 < 1 || rxPow2 > MaxLenPow2 {
		return fmt.Errorf("rx capacity exponent %d out of range [1, %d]", rxPow2, MaxLenPow2)
	}
	if !h.Initialized() {
		return fmt.Errorf("pair not initialized")
	}
	txOff, txCap := uint64(h.TxBufOffset()), uint64(uint32(1)<<txPow2)
	rxOff, rxCap := uint64(h.RxBufOffset()), uint64(uint32(1)<<rxPow2)
	if txOff < HeaderSize || txOff+txCap > uint64(len(mem)) {
		return fmt.Errorf("tx storage [%d, %d) outside region of %d bytes", txOff, txOff+txCap, len(mem))
	}
	if rxOff < HeaderSize || rxOff+rxCap > uint64(len(mem)) {
		return fmt.Errorf("rx storage [%d, %d) outside region of %d bytes", rxOff, rxOff+rxCap, len(mem))
	}
	return nil
}
