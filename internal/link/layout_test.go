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
	"encoding/binary"
	"testing"
)

// TestWireLayout pins the byte offsets an external reader depends on.
func TestWireLayout(t *testing.T) {
	p := newPair(t, 4, 3)
	mem := p.mem

	u32 := func(off int) uint32 { return binary.NativeEndian.Uint32(mem[off:]) }

	if got := u32(0); got != Magic {
		t.Fatalf("magic at offset 0 = 0x%08x, want 0x%08x", got, Magic)
	}
	if mem[4] != Version {
		t.Fatalf("version at offset 4 = %d, want %d", mem[4], Version)
	}
	if mem[5] != 4 || mem[6] != 3 {
		t.Fatalf("capacity exponents at 5/6 = %d/%d, want 4/3", mem[5], mem[6])
	}
	if mem[7] != 1 {
		t.Fatalf("initialized flag at offset 7 = %d, want 1", mem[7])
	}

	_, txOff, rxOff, err := Layout(4, 3)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	if got := u32(28); got != txOff {
		t.Fatalf("tx storage offset at 28 = %d, want %d", got, txOff)
	}
	if got := u32(32); got != rxOff {
		t.Fatalf("rx storage offset at 32 = %d, want %d", got, rxOff)
	}

	// Index fields land at their advertised offsets.
	d := p.Device()
	d.TxEnqueue([]byte("abc"))
	if got := u32(12); got != 3 {
		t.Fatalf("tx head at offset 12 = %d, want 3", got)
	}
	if got := u32(8); got != 0 {
		t.Fatalf("tx tail at offset 8 = %d, want 0", got)
	}

	p.Host().WriteRx([]byte("zz"))
	if got := u32(20); got != 2 {
		t.Fatalf("rx head at offset 20 = %d, want 2", got)
	}
	if got := u32(16); got != 0 {
		t.Fatalf("rx tail at offset 16 = %d, want 0", got)
	}

	// Filling tx bumps the overflow counter at offset 24.
	d.TxEnqueue(make([]byte, 32))
	d.TxEnqueue(make([]byte, 1))
	if got := u32(24); got != 2 {
		t.Fatalf("overflow counter at offset 24 = %d, want 2", got)
	}
}

func TestLayout(t *testing.T) {
	total, txOff, rxOff, err := Layout(9, 6)
	if err != nil {
		t.Fatalf("Layout failed: %v", err)
	}
	if txOff != 64 {
		t.Fatalf("tx storage offset %d, want 64", txOff)
	}
	if rxOff != 64+512 {
		t.Fatalf("rx storage offset %d, want %d", rxOff, 64+512)
	}
	if total != 64+512+64 {
		t.Fatalf("total %d, want %d", total, 64+512+64)
	}

	for _, bad := range [][2]uint8{{0, 6}, {9, 0}, {17, 6}, {9, 17}} {
		if _, _, _, err := Layout(bad[0], bad[1]); err == nil {
			t.Fatalf("Layout(%d, %d) accepted bad exponents", bad[0], bad[1])
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []uint32{1, 2, 4, 1024, 1 << 16} {
		if !IsPowerOfTwo(n) {
			t.Fatalf("IsPowerOfTwo(%d) = false", n)
		}
	}
	for _, n := range []uint32{0, 3, 6, 1000} {
		if IsPowerOfTwo(n) {
			t.Fatalf("IsPowerOfTwo(%d) = true", n)
		}
	}
}
