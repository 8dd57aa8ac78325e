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

package console

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

func TestBridgeForwardsToRx(t *testing.T) {
	p := newTestPair(t)
	d := p.Device()

	b, err := NewBridge(p.Host(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()

	conn, err := net.Dial("tcp", b.Addr().String())
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	// Much bigger than the Rx ring (7 usable bytes), so delivery only
	// completes if the bridge keeps pumping as the device drains.
	msg := []byte("the quick brown fox jumps over the lazy dog")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("write to bridge: %v", err)
	}
	conn.Close()

	var got []byte
	buf := make([]byte, 16)
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < len(msg) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: got %d of %d bytes (%q)", len(got), len(msg), got)
		}
		if n := d.RxDequeue(buf); n > 0 {
			got = append(got, buf[:n]...)
		} else {
			time.Sleep(time.Millisecond)
		}
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("rx stream mismatch: got %q, want %q", got, msg)
	}

	cancel()
	<-errCh
}

func TestBridgeStopsOnCancel(t *testing.T) {
	p := newTestPair(t)

	b, err := NewBridge(p.Host(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()
	cancel()

	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// Listener must be closed after Run returns.
	if conn, err := net.Dial("tcp", b.Addr().String()); err == nil {
		conn.Close()
		t.Fatal("listener still accepting after Run returned")
	}
}

func TestBridgeDropsOverBacklogLimit(t *testing.T) {
	p := newTestPair(t)

	b, err := NewBridge(p.Host(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	defer b.ln.Close()

	var dropped bool
	b.logf = func(format string, args ...any) { dropped = true }

	b.push(make([]byte, maxPendingBytes))
	if dropped {
		t.Fatal("first chunk within the limit was dropped")
	}
	b.push([]byte{0})
	if !dropped {
		t.Fatal("chunk over the limit was not dropped")
	}
	if b.held != maxPendingBytes {
		t.Fatalf("held = %d, want %d", b.held, maxPendingBytes)
	}
}
