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
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/girtsf/buffy/internal/link"
)

// lockedBuffer collects watcher output across goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestPair(t *testing.T) *link.Pair {
	t.Helper()
	p, err := link.New(4, 3)
	if err != nil {
		t.Fatalf("link.New failed: %v", err)
	}
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// corruptTxHead clobbers the Tx head index the way a crashed or misbehaving
// device would, by writing an out-of-range value straight into the region.
func corruptTxHead(t *testing.T, p *link.Pair) {
	t.Helper()
	binary.NativeEndian.PutUint32(p.Region()[link.OffTxHead:], 999)
}

func TestWatcherDrainsTx(t *testing.T) {
	p := newTestPair(t)
	d := p.Device()

	out := &lockedBuffer{}
	w := NewWatcher(p.Host(), out, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Feed more than one ring's worth through, retrying short counts as the
	// watcher drains.
	msg := []byte("the quick brown fox jumps over the lazy dog")
	for pos := 0; pos < len(msg); {
		pos += d.TxEnqueue(msg[pos:])
	}

	waitFor(t, "watcher output", func() bool { return out.String() == string(msg) })

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestWatcherReportsOverflows(t *testing.T) {
	p := newTestPair(t)
	d := p.Device()

	var mu sync.Mutex
	var logged []string

	out := &lockedBuffer{}
	w := NewWatcher(p.Host(), out, time.Millisecond)
	w.logf = func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	// Overflow before the watcher starts so the delta is visible on the
	// first idle poll.
	d.TxEnqueue(make([]byte, 64))
	d.TxEnqueue(make([]byte, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	waitFor(t, "overflow log line", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(logged) > 0
	})

	mu.Lock()
	line := logged[0]
	mu.Unlock()
	if want := "overflowed 2 times"; !bytes.Contains([]byte(line), []byte(want)) {
		t.Fatalf("log line %q does not mention %q", line, want)
	}

	cancel()
	<-errCh
}

func TestWatcherStopsOnCorruption(t *testing.T) {
	p := newTestPair(t)

	// Fake an external clobber by initializing a corrupt view: write an
	// out-of-range tx head through a second attached pair.
	w := NewWatcher(p.Host(), &lockedBuffer{}, time.Millisecond)
	corruptTxHead(t, p)

	err := w.Run(context.Background())
	if !errors.Is(err, link.ErrCorruptIndices) {
		t.Fatalf("Run returned %v, want ErrCorruptIndices", err)
	}
}
