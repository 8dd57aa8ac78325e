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
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/girtsf/buffy/internal/link"
)

// maxPendingBytes bounds how much inbound TCP data the bridge will hold
// while the device is not draining Rx. Beyond it, new chunks are dropped
// with a warning; the Rx ring is a debug channel, not a reliable pipe.
const maxPendingBytes = 1 << 20

// Bridge listens on a TCP port and forwards everything received into the
// pair's Rx stream. The Rx ring is typically tiny, so inbound chunks are
// queued and pumped in as the device makes space, instead of being dropped
// the moment the ring fills.
type Bridge struct {
	host *link.Host
	ln   net.Listener
	logf func(format string, args ...any)

	mu      sync.Mutex
	pending *queue.Queue // of []byte chunks, partial head kept separately
	partial []byte
	held    int // bytes across partial + pending
}

// NewBridge starts listening on addr (e.g. "127.0.0.1:4444"). Call Run to
// begin accepting and pumping.
func NewBridge(host *link.Host, addr string) (*Bridge, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bridge listen: %w", err)
	}
	return &Bridge{
		host:    host,
		ln:      ln,
		logf:    log.Printf,
		pending: queue.New(),
	}, nil
}

// Addr returns the listener address, useful when addr was ":0".
func (b *Bridge) Addr() net.Addr { return b.ln.Addr() }

// Run accepts connections and pumps queued bytes into Rx until ctx is
// cancelled or the pair becomes unusable. Always closes the listener.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.ln.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		b.ln.Close()
	}()
	go b.acceptLoop(ctx)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.pump(); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) acceptLoop(ctx context.Context) {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logf("bridge accept: %v", err)
			return
		}
		go b.serve(ctx, conn)
	}
}

func (b *Bridge) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			b.push(chunk)
		}
		if err != nil {
			return
		}
	}
}

// push queues an inbound chunk, dropping it if the bridge already holds too
// much undelivered data.
func (b *Bridge) push(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held+len(chunk) > maxPendingBytes {
		b.logf("bridge: rx backlog full, dropping %d bytes", len(chunk))
		return
	}
	b.pending.Add(chunk)
	b.held += len(chunk)
}

// pump moves queued bytes into the Rx ring until the ring fills or the
// queue empties. Partial writes keep their remainder at the front.
func (b *Bridge) pump() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if len(b.partial) == 0 {
			if b.pending.Length() == 0 {
				return nil
			}
			b.partial = b.pending.Remove().([]byte)
		}
		n, err := b.host.WriteRx(b.partial)
		if err != nil {
			return fmt.Errorf("write rx: %w", err)
		}
		b.partial = b.partial[n:]
		b.held -= n
		if len(b.partial) > 0 {
			// Ring full; retry on the next tick.
			return nil
		}
	}
}
