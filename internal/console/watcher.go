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

// Package console implements the host-side tooling around a buffy pair:
// a polling watcher that drains the device's transmit stream, and a TCP
// bridge that feeds bytes into the device's receive stream.
package console

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/girtsf/buffy/internal/link"
)

// DefaultPollInterval is how often the watcher polls an idle pair.
const DefaultPollInterval = 500 * time.Millisecond

// Watcher drains a pair's Tx stream to an output writer and reports
// overflow-counter jumps. The ring itself never blocks, so pacing is a poll
// loop: whenever a poll moves bytes the next poll happens immediately,
// otherwise the watcher sleeps for the interval.
type Watcher struct {
	host     *link.Host
	out      io.Writer
	interval time.Duration
	logf     func(format string, args ...any)
}

// NewWatcher returns a watcher writing the Tx stream to out. A zero
// interval selects DefaultPollInterval.
func NewWatcher(host *link.Host, out io.Writer, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		host:     host,
		out:      out,
		interval: interval,
		logf:     log.Printf,
	}
}

// Run polls until ctx is cancelled (returning ctx.Err()) or an operation
// fails. Corrupted Tx indices stop the watcher: on the host side that means
// the region is no longer what we attached to.
func (w *Watcher) Run(ctx context.Context) error {
	buf := make([]byte, 4096)
	prevOverflows := w.host.TxOverflows()

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		n, err := w.host.ReadTx(buf)
		if err != nil {
			return fmt.Errorf("read tx: %w", err)
		}
		if n > 0 {
			if _, err := w.out.Write(buf[:n]); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			// More may already be pending; poll again right away.
			continue
		}

		if overflows := w.host.TxOverflows(); overflows != prevOverflows {
			w.logf("tx side overflowed %d times", overflows-prevOverflows)
			prevOverflows = overflows
		}

		timer.Reset(w.interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
