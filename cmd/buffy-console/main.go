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

// buffy-console attaches to a buffy channel pair and streams the device's
// transmit bytes to stdout. Optionally it listens on a TCP port and feeds
// everything received there into the device's receive ring.
//
// The pair is found either in a named segment file (optionally created
// here, mostly for local experiments) or by scanning an arbitrary mapped
// image file for the magic header, caching the offset per target name.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/girtsf/buffy/internal/console"
	"github.com/girtsf/buffy/internal/link"
)

func main() {
	var (
		segName = flag.String("segment", "", "named segment file to open")
		create  = flag.Bool("create", false, "create the named segment instead of opening it")
		txPow2  = flag.Int("tx-pow2", 9, "log2 of tx capacity when creating")
		rxPow2  = flag.Int("rx-pow2", 6, "log2 of rx capacity when creating")
		image   = flag.String("image", "", "memory image file to scan for a pair")
		target  = flag.String("target", "default", "target name for the offset cache")
		cache   = flag.String("cache", console.DefaultCachePath(), "offset cache file")
		poll    = flag.Duration("poll", console.DefaultPollInterval, "poll interval when idle")
		tcpAddr = flag.String("tcp", "", "TCP listen address bridged into rx (e.g. 127.0.0.1:4444)")
	)
	flag.Parse()

	seg, err := openPair(*segName, *create, uint8(*txPow2), uint8(*rxPow2), *image, *target, *cache)
	if err != nil {
		log.Fatalf("buffy-console: %v", err)
	}
	defer seg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := seg.Pair.Host()

	errCh := make(chan error, 1)
	if *tcpAddr != "" {
		bridge, err := console.NewBridge(host, *tcpAddr)
		if err != nil {
			log.Fatalf("buffy-console: %v", err)
		}
		log.Printf("bridging %s into rx", bridge.Addr())
		go func() { errCh <- bridge.Run(ctx) }()
	}

	watcher := console.NewWatcher(host, os.Stdout, *poll)
	go func() { errCh <- watcher.Run(ctx) }()

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("buffy-console: %v", err)
	}
}

// openPair resolves the flag combinations to a mapped segment.
func openPair(segName string, create bool, txPow2, rxPow2 uint8, image, target, cache string) (*link.Segment, error) {
	switch {
	case image != "":
		if off, ok := console.ReadCachedOffset(cache, target); ok {
			if seg, err := link.OpenImageAt(image, off); err == nil {
				return seg, nil
			}
			// Stale cache; fall through to a scan.
		}
		seg, off, err := link.OpenImage(image)
		if err != nil {
			return nil, err
		}
		if cache != "" {
			if err := console.WriteCachedOffset(cache, target, off); err != nil {
				log.Printf("cache write failed: %v", err)
			}
		}
		return seg, nil
	case segName != "":
		if create {
			return link.CreateSegment(segName, txPow2, rxPow2)
		}
		return link.OpenSegment(segName)
	default:
		return nil, errors.New("one of -segment or -image is required")
	}
}
