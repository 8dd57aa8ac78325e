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

// buffy-dump prints the state of a buffy channel pair and a hexdump of the
// raw Tx storage, without consuming anything: indices and counters are read
// but never written, so it is safe to run next to a live console.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"

	"github.com/girtsf/buffy/internal/link"
)

func main() {
	var (
		segName = flag.String("segment", "", "named segment file to open")
		image   = flag.String("image", "", "memory image file to scan for a pair")
		raw     = flag.Bool("raw", true, "hexdump the raw tx storage")
	)
	flag.Parse()

	var (
		seg *link.Segment
		err error
	)
	switch {
	case *image != "":
		seg, _, err = link.OpenImage(*image)
	case *segName != "":
		seg, err = link.OpenSegment(*segName)
	default:
		log.Fatal("buffy-dump: one of -segment or -image is required")
	}
	if err != nil {
		log.Fatalf("buffy-dump: %v", err)
	}
	defer seg.Close()

	st := seg.Pair.State()
	fmt.Printf("pair at %s offset %d\n", seg.Path, seg.Offset)
	fmt.Printf("tx: capacity=%d head=%d tail=%d pending=%d overflows=%d\n",
		st.TxCapacity, st.TxHead, st.TxTail,
		(st.TxHead-st.TxTail)&uint32(st.TxCapacity-1), st.TxOverflows)
	fmt.Printf("rx: capacity=%d head=%d tail=%d pending=%d\n",
		st.RxCapacity, st.RxHead, st.RxTail,
		(st.RxHead-st.RxTail)&uint32(st.RxCapacity-1))

	if *raw {
		fmt.Printf("\ntx storage:\n%s", hex.Dump(seg.Pair.TxRaw()))
	}
}
