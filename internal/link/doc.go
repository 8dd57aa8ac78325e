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

// Package link implements the buffy channel pair: two fixed-capacity
// circular byte buffers laid out in a shared memory region, carrying a byte
// stream between a device-side program and an external host reader that
// share nothing but the memory itself.
//
// Each direction is a single-producer single-consumer ring. The producer is
// the only writer of the head index and the consumer the only writer of the
// tail index; synchronization relies entirely on that ownership discipline
// plus atomic index loads and stores. No operation locks or blocks: every
// call is a bounded computation that returns the number of bytes it could
// move, which may be short of the request. A full transmit ring bumps an
// overflow counter and returns a short count; an out-of-range index (the
// indices live in memory an external tool can scribble on) resets the ring
// and returns zero rather than faulting.
//
// The region starts with a small versioned header carrying a magic constant
// so that a host tool with only a raw view of device memory can locate and
// validate the structure before trusting it.
package link
