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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Scanning a whole RAM image for the pair header is slow over a debug
// probe, so the offset found last time is remembered per target name in a
// small key=value file and revalidated before use.

// DefaultCachePath returns the per-user offset cache location.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".buffy_previous_address")
}

// ReadCachedOffset returns the cached header offset for target, if any.
func ReadCachedOffset(path, target string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok || key != target {
			continue
		}
		off, err := strconv.ParseInt(val, 0, 64)
		if err != nil || off < 0 {
			return 0, false
		}
		return int(off), true
	}
	return 0, false
}

// WriteCachedOffset records the header offset for target, replacing any
// previous entry and keeping entries for other targets.
func WriteCachedOffset(path, target string, offset int) error {
	lines := []string{}
	if f, err := os.Open(path); err == nil {
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if key, _, ok := strings.Cut(line, "="); ok && key == target {
				continue
			}
			if line != "" {
				lines = append(lines, line)
			}
		}
		f.Close()
	}
	lines = append(lines, fmt.Sprintf("%s=0x%x", target, offset))
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}
