/*
 * Copyright 2025 SREDiag Authors
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
package signal

import "sync"

// Deduper remembers the last record acted upon. It is what keeps the
// orchestrator from reacting twice to the same write, whether the second
// notification is a filesystem duplicate or the orchestrator's own echo.
type Deduper struct {
	mu   sync.Mutex
	last Record
}

// Observe reports whether rec differs from the last record. A new record
// becomes the last one.
func (d *Deduper) Observe(rec Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec == d.last {
		return false
	}
	d.last = rec
	return true
}

// Mark makes rec the last record without comparing.
func (d *Deduper) Mark(rec Record) {
	d.mu.Lock()
	d.last = rec
	d.mu.Unlock()
}

// Last returns the last record.
func (d *Deduper) Last() Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
