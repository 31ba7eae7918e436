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

import (
	"fmt"
	"sync"
)

// Mailbox pairs the signal file with the dedup slot of its consumer.
type Mailbox struct {
	// mu makes a publication and a read atomic with respect to each other,
	// so the dedup slot always describes what is in the file.
	mu    sync.Mutex
	file  *File
	dedup Deduper
}

// NewMailbox returns a mailbox around file.
func NewMailbox(file *File) *Mailbox {
	return &Mailbox{file: file}
}

// File returns the underlying signal file.
func (m *Mailbox) File() *File { return m.file }

// Publish writes rec and marks it as already seen, so the consumer owning
// this mailbox ignores the notification caused by its own write.
func (m *Mailbox) Publish(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Publish(rec); err != nil {
		return err
	}
	m.dedup.Mark(rec)
	return nil
}

// Mark records rec as acted upon without touching the file.
func (m *Mailbox) Mark(rec Record) { m.dedup.Mark(rec) }

// Next reads the file and returns its record if it has not been seen yet.
// ok is false for duplicates; err is set for unreadable or malformed contents.
func (m *Mailbox) Next() (rec Record, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err = m.file.Read()
	if err != nil {
		return Record{}, false, err
	}
	if rec.Device == "" {
		return Record{}, false, fmt.Errorf("%w: empty device name", ErrMalformedRecord)
	}
	return rec, m.dedup.Observe(rec), nil
}
