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

package session

import (
	"sort"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/plcsim-starter/api"
)

// Phase is the lifecycle position of one simulated device.
type Phase int32

const (
	Idle Phase = iota
	Downloading
	Online
	Stopping
	Cancelling
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Downloading:
		return "downloading"
	case Online:
		return "online"
	case Stopping:
		return "stopping"
	case Cancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// Session is the orchestrator's record of one simulated device. Only the
// phase may be read outside the phase lock.
type Session struct {
	device  string
	phase   atomic.Int32
	handle  api.Device
	inst    api.Instance
	storage string
}

func newSession(device string, handle api.Device) *Session {
	return &Session{device: device, handle: handle}
}

// Device returns the device name the session simulates.
func (s *Session) Device() string { return s.device }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Session) setPhase(p Phase) { s.phase.Store(int32(p)) }

// Table holds the tracked sessions keyed by device name.
type Table struct {
	m cmap.ConcurrentMap[string, *Session]
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{m: cmap.New[*Session]()}
}

func (t *Table) Get(device string) (*Session, bool) { return t.m.Get(device) }

func (t *Table) set(s *Session) { t.m.Set(s.device, s) }

func (t *Table) remove(device string) { t.m.Remove(device) }

// Len returns the number of tracked sessions.
func (t *Table) Len() int { return t.m.Count() }

// Sessions returns the tracked sessions ordered by device name.
func (t *Table) Sessions() []*Session {
	items := t.m.Items()
	out := make([]*Session, 0, len(items))
	for _, s := range items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].device < out[j].device })
	return out
}

// Devices returns the tracked device names in order.
func (t *Table) Devices() []string {
	keys := t.m.Keys()
	sort.Strings(keys)
	return keys
}
