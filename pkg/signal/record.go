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

// Package signal implements the single-slot file mailbox shared by the
// front-end and the orchestrator.
//
// The mailbox is one file holding one line, "<intent>,<device>". Writers
// truncate and rewrite it; the last writer wins. The orchestrator watches the
// file for writes and acts on a record only if it differs from the last record
// it acted upon.
package signal

import (
	"errors"
	"strings"
)

// FileName is the well-known name of the signal file inside the signal directory.
const FileName = "StateFile.txt"

// Intent is the verb of a signal record.
type Intent string

const (
	IntentStart  Intent = "Start"
	IntentStop   Intent = "Stop"
	IntentCancel Intent = "Cancel"
)

// ErrMalformedRecord is returned when the file contents carry no comma.
var ErrMalformedRecord = errors.New("signal: malformed record")

// Record is the one message the mailbox holds.
type Record struct {
	Intent Intent
	Device string
}

func (r Record) String() string {
	return string(r.Intent) + "," + r.Device
}

// IsZero reports whether r is the empty record.
func (r Record) IsZero() bool {
	return r.Intent == "" && r.Device == ""
}

// ParseRecord splits line on its first comma. Unknown intents are returned
// as-is; it is up to the consumer to ignore them.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
	intent, device, ok := strings.Cut(line, ",")
	if !ok {
		return Record{}, ErrMalformedRecord
	}
	return Record{
		Intent: Intent(strings.TrimSpace(intent)),
		Device: strings.TrimSpace(device),
	}, nil
}
