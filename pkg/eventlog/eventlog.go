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

// Package eventlog writes the user-facing event log: an append-only text
// file with one "[<timestamp>] <SUCCESS|ERROR> : <message>" line per event.
package eventlog

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
)

// FileName is the default name of the event log inside the signal directory.
const FileName = "PLSCIMAdv.log"

// TimeLayout is the timestamp layout of every line.
const TimeLayout = "2006-01-02 15:04:05"

// Level is the outcome tag of an event.
type Level string

const (
	Success Level = "SUCCESS"
	Error   Level = "ERROR"
)

var ErrMalformedLine = errors.New("eventlog: malformed line")

// Entry is one parsed line of the log.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Log appends events to the log file and mirrors them into a slog logger.
// The file is reopened for every event so that other processes can read
// and rotate it freely.
type Log struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Open creates the log file if needed and returns a Log appending to it.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &Log{
		path:   path,
		logger: logger.With("component", "eventlog"),
		now:    time.Now,
	}, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Successf records a SUCCESS event.
func (l *Log) Successf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Info(msg, "event", Success)
	l.append(Success, msg)
}

// Errorf records an ERROR event.
func (l *Log) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Error(msg, "event", Error)
	l.append(Error, msg)
}

func (l *Log) append(level Level, msg string) {
	if err := l.Write(level, msg); err != nil {
		l.logger.Error("append to event log", "path", l.path, "error", err)
	}
}

// Write appends one line.
func (l *Log) Write(level Level, msg string) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	AppendLine(buf, l.now(), level, msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.B); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// AppendLine formats one event line, newline included, into buf.
func AppendLine(buf *bytebufferpool.ByteBuffer, ts time.Time, level Level, msg string) {
	_ = buf.WriteByte('[')
	buf.B = ts.AppendFormat(buf.B, TimeLayout)
	_, _ = buf.WriteString("] ")
	_, _ = buf.WriteString(string(level))
	_, _ = buf.WriteString(" : ")
	_, _ = buf.WriteString(strings.ReplaceAll(msg, "\n", " "))
	_ = buf.WriteByte('\n')
}

// ParseLine parses one line produced by AppendLine. Timestamps are read in
// the local time zone.
func ParseLine(line string) (Entry, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "[") {
		return Entry{}, ErrMalformedLine
	}
	stamp, rest, ok := strings.Cut(line[1:], "] ")
	if !ok {
		return Entry{}, ErrMalformedLine
	}
	level, msg, ok := strings.Cut(rest, " : ")
	if !ok {
		return Entry{}, ErrMalformedLine
	}
	ts, err := time.ParseInLocation(TimeLayout, stamp, time.Local)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return Entry{Time: ts, Level: Level(level), Message: msg}, nil
}

// ReadEntries parses every well-formed line of the log at path.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		e, err := ParseLine(sc.Text())
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}
