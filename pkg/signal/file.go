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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	readRetryInterval = 10 * time.Millisecond
	readRetries       = 5
)

// errEmptyRead marks a read that raced with a truncating writer.
var errEmptyRead = errors.New("signal: empty read")

// File is the signal file inside a signal directory.
type File struct {
	dir  string
	name string
}

// NewFile returns the signal file called name inside dir. An empty name
// selects FileName.
func NewFile(dir, name string) *File {
	if name == "" {
		name = FileName
	}
	return &File{dir: dir, name: name}
}

// Dir returns the signal directory.
func (f *File) Dir() string { return f.dir }

// Name returns the base name of the signal file.
func (f *File) Name() string { return f.name }

// Path returns the full path of the signal file.
func (f *File) Path() string { return filepath.Join(f.dir, f.name) }

// Ensure creates the directory and an empty signal file unless they exist.
func (f *File) Ensure() error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("signal: create dir: %w", err)
	}
	file, err := openShared(f.Path(), os.O_RDONLY|os.O_CREATE)
	if err != nil {
		return fmt.Errorf("signal: create %s: %w", f.Path(), err)
	}
	return file.Close()
}

// Publish truncates the file and writes rec as its only line.
func (f *File) Publish(rec Record) error {
	file, err := openShared(f.Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("signal: open for publish: %w", err)
	}
	if _, err := io.WriteString(file, rec.String()); err != nil {
		_ = file.Close()
		return fmt.Errorf("signal: write %q: %w", rec, err)
	}
	return file.Close()
}

// Read returns the record currently held by the file. Opens that collide with
// a concurrent writer are retried a few times before giving up.
func (f *File) Read() (Record, error) {
	var content []byte
	op := func() error {
		file, err := openShared(f.Path(), os.O_RDONLY)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || !isSharingViolation(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer file.Close()
		content, err = io.ReadAll(file)
		if err == nil && len(content) == 0 {
			return errEmptyRead
		}
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(readRetryInterval), readRetries)
	if err := backoff.Retry(op, policy); err != nil && !errors.Is(err, errEmptyRead) {
		return Record{}, fmt.Errorf("signal: read %s: %w", f.Path(), err)
	}
	return ParseRecord(string(content))
}

// Remove deletes the signal file. A missing file is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("signal: remove: %w", err)
	}
	return nil
}

// Exists reports whether the signal file is present.
func (f *File) Exists() bool {
	_, err := os.Stat(f.Path())
	return err == nil
}
