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
package supervisor

import (
	"log/slog"
	"os"
	"sync"
)

// SignalRemover deletes the signal file. *signal.File satisfies it.
type SignalRemover interface {
	Remove() error
}

// Terminator is anything that can force the process down.
type Terminator interface {
	Shutdown(reason error)
}

// Shutdowner is the single forced-convergence point shared by every
// supervisor: delete the signal file, kill every other orchestrator instance,
// then end the calling process. Only the first call has any effect.
type Shutdowner struct {
	procs    ProcessTable
	selfName string
	signal   SignalRemover
	logger   *slog.Logger

	// Exit ends the process. Defaults to os.Exit.
	Exit func(code int)
	// BeforeExit runs right before Exit, e.g. to flush logs.
	BeforeExit func()

	once sync.Once
	done chan struct{}
}

var _ Terminator = (*Shutdowner)(nil)

// NewShutdowner returns a Shutdowner for the orchestrator executable named
// selfName. signal may be nil when there is no signal file to clean up.
func NewShutdowner(procs ProcessTable, selfName string, signal SignalRemover, logger *slog.Logger) *Shutdowner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shutdowner{
		procs:    procs,
		selfName: selfName,
		signal:   signal,
		logger:   logger.With("component", "shutdown"),
		Exit:     os.Exit,
		done:     make(chan struct{}),
	}
}

// Shutdown tears the process group down. It is safe to call from several
// goroutines and more than once.
func (s *Shutdowner) Shutdown(reason error) {
	s.once.Do(func() {
		defer close(s.done)
		s.logger.Warn("forcing shutdown", "reason", reason)

		if s.signal != nil {
			if err := s.signal.Remove(); err != nil {
				s.logger.Error("remove signal file", "error", err)
			}
		}

		self := s.procs.Self()
		pids, err := s.procs.PIDsByName(s.selfName)
		if err != nil {
			s.logger.Error("list orchestrator instances", "error", err)
		}
		for _, pid := range pids {
			if pid == self {
				continue
			}
			if err := s.procs.Kill(pid); err != nil {
				s.logger.Error("kill orchestrator instance", "pid", pid, "error", err)
			}
		}

		if s.BeforeExit != nil {
			s.BeforeExit()
		}
		s.Exit(0)
	})
}

// Done is closed once Shutdown has run. Only observable when Exit returns,
// which is the case in tests.
func (s *Shutdowner) Done() <-chan struct{} {
	return s.done
}
