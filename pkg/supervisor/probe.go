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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/heptiolabs/healthcheck"
)

var (
	ErrHostGone   = errors.New("host process is gone")
	ErrPeerGone   = errors.New("orchestrator peer is gone")
	ErrEngineGone = errors.New("simulation engine process is gone")
)

// Probe is one liveness condition polled at a fixed interval.
type Probe struct {
	Name     string
	Interval time.Duration
	// CheckFirst runs the check before the first wait instead of after it.
	CheckFirst bool
	Check      healthcheck.Check
}

// HostCheck fails once pid no longer exists.
func HostCheck(t ProcessTable, pid int32) healthcheck.Check {
	return func() error {
		ok, err := t.Exists(pid)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: pid %d", ErrHostGone, pid)
		}
		return nil
	}
}

// PeerCheck fails when fewer than two processes named selfName run: the
// watchdog itself plus the orchestrator it guards.
func PeerCheck(t ProcessTable, selfName string) healthcheck.Check {
	return func() error {
		n, err := CountByName(t, selfName)
		if err != nil {
			return err
		}
		if n < 2 {
			return fmt.Errorf("%w: %d instance(s) of %s", ErrPeerGone, n, selfName)
		}
		return nil
	}
}

// EngineCheck fails when no engine UI process runs. It only arms after the
// engine has been seen once, so a watchdog started ahead of the engine does
// not fire.
func EngineCheck(t ProcessTable, engineName string) healthcheck.Check {
	var seen atomic.Bool
	return func() error {
		n, err := CountByName(t, engineName)
		if err != nil {
			return err
		}
		if n > 0 {
			seen.Store(true)
			return nil
		}
		if seen.Load() {
			return fmt.Errorf("%w: %s", ErrEngineGone, engineName)
		}
		return nil
	}
}

// HostProbe polls the host process, checking before each wait.
func HostProbe(t ProcessTable, pid int32, interval time.Duration) Probe {
	return Probe{
		Name:       "host-process",
		Interval:   interval,
		CheckFirst: true,
		Check:      HostCheck(t, pid),
	}
}

// WatchdogProbe polls the orchestrator peer and the engine UI process,
// waiting before each check.
func WatchdogProbe(t ProcessTable, selfName, engineName string, interval time.Duration) Probe {
	peer := PeerCheck(t, selfName)
	engine := EngineCheck(t, engineName)
	return Probe{
		Name:     "peer-processes",
		Interval: interval,
		Check: func() error {
			if err := peer(); err != nil {
				return err
			}
			return engine()
		},
	}
}
