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
	"errors"
	"fmt"
	"time"

	"github.com/srediag/plcsim-starter/api"
)

var (
	// ErrRejected marks intents that were validated away without side effects.
	ErrRejected = errors.New("session: intent rejected")
	// ErrIncompatibleDevice is returned for unknown devices or device types
	// outside the allow-list.
	ErrIncompatibleDevice = errors.New("session: incompatible device")
	// ErrUnknownSession is returned by Stop for devices that are not Online.
	ErrUnknownSession = errors.New("session: device is not simulated")
	// ErrAlreadyTracked is returned by Start for devices that have a session.
	ErrAlreadyTracked = errors.New("session: device is already simulated")
	// ErrTokenOutstanding is returned when a phase starts while another
	// phase still holds the exclusive access token.
	ErrTokenOutstanding = errors.New("session: exclusive access token outstanding")
	// ErrCancelled is returned when the user cancelled a phase.
	ErrCancelled = errors.New("session: cancelled by user")
	// ErrBringUpFailed is returned when a bring-up failed and the device was
	// torn down.
	ErrBringUpFailed = errors.New("session: bring-up failed")
)

// Handled reports whether err was fully dealt with by the orchestrator,
// meaning it was logged and the session table is consistent.
func Handled(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrCancelled) || errors.Is(err, ErrBringUpFailed)
}

// DefaultAllowedTypes are the controller families the engine can simulate.
var DefaultAllowedTypes = []string{"System:Device.S71500", "System:Device.ET200SP"}

// Config tunes the state machine.
type Config struct {
	AllowedTypes []string
	Target       api.DownloadTarget
	Pre          api.PreDownloadPolicy
	Post         api.PostDownloadPolicy
	// StopSettle is waited before the engine is shut down on the last Stop.
	StopSettle time.Duration
	// EngineExitWait is waited after the engine process was killed.
	EngineExitWait time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		AllowedTypes:   append([]string(nil), DefaultAllowedTypes...),
		Target:         api.DefaultDownloadTarget(),
		Pre:            api.DefaultPreDownloadPolicy(),
		Post:           api.DefaultPostDownloadPolicy(),
		StopSettle:     2 * time.Second,
		EngineExitWait: 5 * time.Second,
	}
}

// VerifyConfig checks cfg for values the state machine cannot work with.
func VerifyConfig(cfg Config) error {
	if len(cfg.AllowedTypes) == 0 {
		return errors.New("session: allow-list is empty")
	}
	if cfg.StopSettle < 0 || cfg.EngineExitWait < 0 {
		return fmt.Errorf("session: negative delay (settle %v, exit %v)", cfg.StopSettle, cfg.EngineExitWait)
	}
	if cfg.Target.Mode == "" || cfg.Target.PCInterface == "" || cfg.Target.TargetInterface == "" {
		return fmt.Errorf("session: incomplete download target %q", cfg.Target.String())
	}
	return nil
}
