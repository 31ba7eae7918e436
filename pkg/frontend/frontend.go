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

// Package frontend is the host side of the signal protocol: it launches the
// orchestrator processes when needed and publishes Start and Stop intents.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/srediag/plcsim-starter/pkg/signal"
	"github.com/srediag/plcsim-starter/pkg/supervisor"
)

// ErrNotRunning is returned by Stop when no orchestrator process runs.
var ErrNotRunning = errors.New("frontend: orchestrator is not running")

// LaunchFunc starts exe with args without waiting for it.
type LaunchFunc func(ctx context.Context, exe string, args []string) error

// Options configure a Client.
type Options struct {
	// SignalDir holds the signal file and the event log.
	SignalDir string
	// SignalFile defaults to signal.FileName.
	SignalFile string
	// Executable is the orchestrator binary.
	Executable string
	// ProcessName identifies running orchestrators, defaults to the base
	// name of Executable.
	ProcessName string
	// HostPID is the process whose death ends the simulations.
	HostPID int32
	// Flags are passed to the orchestrator ahead of its positional arguments.
	Flags  []string
	Procs  supervisor.ProcessTable
	Logger *slog.Logger
	// Launch defaults to starting a detached child process.
	Launch LaunchFunc
}

// Client publishes intents for one host process.
type Client struct {
	opts Options
	file *signal.File
}

// New validates opts and returns a client.
func New(opts Options) (*Client, error) {
	switch {
	case opts.SignalDir == "":
		return nil, errors.New("frontend: signal directory is required")
	case opts.Executable == "":
		return nil, errors.New("frontend: orchestrator executable is required")
	case opts.HostPID <= 0:
		return nil, fmt.Errorf("frontend: invalid host pid %d", opts.HostPID)
	}
	if opts.ProcessName == "" {
		opts.ProcessName = filepath.Base(opts.Executable)
	}
	if opts.Procs == nil {
		opts.Procs = supervisor.SystemProcesses{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Launch == nil {
		opts.Launch = launchDetached
	}
	opts.Logger = opts.Logger.With("component", "frontend")
	return &Client{opts: opts, file: signal.NewFile(opts.SignalDir, opts.SignalFile)}, nil
}

// File returns the signal file the client writes.
func (c *Client) File() *signal.File { return c.file }

// Start asks for device to be simulated. Without a running orchestrator it
// launches the session process with device as its first Start, and the
// watchdog next to it.
func (c *Client) Start(ctx context.Context, device string) error {
	if device == "" {
		return errors.New("frontend: empty device name")
	}
	if err := os.MkdirAll(c.opts.SignalDir, 0o755); err != nil {
		return fmt.Errorf("frontend: create signal directory: %w", err)
	}
	if err := c.file.Ensure(); err != nil {
		return err
	}
	running, err := c.running()
	if err != nil {
		return err
	}
	if !running {
		session := append(append([]string(nil), c.opts.Flags...),
			device, strconv.FormatInt(int64(c.opts.HostPID), 10), c.opts.SignalDir)
		if err := c.opts.Launch(ctx, c.opts.Executable, session); err != nil {
			return fmt.Errorf("frontend: launch session process: %w", err)
		}
		if err := c.opts.Launch(ctx, c.opts.Executable, append([]string(nil), c.opts.Flags...)); err != nil {
			return fmt.Errorf("frontend: launch watchdog: %w", err)
		}
		c.opts.Logger.Info("launched orchestrator", "device", device, "host_pid", c.opts.HostPID)
	}
	return c.publish(signal.Record{Intent: signal.IntentStart, Device: device})
}

// Stop asks for the simulation of device to end.
func (c *Client) Stop(_ context.Context, device string) error {
	if device == "" {
		return errors.New("frontend: empty device name")
	}
	running, err := c.running()
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}
	return c.publish(signal.Record{Intent: signal.IntentStop, Device: device})
}

// Last returns the record currently in the signal file, which is a Cancel
// record after the user cancelled a bring-up.
func (c *Client) Last() (signal.Record, error) {
	return c.file.Read()
}

func (c *Client) running() (bool, error) {
	pids, err := c.opts.Procs.PIDsByName(c.opts.ProcessName)
	if err != nil {
		return false, fmt.Errorf("frontend: list orchestrators: %w", err)
	}
	return len(pids) > 0, nil
}

func (c *Client) publish(rec signal.Record) error {
	if err := c.file.Publish(rec); err != nil {
		return fmt.Errorf("frontend: publish %s: %w", rec, err)
	}
	c.opts.Logger.Debug("published intent", "record", rec.String())
	return nil
}

func launchDetached(_ context.Context, exe string, args []string) error {
	cmd := exec.Command(exe, args...)
	cmd.Dir = filepath.Dir(exe)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
