// Package adapter provides adapters for plcsim-starter integration with external systems.
package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/plcsim-starter/api"
	"github.com/srediag/plcsim-starter/pkg/supervisor"
)

// ProcessConfig describes the engine UI executable.
type ProcessConfig struct {
	// Executable is the full path of the engine UI program.
	Executable string
	// Name is the process name used to adopt an engine that already runs.
	// Defaults to the base name of Executable.
	Name string
	// StartTimeout bounds the wait for a started process to show up.
	StartTimeout time.Duration
}

// EngineProcess starts, adopts and kills the engine UI process.
type EngineProcess struct {
	cfg    ProcessConfig
	procs  supervisor.ProcessTable
	logger *slog.Logger
	start  func(exe string) (int32, error)

	mu  sync.Mutex
	pid int32
}

var _ api.EngineProcess = (*EngineProcess)(nil)

// NewEngineProcess returns the launcher for cfg.Executable.
func NewEngineProcess(cfg ProcessConfig, procs supervisor.ProcessTable, logger *slog.Logger) *EngineProcess {
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.Executable)
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineProcess{
		cfg:    cfg,
		procs:  procs,
		logger: logger.With("component", "engine-process"),
		start:  startDetached,
	}
}

// EnsureRunning reuses the process it started before, adopts an engine
// that already runs, or starts a new one.
func (p *EngineProcess) EnsureRunning() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid != 0 {
		if ok, err := p.procs.Exists(p.pid); err == nil && ok {
			return nil
		}
		p.pid = 0
	}

	pids, err := p.procs.PIDsByName(p.cfg.Name)
	if err != nil {
		return fmt.Errorf("look for running engine: %w", err)
	}
	if len(pids) > 0 {
		p.pid = pids[0]
		p.logger.Info("adopted running engine", "pid", p.pid)
		return nil
	}

	if p.cfg.Executable == "" {
		return errors.New("engine executable not configured")
	}
	pid, err := p.start(p.cfg.Executable)
	if err != nil {
		return fmt.Errorf("start engine %s: %w", p.cfg.Executable, err)
	}

	wait := backoff.NewExponentialBackOff()
	wait.InitialInterval = 50 * time.Millisecond
	wait.MaxElapsedTime = p.cfg.StartTimeout
	err = backoff.Retry(func() error {
		ok, err := p.procs.Exists(pid)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("pid %d not visible yet", pid)
		}
		return nil
	}, wait)
	if err != nil {
		return fmt.Errorf("engine did not come up: %w", err)
	}
	p.pid = pid
	p.logger.Info("started engine", "pid", pid, "executable", p.cfg.Executable)
	return nil
}

// Running reports whether the tracked engine process is alive.
func (p *EngineProcess) Running() bool {
	p.mu.Lock()
	pid := p.pid
	p.mu.Unlock()
	if pid == 0 {
		return false
	}
	ok, err := p.procs.Exists(pid)
	return err == nil && ok
}

// Kill terminates the tracked engine process.
func (p *EngineProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return nil
	}
	pid := p.pid
	p.pid = 0
	if err := p.procs.Kill(pid); err != nil {
		return fmt.Errorf("kill engine %d: %w", pid, err)
	}
	p.logger.Info("killed engine", "pid", pid)
	return nil
}

func startDetached(exe string) (int32, error) {
	cmd := exec.Command(exe)
	cmd.Dir = filepath.Dir(exe)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := int32(cmd.Process.Pid)
	// reap it whenever it exits
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
