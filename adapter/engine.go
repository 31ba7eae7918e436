// Package adapter provides adapters for plcsim-starter integration with external systems.
package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/srediag/plcsim-starter/api"
)

// ErrStorageFull is returned when the storage root lacks the configured free space.
var ErrStorageFull = errors.New("adapter: not enough free space for instance storage")

// EngineConfig bounds the calls made into the simulation runtime.
type EngineConfig struct {
	// PowerTimeout bounds PowerOn and PowerOff.
	PowerTimeout time.Duration
	// StorageRoot receives one storage directory per instance.
	StorageRoot string
	// MinStorageFree is the free space required before registering an instance.
	MinStorageFree uint64
}

// Engine is the façade the session state machine drives. It adds timeouts,
// a storage preflight and best-effort teardown on top of api.Runtime.
type Engine struct {
	rt    api.Runtime
	cfg   EngineConfig
	usage func(path string) (*disk.UsageStat, error)
}

// NewEngine wraps rt.
func NewEngine(rt api.Runtime, cfg EngineConfig) *Engine {
	if cfg.StorageRoot == "" {
		cfg.StorageRoot = os.TempDir()
	}
	return &Engine{rt: rt, cfg: cfg, usage: disk.Usage}
}

// Register creates the engine instance for device.
func (e *Engine) Register(device string) (api.Instance, error) {
	inst, err := e.rt.RegisterInstance(device)
	if err != nil {
		return nil, fmt.Errorf("register instance %s: %w", device, err)
	}
	return inst, nil
}

// PrepareStorage assigns the instance its private storage directory and
// returns the path.
func (e *Engine) PrepareStorage(inst api.Instance) (string, error) {
	if err := os.MkdirAll(e.cfg.StorageRoot, 0o755); err != nil {
		return "", fmt.Errorf("create storage root: %w", err)
	}
	if e.cfg.MinStorageFree > 0 {
		stat, err := e.usage(e.cfg.StorageRoot)
		if err != nil {
			return "", fmt.Errorf("storage usage of %s: %w", e.cfg.StorageRoot, err)
		}
		if stat.Free < e.cfg.MinStorageFree {
			return "", fmt.Errorf("%w: %d bytes free in %s, need %d",
				ErrStorageFull, stat.Free, e.cfg.StorageRoot, e.cfg.MinStorageFree)
		}
	}
	path := filepath.Join(e.cfg.StorageRoot, inst.Name())
	if err := inst.SetStoragePath(path); err != nil {
		return "", fmt.Errorf("set storage path of %s: %w", inst.Name(), err)
	}
	return path, nil
}

// PowerOn powers inst on, bounded by the configured timeout.
func (e *Engine) PowerOn(inst api.Instance) error {
	if err := inst.PowerOn(e.cfg.PowerTimeout); err != nil {
		return fmt.Errorf("power on %s: %w", inst.Name(), err)
	}
	return nil
}

// SetNetworkIdentity pushes id into inst.
func (e *Engine) SetNetworkIdentity(inst api.Instance, id api.NetworkIdentity) error {
	if err := inst.SetNetworkIdentity(id); err != nil {
		return fmt.Errorf("set network identity of %s: %w", inst.Name(), err)
	}
	return nil
}

// Teardown powers inst off, cleans its storage and unregisters it. Every
// step runs even if an earlier one failed; the failures are joined.
func (e *Engine) Teardown(inst api.Instance) error {
	var errs []error
	if err := inst.PowerOff(e.cfg.PowerTimeout); err != nil {
		errs = append(errs, fmt.Errorf("power off %s: %w", inst.Name(), err))
	}
	if err := inst.CleanupStoragePath(); err != nil {
		errs = append(errs, fmt.Errorf("cleanup storage of %s: %w", inst.Name(), err))
	}
	if err := inst.Unregister(); err != nil {
		errs = append(errs, fmt.Errorf("unregister %s: %w", inst.Name(), err))
	}
	return errors.Join(errs...)
}

// Shutdown stops the runtime manager.
func (e *Engine) Shutdown() error {
	if err := e.rt.Shutdown(); err != nil {
		return fmt.Errorf("shutdown runtime: %w", err)
	}
	return nil
}
