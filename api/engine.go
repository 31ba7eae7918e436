// Package api defines public API contracts for plcsim-starter.
package api

import "time"

// NetworkIdentity is the IPv4 suite pushed into a simulated instance.
// Gateway is empty when the device does not use a router.
type NetworkIdentity struct {
	Address string `yaml:"address"`
	Mask    string `yaml:"mask"`
	Gateway string `yaml:"gateway,omitempty"`
}

// Runtime is the simulation engine's instance manager.
type Runtime interface {
	// RegisterInstance creates a new engine instance under name.
	RegisterInstance(name string) (Instance, error)
	// Shutdown stops the runtime manager. Called once the last instance is gone.
	Shutdown() error
}

// Instance is one registered virtual controller inside the engine.
type Instance interface {
	Name() string
	SetStoragePath(path string) error
	PowerOn(timeout time.Duration) error
	PowerOff(timeout time.Duration) error
	SetNetworkIdentity(id NetworkIdentity) error
	CleanupStoragePath() error
	Unregister() error
}

// EngineProcess is the engine UI process the runtime depends on.
type EngineProcess interface {
	// EnsureRunning starts the process unless it already runs. Idempotent.
	EnsureRunning() error
	// Running reports whether the process is alive.
	Running() bool
	// Kill terminates the process. A process that is already gone is not an error.
	Kill() error
}
