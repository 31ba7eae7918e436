package simulated

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/srediag/plcsim-starter/api"
)

// ErrDuplicateInstance is returned when a name is registered twice.
var ErrDuplicateInstance = errors.New("simulated: instance already registered")

// Runtime operation names accepted by Runtime.Fail.
const (
	OpRegister   = "register"
	OpPowerOn    = "poweron"
	OpPowerOff   = "poweroff"
	OpCleanup    = "cleanup"
	OpUnregister = "unregister"
	OpShutdown   = "shutdown"
)

// Runtime is an in-memory instance manager. Storage paths are real
// directories, created on power-on and removed on cleanup.
type Runtime struct {
	mu        sync.Mutex
	instances map[string]*Instance
	faults    map[string]error
	shutdowns int
}

var _ api.Runtime = (*Runtime)(nil)

// NewRuntime returns an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{instances: make(map[string]*Instance), faults: make(map[string]error)}
}

func (r *Runtime) RegisterInstance(name string) (api.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fault(OpRegister, name); err != nil {
		return nil, err
	}
	if _, ok := r.instances[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInstance, name)
	}
	inst := &Instance{runtime: r, name: name}
	r.instances[name] = inst
	return inst, nil
}

func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdowns++
	return r.fault(OpShutdown, "")
}

// Fail makes op on the named instance return err; a nil err clears it.
func (r *Runtime) Fail(op, name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.faults, faultKey(op, name))
		return
	}
	r.faults[faultKey(op, name)] = err
}

// Names returns the registered instance names in order.
func (r *Runtime) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.instances))
	for n := range r.instances {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Instance returns the registered instance called name, or nil.
func (r *Runtime) Instance(name string) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[name]
}

// Shutdowns counts Shutdown calls.
func (r *Runtime) Shutdowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdowns
}

func (r *Runtime) fault(op, name string) error {
	return r.faults[faultKey(op, name)]
}

// Instance is one registered virtual controller.
type Instance struct {
	runtime *Runtime
	name    string

	mu       sync.Mutex
	storage  string
	powered  bool
	identity api.NetworkIdentity
}

var _ api.Instance = (*Instance)(nil)

func (i *Instance) Name() string { return i.name }

func (i *Instance) SetStoragePath(path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.storage = path
	return nil
}

func (i *Instance) PowerOn(timeout time.Duration) error {
	if err := i.check(OpPowerOn); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.storage != "" {
		if err := os.MkdirAll(i.storage, 0o755); err != nil {
			return fmt.Errorf("create storage: %w", err)
		}
	}
	i.powered = true
	return nil
}

func (i *Instance) PowerOff(timeout time.Duration) error {
	if err := i.check(OpPowerOff); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.powered = false
	return nil
}

func (i *Instance) SetNetworkIdentity(id api.NetworkIdentity) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.identity = id
	return nil
}

func (i *Instance) CleanupStoragePath() error {
	if err := i.check(OpCleanup); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.storage == "" {
		return nil
	}
	return os.RemoveAll(i.storage)
}

func (i *Instance) Unregister() error {
	i.runtime.mu.Lock()
	defer i.runtime.mu.Unlock()
	if err := i.runtime.fault(OpUnregister, i.name); err != nil {
		return err
	}
	delete(i.runtime.instances, i.name)
	return nil
}

// Powered reports whether the instance is powered on.
func (i *Instance) Powered() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.powered
}

// Identity returns the network identity pushed into the instance.
func (i *Instance) Identity() api.NetworkIdentity {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.identity
}

// StoragePath returns the assigned storage directory.
func (i *Instance) StoragePath() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.storage
}

func (i *Instance) check(op string) error {
	i.runtime.mu.Lock()
	defer i.runtime.mu.Unlock()
	return i.runtime.fault(op, i.name)
}

// Process stands in for the engine UI process.
type Process struct {
	mu      sync.Mutex
	running bool
	starts  int
	kills   int
	// StartErr, if set, is returned by EnsureRunning.
	StartErr error
}

var _ api.EngineProcess = (*Process)(nil)

func (p *Process) EnsureRunning() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return p.StartErr
	}
	if !p.running {
		p.running = true
		p.starts++
	}
	return nil
}

func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.running = false
		p.kills++
	}
	return nil
}

// Starts counts how often the process was started.
func (p *Process) Starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

// Kills counts how often a running process was killed.
func (p *Process) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}
