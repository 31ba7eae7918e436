// Package simulated contains an in-memory engineering model and simulation
// runtime. The binaries use it when no vendor engine is available, and the
// tests use it as their double.
package simulated

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/srediag/plcsim-starter/api"
)

// ErrUnknownDevice is returned for names not in the project.
var ErrUnknownDevice = errors.New("simulated: unknown device")

// Operation names passed to Hook and accepted by Fail.
const (
	OpTrust    = "trust"
	OpDownload = "download"
	OpApply    = "apply"
	OpOnline   = "online"
	OpOffline  = "offline"
	OpNetwork  = "network"
)

// DeviceSpec describes one controller of a project file.
type DeviceSpec struct {
	Name      string              `yaml:"name"`
	Type      string              `yaml:"type"`
	Interface api.NetworkIdentity `yaml:"interface"`
	// DownloadState overrides the download outcome; empty means success.
	DownloadState string `yaml:"download_state,omitempty"`
}

type projectFile struct {
	Devices []DeviceSpec `yaml:"devices"`
}

// Project is an engineering model backed by a list of devices.
type Project struct {
	mu      sync.Mutex
	devices map[string]*Device
	tokens  []*Token
	calls   []string
	faults  map[string]error

	// Hook, if set, runs before every device operation with the phase lock
	// of the project released.
	Hook func(op, device string)
}

var _ api.Engineering = (*Project)(nil)

// NewProject returns a project containing specs.
func NewProject(specs ...DeviceSpec) *Project {
	p := &Project{devices: make(map[string]*Device), faults: make(map[string]error)}
	for _, s := range specs {
		p.devices[s.Name] = &Device{project: p, spec: s}
	}
	return p
}

// LoadProject reads a YAML project file.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	var f projectFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	for i, d := range f.Devices {
		if d.Name == "" {
			return nil, fmt.Errorf("parse project %s: device %d has no name", path, i)
		}
	}
	return NewProject(f.Devices...), nil
}

// ExclusiveAccess hands out a new token.
func (p *Project) ExclusiveAccess(text string) (api.AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.faults[faultKey("access", "")]; err != nil {
		return nil, err
	}
	t := &Token{ID: uuid.New(), texts: []string{text}}
	p.tokens = append(p.tokens, t)
	return t, nil
}

// Device looks name up.
func (p *Project) Device(name string) (api.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return d, nil
}

// Lookup returns the concrete device for inspection.
func (p *Project) Lookup(name string) *Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.devices[name]
}

// Fail makes op on device return err until cleared with a nil err. The
// "access" op with an empty device fails ExclusiveAccess.
func (p *Project) Fail(op, device string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.faults, faultKey(op, device))
		return
	}
	p.faults[faultKey(op, device)] = err
}

// Cancel requests cancellation on the token handed out last.
func (p *Project) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.tokens); n > 0 {
		p.tokens[n-1].Cancel()
	}
}

// Tokens returns every token handed out so far.
func (p *Project) Tokens() []*Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Token(nil), p.tokens...)
}

// Calls returns the device operations in the order they ran, as "op:device".
func (p *Project) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Project) enter(op, device string) error {
	if p.Hook != nil {
		p.Hook(op, device)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op+":"+device)
	return p.faults[faultKey(op, device)]
}

func faultKey(op, device string) string { return op + "/" + device }

// Token is an exclusive access token with a uuid for log correlation.
type Token struct {
	ID uuid.UUID

	mu        sync.Mutex
	texts     []string
	cancelled bool
	released  bool
}

var _ api.AccessToken = (*Token)(nil)

func (t *Token) SetText(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts = append(t.texts, text)
}

func (t *Token) CancellationRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Token) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
}

// Cancel sets the cancellation flag, like the user pressing Cancel.
func (t *Token) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// Texts returns every progress text the token showed.
func (t *Token) Texts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.texts...)
}

// Released reports whether Release was called.
func (t *Token) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// Device is a controller of a Project.
type Device struct {
	project *Project
	spec    DeviceSpec

	mu         sync.Mutex
	online     bool
	downloaded bool
	trusted    api.TLSVerification
}

var _ api.Device = (*Device)(nil)

func (d *Device) Name() string           { return d.spec.Name }
func (d *Device) TypeIdentifier() string { return d.spec.Type }

func (d *Device) PrimaryInterface() (api.NetworkIdentity, error) {
	if err := d.project.enter(OpNetwork, d.spec.Name); err != nil {
		return api.NetworkIdentity{}, err
	}
	if d.spec.Interface.Address == "" {
		return api.NetworkIdentity{}, fmt.Errorf("%s has no address on X1", d.spec.Name)
	}
	return d.spec.Interface, nil
}

func (d *Device) GoOnline() error {
	if err := d.project.enter(OpOnline, d.spec.Name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online = true
	return nil
}

func (d *Device) GoOffline() error {
	if err := d.project.enter(OpOffline, d.spec.Name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online = false
	return nil
}

func (d *Device) TrustOnline(v api.TLSVerification) error {
	if err := d.project.enter(OpTrust, d.spec.Name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trusted = v
	return nil
}

func (d *Device) Download(target api.DownloadTarget, _ api.PreDownloadPolicy, _ api.PostDownloadPolicy) (api.DownloadResult, error) {
	if err := d.project.enter(OpDownload, d.spec.Name); err != nil {
		return api.DownloadResult{}, err
	}
	state := api.DownloadSuccess
	switch d.spec.DownloadState {
	case "error":
		state = api.DownloadError
	case "warning":
		state = api.DownloadWarning
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.downloaded = state == api.DownloadSuccess
	return api.DownloadResult{
		State:    state,
		Messages: []string{fmt.Sprintf("download to %s: %s", target, state)},
	}, nil
}

func (d *Device) ApplyConfiguration(api.DownloadTarget) error {
	return d.project.enter(OpApply, d.spec.Name)
}

// Online reports whether the device is online.
func (d *Device) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

// Downloaded reports whether the last download succeeded.
func (d *Device) Downloaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloaded
}
