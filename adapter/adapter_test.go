package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/plcsim-starter/api"
)

type fakeInstance struct {
	name    string
	storage string
	calls   []string
	fail    map[string]error
}

func (f *fakeInstance) record(op string) error {
	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *fakeInstance) Name() string { return f.name }
func (f *fakeInstance) SetStoragePath(p string) error {
	f.storage = p
	return f.record("storage")
}
func (f *fakeInstance) PowerOn(time.Duration) error  { return f.record("poweron") }
func (f *fakeInstance) PowerOff(time.Duration) error { return f.record("poweroff") }
func (f *fakeInstance) SetNetworkIdentity(api.NetworkIdentity) error {
	return f.record("network")
}
func (f *fakeInstance) CleanupStoragePath() error { return f.record("cleanup") }
func (f *fakeInstance) Unregister() error         { return f.record("unregister") }

type fakeRuntime struct{ inst *fakeInstance }

func (r *fakeRuntime) RegisterInstance(name string) (api.Instance, error) {
	r.inst.name = name
	return r.inst, nil
}
func (r *fakeRuntime) Shutdown() error { return nil }

func TestTeardownAttemptsEveryStep(t *testing.T) {
	inst := &fakeInstance{name: "PLC_1", fail: map[string]error{
		"poweroff": errors.New("timeout"),
		"cleanup":  errors.New("locked"),
	}}
	e := NewEngine(&fakeRuntime{inst: inst}, EngineConfig{})

	err := e.Teardown(inst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "locked")
	assert.Equal(t, []string{"poweroff", "cleanup", "unregister"}, inst.calls)
}

func TestPrepareStorageChecksFreeSpace(t *testing.T) {
	root := t.TempDir()
	inst := &fakeInstance{}
	e := NewEngine(&fakeRuntime{inst: inst}, EngineConfig{StorageRoot: root, MinStorageFree: 1 << 30})

	e.usage = func(string) (*disk.UsageStat, error) { return &disk.UsageStat{Free: 1 << 20}, nil }
	registered, err := e.Register("PLC_1")
	require.NoError(t, err)
	_, err = e.PrepareStorage(registered)
	assert.ErrorIs(t, err, ErrStorageFull)

	e.usage = func(string) (*disk.UsageStat, error) { return &disk.UsageStat{Free: 1 << 40}, nil }
	path, err := e.PrepareStorage(registered)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "PLC_1"), path)
	assert.Equal(t, path, inst.storage)
}

type fakeTable struct {
	mu     sync.Mutex
	byName map[string][]int32
	alive  map[int32]bool
	killed []int32
}

func (f *fakeTable) Self() int32 { return 1 }
func (f *fakeTable) Exists(pid int32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid], nil
}
func (f *fakeTable) PIDsByName(name string) ([]int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byName[name], nil
}
func (f *fakeTable) Kill(pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	delete(f.alive, pid)
	return nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestEngineProcessAdoptsRunningEngine(t *testing.T) {
	table := &fakeTable{byName: map[string][]int32{"ui.exe": {42}}, alive: map[int32]bool{42: true}}
	p := NewEngineProcess(ProcessConfig{Executable: "/opt/engine/ui.exe"}, table, quietLogger())
	p.start = func(string) (int32, error) {
		t.Fatal("must not start a second engine")
		return 0, nil
	}

	require.NoError(t, p.EnsureRunning())
	require.NoError(t, p.EnsureRunning())
	assert.True(t, p.Running())

	require.NoError(t, p.Kill())
	assert.Equal(t, []int32{42}, table.killed)
	assert.False(t, p.Running())
	require.NoError(t, p.Kill())
}

func TestEngineProcessStartsEngine(t *testing.T) {
	table := &fakeTable{byName: map[string][]int32{}, alive: map[int32]bool{}}
	p := NewEngineProcess(ProcessConfig{Executable: "/opt/engine/ui.exe", StartTimeout: time.Second}, table, quietLogger())
	starts := 0
	p.start = func(exe string) (int32, error) {
		starts++
		assert.Equal(t, "/opt/engine/ui.exe", exe)
		table.mu.Lock()
		table.alive[7] = true
		table.mu.Unlock()
		return 7, nil
	}

	require.NoError(t, p.EnsureRunning())
	require.NoError(t, p.EnsureRunning())
	assert.Equal(t, 1, starts)
}

func TestEngineProcessWithoutExecutable(t *testing.T) {
	table := &fakeTable{byName: map[string][]int32{}, alive: map[int32]bool{}}
	p := NewEngineProcess(ProcessConfig{Name: "ui"}, table, quietLogger())
	assert.Error(t, p.EnsureRunning())
}

func TestLocate(t *testing.T) {
	root := t.TempDir()
	inst, err := Locate(root)
	require.NoError(t, err)
	assert.Equal(t, root, inst.Root)
	assert.Equal(t, filepath.Join(root, "API", "4.0"), inst.APIDir)
	assert.Equal(t, UserInterfaceExe, filepath.Base(inst.UserInterface))

	_, err = Locate(filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestAdminHandler(t *testing.T) {
	health := healthcheck.NewHandler()
	var failing atomic.Bool
	health.AddLivenessCheck("host", func() error {
		if failing.Load() {
			return errors.New("gone")
		}
		return nil
	})
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "plcsim_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := httptest.NewServer(AdminHandler(health, reg))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, _ := get("/live")
	assert.Equal(t, http.StatusOK, code)
	failing.Store(true)
	code, _ = get("/live")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, body := get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "plcsim_test_total 1")
}

func TestAdminServerStopsWithContext(t *testing.T) {
	srv, err := ListenAdmin("127.0.0.1:0", AdminHandler(nil, nil), quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("admin server did not stop")
	}
}

func TestGlobalTelemetryIsUsable(t *testing.T) {
	tel := GlobalTelemetry()
	_, span := tel.Tracer.Start(context.Background(), "probe")
	span.End()
	_, err := tel.Meter.Float64Histogram("probe")
	assert.NoError(t, err)
}
