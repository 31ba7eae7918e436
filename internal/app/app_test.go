package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/plcsim-starter/internal/config"
	"github.com/srediag/plcsim-starter/internal/simulated"
	"github.com/srediag/plcsim-starter/pkg/eventlog"
	"github.com/srediag/plcsim-starter/pkg/signal"
)

const hostPID = 100

const projectYAML = `
devices:
  - name: PLC_1
    type: System:Device.S71500
    interface: {address: 192.168.0.1, mask: 255.255.255.0}
  - name: PLC_2
    type: System:Device.ET200SP
    interface: {address: 192.168.0.2, mask: 255.255.255.0}
  - name: HMI_1
    type: System:Device.HMI
`

type AppTestSuite struct {
	suite.Suite
	dir    string
	procs  *simulated.Processes
	exited chan int
	opts   Options
}

func (s *AppTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(s.dir, config.ProjectFile), []byte(projectYAML), 0o644))

	s.procs = simulated.NewProcesses(1, "plcsim-starter")
	s.procs.Add("devenv.exe", hostPID)
	s.exited = make(chan int, 1)

	cfg := config.DefaultConfig()
	cfg.HostPollInterval = 10 * time.Millisecond
	cfg.PeerPollInterval = 10 * time.Millisecond
	cfg.StopSettle = 0
	cfg.EngineExitWait = 0
	cfg.EngineRoot = filepath.Join(s.dir, "no-engine")
	cfg.StorageRoot = filepath.Join(s.dir, "instances")
	cfg.SignalDir = s.dir

	s.opts = Options{
		Config:   cfg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
		Procs:    s.procs,
		Exit: func(code int) {
			select {
			case s.exited <- code:
			default:
			}
		},
	}
}

func (s *AppTestSuite) run(device string) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- RunSession(context.Background(), s.opts, SessionArgs{Device: device, HostPID: hostPID, SignalDir: s.dir})
	}()
	return done
}

func (s *AppTestSuite) logContains(text string) bool {
	entries, err := eventlog.ReadEntries(filepath.Join(s.dir, eventlog.FileName))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.Contains(e.Message, text) {
			return true
		}
	}
	return false
}

func (s *AppTestSuite) signalFile() *signal.File {
	return signal.NewFile(s.dir, "")
}

// publishUntil writes rec and waits for the session to finish, writing it
// again if the first notification went unnoticed.
func (s *AppTestSuite) publishUntil(rec signal.Record, done <-chan error) error {
	for attempt := 0; attempt < 5; attempt++ {
		s.Require().NoError(s.signalFile().Publish(rec))
		select {
		case err := <-done:
			return err
		case <-time.After(time.Second):
		}
	}
	s.FailNow("session did not finish")
	return nil
}

func (s *AppTestSuite) TestSessionRunsUntilLastStop() {
	done := s.run("PLC_1")
	s.Require().Eventually(func() bool {
		return s.logContains("Start simulation of PLC_1 via PLCSIM Advanced Simulation is successful")
	}, 5*time.Second, 10*time.Millisecond)
	s.True(s.signalFile().Exists())

	err := s.publishUntil(signal.Record{Intent: signal.IntentStop, Device: "PLC_1"}, done)
	s.Require().NoError(err)
	s.True(s.logContains("Stop simulation of PLC_1 via PLCSIM Advanced Simulation is successful"))
	s.False(s.signalFile().Exists())
}

func (s *AppTestSuite) TestSessionAcceptsMoreDevices() {
	done := s.run("PLC_1")
	s.Require().Eventually(func() bool {
		return s.logContains("Start simulation of PLC_1")
	}, 5*time.Second, 10*time.Millisecond)

	s.Require().Eventually(func() bool {
		_ = s.signalFile().Publish(signal.Record{Intent: signal.IntentStart, Device: "PLC_2"})
		return s.logContains("Start simulation of PLC_2")
	}, 5*time.Second, 50*time.Millisecond)

	s.Require().Eventually(func() bool {
		_ = s.signalFile().Publish(signal.Record{Intent: signal.IntentStop, Device: "PLC_2"})
		return s.logContains("Stop simulation of PLC_2")
	}, 5*time.Second, 50*time.Millisecond)

	s.Require().NoError(s.publishUntil(signal.Record{Intent: signal.IntentStop, Device: "PLC_1"}, done))
}

func (s *AppTestSuite) TestSessionEndsWhenHostDies() {
	done := s.run("PLC_1")
	s.Require().Eventually(func() bool {
		return s.logContains("Start simulation of PLC_1")
	}, 5*time.Second, 10*time.Millisecond)

	s.procs.Exit(hostPID)
	select {
	case code := <-s.exited:
		s.Equal(0, code)
	case <-time.After(5 * time.Second):
		s.FailNow("host death did not force a shutdown")
	}
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("session did not return")
	}
	s.False(s.signalFile().Exists())
}

func (s *AppTestSuite) TestSessionRejectsIncompatibleDevice() {
	select {
	case err := <-s.run("HMI_1"):
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("session did not return")
	}
	s.True(s.logContains("Unsupported Controller Type HMI_1 via PLCSIM Advanced Simulator failed."))
	s.False(s.signalFile().Exists())
}

func (s *AppTestSuite) TestSessionLogsUnclassifiedFailures() {
	s.Require().NoError(os.Remove(filepath.Join(s.dir, config.ProjectFile)))
	select {
	case err := <-s.run("PLC_1"):
		s.Error(err)
	case <-time.After(5 * time.Second):
		s.FailNow("session did not return")
	}
	s.True(s.logContains("Start Simulation of PLC_1 via PLCSIM Advanced Simulator failed : open engineering project"))
	s.False(s.signalFile().Exists())
}

func (s *AppTestSuite) TestWatchdogShutsDownWhenPeerEnds() {
	s.procs.Add("plcsim-starter.exe", 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- RunWatchdog(ctx, s.opts) }()

	s.procs.Exit(2)
	select {
	case <-s.exited:
	case <-time.After(5 * time.Second):
		s.FailNow("watchdog did not shut down")
	}
	s.NoError(<-done)
}

func (s *AppTestSuite) TestWatchdogReturnsWithContext() {
	s.procs.Add("plcsim-starter", 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunWatchdog(ctx, s.opts) }()
	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("watchdog did not return")
	}
	s.Empty(s.exited)
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}

func TestParseSessionArgs(t *testing.T) {
	args, err := ParseSessionArgs([]string{"PLC_1", "4242", "/tmp/plcsim"})
	require.NoError(t, err)
	assert.Equal(t, SessionArgs{Device: "PLC_1", HostPID: 4242, SignalDir: "/tmp/plcsim"}, args)

	for _, bad := range [][]string{
		nil,
		{"PLC_1"},
		{"PLC_1", "abc", "/tmp"},
		{"PLC_1", "-1", "/tmp"},
		{"", "1", "/tmp"},
		{"PLC_1", "1", "/tmp", "extra"},
	} {
		_, err := ParseSessionArgs(bad)
		assert.ErrorIs(t, err, ErrUsage, "%v", bad)
	}
}
