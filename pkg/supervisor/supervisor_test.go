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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/plcsim-starter/pkg/signal"
)

type SupervisorTestSuite struct {
	suite.Suite
	procs    *fakeProcesses
	file     *signal.File
	shutdown *Shutdowner
	exits    atomic.Int32
}

func (s *SupervisorTestSuite) SetupTest() {
	s.procs = newFakeProcesses(100)
	s.procs.add("plcsim-starter", 100, 101, 102)
	s.procs.add("ide", 4242)

	s.file = signal.NewFile(filepath.Join(s.T().TempDir(), "sig"), "")
	s.Require().NoError(s.file.Ensure())

	s.exits.Store(0)
	s.shutdown = NewShutdowner(s.procs, "plcsim-starter", s.file, nil)
	s.shutdown.Exit = func(int) { s.exits.Add(1) }
}

func (s *SupervisorTestSuite) TestShutdownKillsPeersAndRemovesSignalFile() {
	s.shutdown.Shutdown(errors.New("test"))

	s.False(s.file.Exists())
	s.ElementsMatch([]int32{101, 102}, s.procs.killedPIDs())
	s.Equal(int32(1), s.exits.Load())
}

func (s *SupervisorTestSuite) TestShutdownIsIdempotent() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.shutdown.Shutdown(errors.New("concurrent"))
		}()
	}
	wg.Wait()
	s.shutdown.Shutdown(errors.New("late"))

	s.Equal(int32(1), s.exits.Load())
	s.Len(s.procs.killedPIDs(), 2)
	select {
	case <-s.shutdown.Done():
	default:
		s.Fail("done not closed")
	}
}

func (s *SupervisorTestSuite) TestHostDeathTriggersShutdownWithinOneInterval() {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	s.Require().NoError(err)

	interval := 20 * time.Millisecond
	sup, err := New(s.shutdown, nil, metrics, HostProbe(s.procs, 4242, interval))
	s.Require().NoError(err)
	defer sup.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Require().NoError(sup.Start(ctx))

	s.Require().Eventually(func() bool {
		return testutil.ToFloat64(metrics.Checks.WithLabelValues("host-process", "ok")) >= 1
	}, time.Second, 5*time.Millisecond)
	s.True(s.file.Exists())

	s.procs.exit(4242)
	s.Require().Eventually(func() bool {
		return s.exits.Load() == 1
	}, 10*interval, 2*time.Millisecond)
	s.False(s.file.Exists())
	s.Equal(float64(1), testutil.ToFloat64(metrics.Checks.WithLabelValues("host-process", "failed")))
}

func (s *SupervisorTestSuite) TestHealthHandlerReportsProbeState() {
	sup, err := New(s.shutdown, nil, nil, HostProbe(s.procs, 4242, time.Hour))
	s.Require().NoError(err)
	defer sup.Stop()

	rec := httptest.NewRecorder()
	sup.Health().LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	s.Equal(http.StatusOK, rec.Code)

	s.procs.exit(4242)
	rec = httptest.NewRecorder()
	sup.Health().LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	s.Equal(http.StatusServiceUnavailable, rec.Code)
}

func (s *SupervisorTestSuite) TestCancelledContextStopsProbes() {
	sup, err := New(s.shutdown, nil, nil, WatchdogProbe(s.procs, "plcsim-starter", "engine", 10*time.Millisecond))
	s.Require().NoError(err)
	defer sup.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	s.Require().NoError(sup.Start(ctx))
	cancel()
	s.procs.exit(101)
	s.procs.exit(102)
	time.Sleep(50 * time.Millisecond)
	s.Equal(int32(0), s.exits.Load())
}

func (s *SupervisorTestSuite) TestNewRejectsBadProbes() {
	_, err := New(s.shutdown, nil, nil)
	s.Error(err)
	_, err = New(s.shutdown, nil, nil, Probe{Name: "zero", Check: func() error { return nil }})
	s.Error(err)
}

func TestSupervisorTestSuite(t *testing.T) {
	suite.Run(t, new(SupervisorTestSuite))
}

func TestSystemProcessesSeesSelf(t *testing.T) {
	var procs SystemProcesses
	self := procs.Self()

	ok, err := procs.Exists(self)
	require.NoError(t, err)
	assert.True(t, ok)

	exe, err := os.Executable()
	require.NoError(t, err)
	pids, err := procs.PIDsByName(filepath.Base(exe))
	require.NoError(t, err)
	assert.Contains(t, pids, self)
}
