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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessName(t *testing.T) {
	assert.Equal(t, "plcsim-starter", ProcessName("PLCSIM-Starter.exe"))
	assert.Equal(t, "plcsim-starter", ProcessName(`C:\Program Files\x\plcsim-starter.EXE`))
	assert.Equal(t, "plcsim-starter", ProcessName("/usr/local/bin/plcsim-starter"))
}

func TestHostCheck(t *testing.T) {
	procs := newFakeProcesses(1)
	procs.add("ide", 42)
	check := HostCheck(procs, 42)

	assert.NoError(t, check())
	procs.exit(42)
	assert.ErrorIs(t, check(), ErrHostGone)
}

func TestPeerCheck(t *testing.T) {
	procs := newFakeProcesses(1)
	procs.add("plcsim-starter", 1)
	check := PeerCheck(procs, "plcsim-starter.exe")

	assert.ErrorIs(t, check(), ErrPeerGone, "the watchdog alone is not enough")
	procs.add("plcsim-starter", 2)
	assert.NoError(t, check())
	procs.exit(2)
	assert.ErrorIs(t, check(), ErrPeerGone)
}

func TestEngineCheckArmsOnFirstSighting(t *testing.T) {
	procs := newFakeProcesses(1)
	check := EngineCheck(procs, "Siemens.Simatic.PlcSim.Advanced.UserInterface")

	assert.NoError(t, check(), "engine not started yet")
	procs.add("Siemens.Simatic.PlcSim.Advanced.UserInterface.exe", 77)
	assert.NoError(t, check())
	procs.exit(77)
	assert.ErrorIs(t, check(), ErrEngineGone)
}

func TestWatchdogProbe(t *testing.T) {
	procs := newFakeProcesses(1)
	procs.add("plcsim-starter", 1, 2)
	procs.add("engine", 9)

	p := WatchdogProbe(procs, "plcsim-starter", "engine", 5)
	assert.False(t, p.CheckFirst)
	assert.NoError(t, p.Check())

	procs.exit(9)
	assert.ErrorIs(t, p.Check(), ErrEngineGone)

	procs.exit(2)
	assert.ErrorIs(t, p.Check(), ErrPeerGone)
}
