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

// Package supervisor watches the processes the orchestrator depends on and
// forces a full shutdown as soon as one of them disappears.
package supervisor

import (
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessTable answers the questions the supervisors ask about the OS
// process list.
type ProcessTable interface {
	// Self returns the pid of the calling process.
	Self() int32
	Exists(pid int32) (bool, error)
	// PIDsByName returns the pids whose executable name matches name.
	PIDsByName(name string) ([]int32, error)
	Kill(pid int32) error
}

// ProcessName normalizes an executable name for comparison: lower case,
// without directory and without a ".exe" suffix.
func ProcessName(name string) string {
	name = strings.ToLower(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".exe")
}

// CountByName returns how many processes match name.
func CountByName(t ProcessTable, name string) (int, error) {
	pids, err := t.PIDsByName(name)
	if err != nil {
		return 0, err
	}
	return len(pids), nil
}

// SystemProcesses is the ProcessTable of the running machine.
type SystemProcesses struct{}

var _ ProcessTable = SystemProcesses{}

func (SystemProcesses) Self() int32 { return int32(os.Getpid()) }

func (SystemProcesses) Exists(pid int32) (bool, error) {
	ok, err := process.PidExists(pid)
	if err != nil {
		return false, fmt.Errorf("supervisor: query pid %d: %w", pid, err)
	}
	return ok, nil
}

func (SystemProcesses) PIDsByName(name string) ([]int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("supervisor: list processes: %w", err)
	}
	want := ProcessName(name)
	var pids []int32
	for _, p := range procs {
		n, err := p.Name()
		if err != nil {
			// exited between listing and inspection
			continue
		}
		if ProcessName(n) == want {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

func (SystemProcesses) Kill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		// already gone
		return nil
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("supervisor: kill %d: %w", pid, err)
	}
	return nil
}
