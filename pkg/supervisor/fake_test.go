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
	"sync"
)

type fakeProcesses struct {
	mu     sync.Mutex
	self   int32
	byName map[string][]int32
	alive  map[int32]bool
	killed []int32
}

func newFakeProcesses(self int32) *fakeProcesses {
	return &fakeProcesses{
		self:   self,
		byName: map[string][]int32{},
		alive:  map[int32]bool{self: true},
	}
}

func (f *fakeProcesses) add(name string, pids ...int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ProcessName(name)
	f.byName[key] = append(f.byName[key], pids...)
	for _, pid := range pids {
		f.alive[pid] = true
	}
}

func (f *fakeProcesses) exit(pid int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alive, pid)
	for name, pids := range f.byName {
		kept := pids[:0]
		for _, p := range pids {
			if p != pid {
				kept = append(kept, p)
			}
		}
		f.byName[name] = kept
	}
}

func (f *fakeProcesses) Self() int32 { return f.self }

func (f *fakeProcesses) Exists(pid int32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid], nil
}

func (f *fakeProcesses) PIDsByName(name string) ([]int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.byName[ProcessName(name)]...), nil
}

func (f *fakeProcesses) Kill(pid int32) error {
	f.mu.Lock()
	f.killed = append(f.killed, pid)
	f.mu.Unlock()
	f.exit(pid)
	return nil
}

func (f *fakeProcesses) killedPIDs() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.killed...)
}
