package simulated

import (
	"sort"
	"sync"

	"github.com/srediag/plcsim-starter/pkg/supervisor"
)

// Processes is an in-memory process table.
type Processes struct {
	mu     sync.Mutex
	self   int32
	names  map[int32]string
	killed []int32
}

var _ supervisor.ProcessTable = (*Processes)(nil)

// NewProcesses returns a table holding only the calling process.
func NewProcesses(self int32, selfName string) *Processes {
	return &Processes{self: self, names: map[int32]string{self: selfName}}
}

// Add registers pids under name.
func (p *Processes) Add(name string, pids ...int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pid := range pids {
		p.names[pid] = name
	}
}

// Exit removes pid as if the process ended on its own.
func (p *Processes) Exit(pid int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.names, pid)
}

// Killed returns the pids passed to Kill.
func (p *Processes) Killed() []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int32(nil), p.killed...)
}

func (p *Processes) Self() int32 { return p.self }

func (p *Processes) Exists(pid int32) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.names[pid]
	return ok, nil
}

func (p *Processes) PIDsByName(name string) ([]int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := supervisor.ProcessName(name)
	var pids []int32
	for pid, n := range p.names {
		if supervisor.ProcessName(n) == want {
			pids = append(pids, pid)
		}
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids, nil
}

func (p *Processes) Kill(pid int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = append(p.killed, pid)
	delete(p.names, pid)
	return nil
}
