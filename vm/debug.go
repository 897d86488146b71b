// Copyright 2025 The uor-labs Authors
// This file is part of the uor-labs library.
//
// The uor-labs library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The uor-labs library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the uor-labs library. If not, see <http://www.gnu.org/licenses/>.

package vm

import (
	"math/big"
	"sync"

	"github.com/UOR-Foundation/uor-labs/chunk"
)

// EventKind distinguishes the conditions that suspend a debugged VM.
type EventKind uint8

const (
	// EventBreak fires on a breakpoint or while single-stepping.
	EventBreak EventKind = iota
	// EventWatch fires when a watched address changes value.
	EventWatch
	// EventBrk fires on the BRK opcode.
	EventBrk
)

// Event describes one suspension. After receiving an Event the controller's
// owner must call Resume to let the VM continue.
type Event struct {
	Kind EventKind
	PC   int
	Op   chunk.Opcode
	Arg  *big.Int

	// Watchpoint details, set for EventWatch.
	Addr int64
	Old  *big.Int
	New  *big.Int

	// Depth is the evaluation stack depth at suspension.
	Depth int
}

// DebugController implements Hook with breakpoints by chunk index and
// watchpoints by memory address. Each hit sends one Event and blocks the VM
// until Resume. The zero value is not usable; use NewDebugController.
type DebugController struct {
	mu      sync.Mutex
	breaks  map[int]struct{}
	watches map[int64]*big.Int // address -> last observed value
	step    bool

	events chan Event
	resume chan struct{}
}

// NewDebugController creates a controller with no breakpoints or
// watchpoints set.
func NewDebugController() *DebugController {
	return &DebugController{
		breaks:  make(map[int]struct{}),
		watches: make(map[int64]*big.Int),
		events:  make(chan Event),
		resume:  make(chan struct{}),
	}
}

// AddBreak arms a breakpoint at the given chunk index.
func (d *DebugController) AddBreak(idx int) {
	d.mu.Lock()
	d.breaks[idx] = struct{}{}
	d.mu.Unlock()
}

// RemoveBreak disarms a breakpoint.
func (d *DebugController) RemoveBreak(idx int) {
	d.mu.Lock()
	delete(d.breaks, idx)
	d.mu.Unlock()
}

// AddWatch arms a watchpoint on a memory address. The first post-execute
// callback records the baseline value; the watchpoint fires on the first
// callback where the value differs.
func (d *DebugController) AddWatch(addr int64) {
	d.mu.Lock()
	d.watches[addr] = nil
	d.mu.Unlock()
}

// SetStep switches single-step mode: every instruction suspends.
func (d *DebugController) SetStep(on bool) {
	d.mu.Lock()
	d.step = on
	d.mu.Unlock()
}

// Events returns the suspension event stream.
func (d *DebugController) Events() <-chan Event { return d.events }

// Resume releases a VM suspended on an Event.
func (d *DebugController) Resume() { d.resume <- struct{}{} }

// Before implements Hook.
func (d *DebugController) Before(v *VM, pc int, op chunk.Opcode, arg *big.Int) {
	d.mu.Lock()
	_, hit := d.breaks[pc]
	hit = hit || d.step
	d.mu.Unlock()
	if !hit {
		return
	}
	d.suspend(Event{Kind: EventBreak, PC: pc, Op: op, Arg: arg, Depth: v.stack.Len()})
}

// After implements Hook; it checks every watched address against its
// snapshot.
func (d *DebugController) After(v *VM, pc int, op chunk.Opcode, arg *big.Int) {
	d.mu.Lock()
	addrs := make([]int64, 0, len(d.watches))
	for a := range d.watches {
		addrs = append(addrs, a)
	}
	d.mu.Unlock()

	key := new(big.Int)
	for _, addr := range addrs {
		cur := v.mem.Load(key.SetInt64(addr))
		d.mu.Lock()
		old := d.watches[addr]
		if old == nil {
			d.watches[addr] = cur
			d.mu.Unlock()
			continue
		}
		changed := old.Cmp(cur) != 0
		if changed {
			d.watches[addr] = cur
		}
		d.mu.Unlock()
		if changed {
			d.suspend(Event{
				Kind: EventWatch, PC: pc, Op: op, Arg: arg,
				Addr: addr, Old: old, New: cur, Depth: v.stack.Len(),
			})
		}
	}
}

// OnBreak implements Breaker for the BRK opcode.
func (d *DebugController) OnBreak(v *VM, pc int) {
	d.suspend(Event{Kind: EventBrk, PC: pc, Op: chunk.OpBrk, Depth: v.stack.Len()})
}

func (d *DebugController) suspend(ev Event) {
	d.events <- ev
	<-d.resume
}
