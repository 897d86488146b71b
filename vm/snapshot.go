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
	"fmt"
	"math/big"

	"github.com/UOR-Foundation/uor-labs/chunk"
)

// FrameSnapshot is one serialized call frame.
type FrameSnapshot struct {
	Ret   int `json:"ret"`
	Entry int `json:"entry"`
}

// Snapshot is the full serializable state handed to a persistence backend
// by CHECKPOINT: stack, sparse memory, pc, call stack, allocator
// bookkeeping, and the identity hash of the chunk list.
type Snapshot struct {
	ProgramHash string            `json:"programHash"`
	PC          int               `json:"pc"`
	Steps       uint64            `json:"steps"`
	Stack       []string          `json:"stack"` // decimal, bottom first
	Memory      map[string]string `json:"memory"`
	Frames      []FrameSnapshot   `json:"frames"`
	Alloc       allocState        `json:"alloc"`
}

// Store is a checkpoint persistence backend.
type Store interface {
	Save(s *Snapshot) error
}

// Snapshot captures the VM's current state. The pc recorded is the chunk
// after the CHECKPOINT instruction, so a restored VM continues where the
// original did.
func (v *VM) Snapshot() *Snapshot {
	s := &Snapshot{
		ProgramHash: v.prog.HashHex(),
		PC:          v.pc,
		Steps:       v.steps,
		Memory:      v.mem.Cells(),
		Alloc:       v.mem.allocSnapshot(),
	}
	for _, val := range v.stack.Snapshot() {
		s.Stack = append(s.Stack, val.String())
	}
	for _, f := range v.frames {
		s.Frames = append(s.Frames, FrameSnapshot{Ret: f.ret, Entry: f.entry})
	}
	return s
}

// Restore rebuilds a VM from a snapshot. The program must hash to the
// snapshot's recorded identity.
func Restore(prog chunk.Program, s *Snapshot, cfg Config) (*VM, error) {
	if prog.HashHex() != s.ProgramHash {
		return nil, fmt.Errorf("%w: program hash %s, snapshot %s", ErrSnapshot, prog.HashHex(), s.ProgramHash)
	}
	v := New(prog, cfg)
	v.pc = s.PC
	v.steps = s.Steps

	for _, dec := range s.Stack {
		n, ok := new(big.Int).SetString(dec, 10)
		if !ok {
			return nil, fmt.Errorf("%w: stack value %q", ErrSnapshot, dec)
		}
		v.stack.Push(n)
	}
	addr := new(big.Int)
	for key, dec := range s.Memory {
		if _, ok := addr.SetString(key, 10); !ok {
			return nil, fmt.Errorf("%w: address %q", ErrSnapshot, key)
		}
		n, ok := new(big.Int).SetString(dec, 10)
		if !ok {
			return nil, fmt.Errorf("%w: cell value %q", ErrSnapshot, dec)
		}
		v.mem.Store(addr, n)
	}
	for _, f := range s.Frames {
		if f.Ret < 0 || f.Ret > len(prog) || f.Entry < 0 || f.Entry >= len(prog) {
			return nil, fmt.Errorf("%w: frame (%d, %d) outside program", ErrCallStackUnderflow, f.Entry, f.Ret)
		}
		v.frames = append(v.frames, frame{ret: f.Ret, entry: f.Entry})
	}
	v.mem.restoreAlloc(s.Alloc)
	return v, nil
}

// restoreAlloc reinstates allocator bookkeeping from a checkpoint.
func (m *Memory) restoreAlloc(st allocState) {
	if st.Next > 0 {
		m.next = st.Next
	}
	m.free = make(map[int64][]int64, len(st.Free))
	for size, bases := range st.Free {
		m.free[size] = append([]int64(nil), bases...)
	}
	m.live = make(map[int64]int64, len(st.Live))
	for base, size := range st.Live {
		m.live[base] = size
	}
}
