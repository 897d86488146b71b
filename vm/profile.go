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
	"io"
	"math/big"
	"sort"
	"strings"

	"github.com/UOR-Foundation/uor-labs/chunk"
)

// Profiler implements Hook with per-opcode execution counters and a sampled
// call-stack histogram in folded-stack form, one line per distinct stack:
//
//	main;fn_4;fn_9 count
//
// Frames are named by their entry chunk index. The zero value is not usable;
// use NewProfiler.
type Profiler struct {
	counts   []uint64
	samples  map[string]uint64
	interval uint64 // sample every interval-th instruction
	steps    uint64
}

// NewProfiler creates a profiler sampling every instruction. interval values
// above 1 thin the call-stack histogram without affecting opcode counts.
func NewProfiler(interval uint64) *Profiler {
	if interval == 0 {
		interval = 1
	}
	return &Profiler{
		counts:   make([]uint64, chunk.Count()),
		samples:  make(map[string]uint64),
		interval: interval,
	}
}

// Before implements Hook.
func (p *Profiler) Before(v *VM, pc int, op chunk.Opcode, arg *big.Int) {
	if int(op) < len(p.counts) {
		p.counts[op]++
	}
	p.steps++
	if p.steps%p.interval == 0 {
		p.samples[foldFrames(v)]++
	}
}

// After implements Hook.
func (p *Profiler) After(*VM, int, chunk.Opcode, *big.Int) {}

// Counts returns the per-opcode execution counts keyed by mnemonic,
// omitting opcodes that never ran.
func (p *Profiler) Counts() map[string]uint64 {
	out := make(map[string]uint64)
	for op, n := range p.counts {
		if n > 0 {
			out[chunk.Opcode(op).String()] = n
		}
	}
	return out
}

// Total returns the number of instructions profiled.
func (p *Profiler) Total() uint64 { return p.steps }

// WriteFolded writes the sampled histogram in folded-stack form, sorted by
// stack name for determinism.
func (p *Profiler) WriteFolded(w io.Writer) error {
	stacks := make([]string, 0, len(p.samples))
	for s := range p.samples {
		stacks = append(stacks, s)
	}
	sort.Strings(stacks)
	for _, s := range stacks {
		if _, err := fmt.Fprintf(w, "%s %d\n", s, p.samples[s]); err != nil {
			return err
		}
	}
	return nil
}

// foldFrames renders the VM's call stack as a semicolon-joined frame list,
// outermost first.
func foldFrames(v *VM) string {
	var b strings.Builder
	b.WriteString("main")
	for _, f := range v.frames {
		fmt.Fprintf(&b, ";fn_%d", f.entry)
	}
	return b.String()
}
