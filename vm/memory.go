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
	"sort"
)

// Memory is the sparse address-indexed value store of one VM instance.
// Undefined reads yield 0. Cells are keyed by the address's decimal form so
// the full signed arbitrary-precision address space is reachable; the
// allocator itself hands out int64 bases from a monotone high-water mark.
type Memory struct {
	cells map[string]*big.Int
	next  int64             // high-water mark; bases start at 1
	free  map[int64][]int64 // size -> reusable bases
	live  map[int64]int64   // base -> size of live allocations
}

// NewMemory returns an empty memory.
func NewMemory() *Memory {
	return &Memory{
		cells: make(map[string]*big.Int),
		next:  1,
		free:  make(map[int64][]int64),
		live:  make(map[int64]int64),
	}
}

// Load returns a copy of the value at addr, or 0 for an undefined address.
func (m *Memory) Load(addr *big.Int) *big.Int {
	if v, ok := m.cells[addr.String()]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Store writes a copy of v at addr. Storing 0 erases the cell, keeping the
// sparse map equivalent to its dense reading.
func (m *Memory) Store(addr, v *big.Int) {
	key := addr.String()
	if v.Sign() == 0 {
		delete(m.cells, key)
		return
	}
	m.cells[key] = new(big.Int).Set(v)
}

// Alloc reserves n contiguous currently-unallocated addresses and returns
// the base. An exact-size free block is reused when one exists; otherwise
// the high-water mark is extended.
func (m *Memory) Alloc(n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: alloc of %d words", ErrMemoryOutOfRange, n)
	}
	if bases := m.free[n]; len(bases) > 0 {
		base := bases[len(bases)-1]
		m.free[n] = bases[:len(bases)-1]
		m.live[base] = n
		return base, nil
	}
	base := m.next
	m.next += n
	m.live[base] = n
	return base, nil
}

// Free releases the live allocation at base, clearing its cells and
// returning the range to the free list. An unknown base is an error.
func (m *Memory) Free(base int64) error {
	size, ok := m.live[base]
	if !ok {
		return fmt.Errorf("%w: free of base %d", ErrMemoryOutOfRange, base)
	}
	addr := new(big.Int)
	for i := int64(0); i < size; i++ {
		delete(m.cells, addr.SetInt64(base+i).String())
	}
	delete(m.live, base)
	m.free[size] = append(m.free[size], base)
	return nil
}

// Cells returns a copy of every defined cell, keyed by decimal address.
func (m *Memory) Cells() map[string]string {
	out := make(map[string]string, len(m.cells))
	for k, v := range m.cells {
		out[k] = v.String()
	}
	return out
}

// Keys returns the defined addresses in sorted order, for deterministic
// dumps.
func (m *Memory) Keys() []string {
	keys := make([]string, 0, len(m.cells))
	for k := range m.cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// allocState captures the allocator bookkeeping for checkpoints.
type allocState struct {
	Next int64             `json:"next"`
	Free map[int64][]int64 `json:"free"`
	Live map[int64]int64   `json:"live"`
}

func (m *Memory) allocSnapshot() allocState {
	st := allocState{
		Next: m.next,
		Free: make(map[int64][]int64, len(m.free)),
		Live: make(map[int64]int64, len(m.live)),
	}
	for size, bases := range m.free {
		st.Free[size] = append([]int64(nil), bases...)
	}
	for base, size := range m.live {
		st.Live[base] = size
	}
	return st
}
