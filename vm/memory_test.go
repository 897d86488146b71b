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
	"errors"
	"math/big"
	"testing"
)

func TestMemoryUnit(t *testing.T) {
	m := NewMemory()
	addr := big.NewInt(100)

	if got := m.Load(addr); got.Sign() != 0 {
		t.Errorf("undefined read = %s; want 0", got)
	}
	m.Store(addr, big.NewInt(7))
	if got := m.Load(addr); got.Int64() != 7 {
		t.Errorf("read after write = %s; want 7", got)
	}

	// Stored values are copies: mutating the returned value must not leak
	// back into the cell.
	m.Load(addr).SetInt64(99)
	if got := m.Load(addr); got.Int64() != 7 {
		t.Errorf("cell mutated through a returned copy: %s", got)
	}

	// Storing zero erases the cell.
	m.Store(addr, new(big.Int))
	if len(m.Cells()) != 0 {
		t.Errorf("zero store left %d cells", len(m.Cells()))
	}
}

func TestMemoryNegativeAddress(t *testing.T) {
	m := NewMemory()
	m.Store(big.NewInt(-3), big.NewInt(11))
	if got := m.Load(big.NewInt(-3)); got.Int64() != 11 {
		t.Errorf("negative address read = %s; want 11", got)
	}
}

func TestAllocContiguous(t *testing.T) {
	m := NewMemory()
	base, err := m.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	next, err := m.Alloc(2)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if next < base+4 {
		t.Errorf("second allocation %d overlaps [%d, %d)", next, base, base+4)
	}
}

func TestAllocReusesFreedBlock(t *testing.T) {
	m := NewMemory()
	base, err := m.Alloc(8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := m.Free(base); err != nil {
		t.Fatalf("Free: %v", err)
	}
	again, err := m.Alloc(8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if again != base {
		t.Errorf("same-size alloc after free = %d; want reused base %d", again, base)
	}
}

func TestFreeClearsCells(t *testing.T) {
	m := NewMemory()
	base, _ := m.Alloc(2)
	addr := big.NewInt(base)
	m.Store(addr, big.NewInt(42))
	if err := m.Free(base); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if got := m.Load(addr); got.Sign() != 0 {
		t.Errorf("freed cell reads %s; want 0", got)
	}
}

func TestDoubleFree(t *testing.T) {
	m := NewMemory()
	base, _ := m.Alloc(4)
	if err := m.Free(base); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := m.Free(base); !errors.Is(err, ErrMemoryOutOfRange) {
		t.Errorf("double free: got %v; want ErrMemoryOutOfRange", err)
	}
}

func TestAllocRejectsNonPositive(t *testing.T) {
	m := NewMemory()
	if _, err := m.Alloc(0); !errors.Is(err, ErrMemoryOutOfRange) {
		t.Errorf("Alloc(0): got %v; want ErrMemoryOutOfRange", err)
	}
}

func TestStackUnit(t *testing.T) {
	s := NewStack()
	if _, err := s.Pop(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("Pop on empty: got %v; want ErrStackUnderflow", err)
	}
	s.Push(big.NewInt(1))
	s.Push(big.NewInt(2))

	clone := s.Clone()
	v, err := s.Pop()
	if err != nil || v.Int64() != 2 {
		t.Errorf("Pop = (%s, %v); want (2, nil)", v, err)
	}
	if clone.Len() != 2 {
		t.Errorf("clone depth changed with original: %d", clone.Len())
	}

	snap := clone.Snapshot()
	snap[0].SetInt64(99)
	if peeked, _ := clone.Peek(); peeked.Int64() != 2 {
		t.Errorf("snapshot aliases the stack")
	}
}
