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

	"github.com/UOR-Foundation/uor-labs/chunk"
)

// Hook receives pre- and post-execute callbacks from the dispatch loop. The
// loop calls through this indirection unconditionally; the null hook keeps
// the cost of an uninstrumented run to a pair of empty method calls.
type Hook interface {
	// Before runs after decode, before dispatch.
	Before(v *VM, pc int, op chunk.Opcode, arg *big.Int)
	// After runs once the instruction's effects are visible.
	After(v *VM, pc int, op chunk.Opcode, arg *big.Int)
}

// Breaker is implemented by hooks that want BRK to suspend execution.
type Breaker interface {
	OnBreak(v *VM, pc int)
}

type nopHook struct{}

func (nopHook) Before(*VM, int, chunk.Opcode, *big.Int) {}
func (nopHook) After(*VM, int, chunk.Opcode, *big.Int)  {}
