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
	"context"
	"math/big"

	"github.com/UOR-Foundation/uor-labs/chunk"
)

// Gateway is the narrow host-service interface behind HASH, SIGN, VERIFY,
// RNG, SYSCALL, INT, NET_SEND, and NET_RECV. A call receives the VM's
// current stack (bottom first) and returns the replacement stack contents.
// The engine treats every failure as fatal, tagged as a gateway failure.
type Gateway interface {
	Call(ctx context.Context, op chunk.Opcode, stack []*big.Int) ([]*big.Int, error)
}

// InputSource is an optional blocking producer for INPUT when the queue is
// empty. Read blocks until a value is available or the source is closed.
type InputSource interface {
	Read() (*big.Int, error)
}
