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

package hostgw

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UOR-Foundation/uor-labs/chunk"
)

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := New()
	require.NoError(t, err)
	return g
}

func stack(vals ...int64) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestHashDeterministic(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	a, err := g.Call(ctx, chunk.OpHash, stack(12345))
	require.NoError(t, err)
	b, err := g.Call(ctx, chunk.OpHash, stack(12345))
	require.NoError(t, err)

	require.Len(t, a, 1)
	assert.Zero(t, a[0].Cmp(b[0]), "hash of the same value differs")
	assert.NotEqual(t, int64(12345), a[0].Int64(), "hash left the input unchanged")
}

func TestHashEmptyStack(t *testing.T) {
	g := newGateway(t)
	_, err := g.Call(context.Background(), chunk.OpHash, nil)
	assert.ErrorIs(t, err, ErrStackShape)
}

func TestSignVerifyRoundtrip(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	signed, err := g.Call(ctx, chunk.OpSign, stack(42))
	require.NoError(t, err)
	require.Len(t, signed, 1)

	// VERIFY expects message below signature.
	verified, err := g.Call(ctx, chunk.OpVerify, []*big.Int{big.NewInt(42), signed[0]})
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, int64(1), verified[0].Int64(), "valid signature rejected")
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	g := newGateway(t)
	verified, err := g.Call(context.Background(), chunk.OpVerify,
		[]*big.Int{big.NewInt(42), big.NewInt(987654321)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), verified[0].Int64(), "garbage signature accepted")
}

func TestRngPushes(t *testing.T) {
	g := newGateway(t)
	out, err := g.Call(context.Background(), chunk.OpRng, stack(5))
	require.NoError(t, err)
	assert.Len(t, out, 2, "RNG should push one value")
}

func TestNetSendRecv(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	rest, err := g.Call(ctx, chunk.OpNetSend, stack(7, 77))
	require.NoError(t, err)
	assert.Len(t, rest, 1, "NET_SEND should consume the top value")

	got, err := g.Call(ctx, chunk.OpNetRecv, rest)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(77), got[1].Int64())
}

func TestNetRecvHonorsContext(t *testing.T) {
	g := newGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Call(ctx, chunk.OpNetRecv, nil)
	assert.Error(t, err, "NET_RECV on an empty mailbox must respect cancellation")
}

func TestSyscallDispatch(t *testing.T) {
	g := newGateway(t)
	g.RegisterSyscall(9, func(stack []*big.Int) ([]*big.Int, error) {
		return append(stack, big.NewInt(1234)), nil
	})

	out, err := g.Call(context.Background(), chunk.OpSyscall, stack(50, 9))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1234), out[1].Int64())
}

func TestSyscallUnknown(t *testing.T) {
	g := newGateway(t)
	_, err := g.Call(context.Background(), chunk.OpSyscall, stack(3))
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestInterruptTableIsSeparate(t *testing.T) {
	g := newGateway(t)
	g.RegisterSyscall(1, func(stack []*big.Int) ([]*big.Int, error) {
		return stack, nil
	})
	_, err := g.Call(context.Background(), chunk.OpInt, stack(1))
	assert.ErrorIs(t, err, ErrUnknownService, "INT must not see SYSCALL handlers")
}
