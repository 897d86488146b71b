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

// Package hostgw is the default host service gateway.
//
// HASH is Keccak-256, SIGN/VERIFY are Ed25519 over Keccak digests with a
// per-gateway key pair, RNG draws from crypto/rand, NET_SEND/NET_RECV move
// values through an in-process mailbox, and SYSCALL/INT dispatch through
// registered handler tables keyed by the number on top of the stack.
package hostgw

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/inconshreveable/log15"
	"golang.org/x/crypto/sha3"

	"github.com/UOR-Foundation/uor-labs/chunk"
)

var logger = log15.New("module", "hostgw")

// ErrStackShape is returned when an operation needs more stack operands
// than the VM supplied.
var ErrStackShape = errors.New("hostgw: not enough stack operands")

// ErrUnknownService is returned by SYSCALL/INT for an unregistered number.
var ErrUnknownService = errors.New("hostgw: unknown service number")

// Handler serves one SYSCALL or INT number. It receives the stack below the
// service number (bottom first) and returns the replacement for it.
type Handler func(stack []*big.Int) ([]*big.Int, error)

// mailboxDepth bounds in-flight NET_SEND values.
const mailboxDepth = 1024

// Gateway implements vm.Gateway.
type Gateway struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	mu       sync.Mutex
	syscalls map[int64]Handler
	ints     map[int64]Handler

	mailbox chan *big.Int
}

// New creates a gateway with a fresh Ed25519 key pair and an empty mailbox.
func New() (*Gateway, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		priv:     priv,
		pub:      pub,
		syscalls: make(map[int64]Handler),
		ints:     make(map[int64]Handler),
		mailbox:  make(chan *big.Int, mailboxDepth),
	}, nil
}

// RegisterSyscall installs the handler for a SYSCALL number.
func (g *Gateway) RegisterSyscall(num int64, h Handler) {
	g.mu.Lock()
	g.syscalls[num] = h
	g.mu.Unlock()
}

// RegisterInterrupt installs the handler for an INT number.
func (g *Gateway) RegisterInterrupt(num int64, h Handler) {
	g.mu.Lock()
	g.ints[num] = h
	g.mu.Unlock()
}

// PublicKey returns the gateway's verification key.
func (g *Gateway) PublicKey() ed25519.PublicKey { return g.pub }

// Call implements vm.Gateway.
func (g *Gateway) Call(ctx context.Context, op chunk.Opcode, stack []*big.Int) ([]*big.Int, error) {
	switch op {
	case chunk.OpHash:
		top, rest, err := pop(stack)
		if err != nil {
			return nil, err
		}
		return append(rest, digest(top)), nil

	case chunk.OpSign:
		top, rest, err := pop(stack)
		if err != nil {
			return nil, err
		}
		sig := ed25519.Sign(g.priv, digest(top).Bytes())
		return append(rest, new(big.Int).SetBytes(sig)), nil

	case chunk.OpVerify:
		sig, rest, err := pop(stack)
		if err != nil {
			return nil, err
		}
		msg, rest, err := pop(rest)
		if err != nil {
			return nil, err
		}
		ok := big.NewInt(0)
		sigBytes := sig.Bytes()
		if len(sigBytes) <= ed25519.SignatureSize {
			padded := make([]byte, ed25519.SignatureSize)
			copy(padded[ed25519.SignatureSize-len(sigBytes):], sigBytes)
			if ed25519.Verify(g.pub, digest(msg).Bytes(), padded) {
				ok = big.NewInt(1)
			}
		}
		return append(rest, ok), nil

	case chunk.OpRng:
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, err
		}
		return append(stack, new(big.Int).SetBytes(buf[:])), nil

	case chunk.OpSyscall:
		return g.dispatch(g.syscalls, stack)

	case chunk.OpInt:
		return g.dispatch(g.ints, stack)

	case chunk.OpNetSend:
		top, rest, err := pop(stack)
		if err != nil {
			return nil, err
		}
		select {
		case g.mailbox <- top:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return rest, nil

	case chunk.OpNetRecv:
		select {
		case v := <-g.mailbox:
			return append(stack, v), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("hostgw: %s is not a host service", op)
}

// dispatch pops the service number and runs its handler over the rest of
// the stack.
func (g *Gateway) dispatch(table map[int64]Handler, stack []*big.Int) ([]*big.Int, error) {
	num, rest, err := pop(stack)
	if err != nil {
		return nil, err
	}
	if !num.IsInt64() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, num)
	}
	g.mu.Lock()
	h, ok := table[num.Int64()]
	g.mu.Unlock()
	if !ok {
		logger.Debug("unregistered service", "num", num.Int64())
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, num)
	}
	return h(rest)
}

// digest returns Keccak-256 of the value's magnitude bytes as a big integer.
func digest(v *big.Int) *big.Int {
	h := sha3.NewLegacyKeccak256()
	h.Write(v.Bytes())
	return new(big.Int).SetBytes(h.Sum(nil))
}

// pop splits the top of a bottom-first stack slice.
func pop(stack []*big.Int) (*big.Int, []*big.Int, error) {
	if len(stack) == 0 {
		return nil, nil, ErrStackShape
	}
	return stack[len(stack)-1], stack[:len(stack)-1], nil
}
