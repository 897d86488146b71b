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

package chunk

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/UOR-Foundation/uor-labs/prime"
)

// Slot assignments of the reserved primes. A conforming encoder uses
// p[0..3] = 2, 3, 5, 7 in these roles.
const (
	slotOpcode   = 0 // opcode exponent
	slotOperand  = 1 // |operand| exponent
	slotNeg      = 2 // 1 when the operand is negative
	slotChecksum = 3 // checksum exponent
)

// ErrCorrupt is returned when a chunk fails to decode: a residue remains
// after dividing out the slot primes, the NEG exponent exceeds 1, the opcode
// is undefined, or the embedded checksum does not match.
var ErrCorrupt = errors.New("chunk: corrupt")

// ErrBadOperand is returned by Encode when an arity-0 opcode is given a
// nonzero operand. A nil operand encodes as 0 for every opcode.
var ErrBadOperand = errors.New("chunk: operand does not match opcode arity")

// Encode packs (op, operand) into a single chunk integer. Arity-0 opcodes
// take a nil or zero operand. A zero operand always encodes with NEG=0.
func Encode(op Opcode, operand *big.Int) (*big.Int, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: opcode %d", ErrCorrupt, uint64(op))
	}
	if operand == nil {
		operand = new(big.Int)
	}
	if op.Arity() == 0 && operand.Sign() != 0 {
		return nil, fmt.Errorf("%w: %s takes no operand", ErrBadOperand, op)
	}

	mag := new(big.Int).Abs(operand)
	neg := int64(0)
	if operand.Sign() < 0 {
		neg = 1
	}

	c := new(big.Int).Exp(big.NewInt(prime.Prime(slotOpcode)), big.NewInt(int64(op)), nil)
	c.Mul(c, new(big.Int).Exp(big.NewInt(prime.Prime(slotOperand)), mag, nil))
	c.Mul(c, new(big.Int).Exp(big.NewInt(prime.Prime(slotNeg)), big.NewInt(neg), nil))
	cs := prime.Checksum(uint64(op), operand)
	c.Mul(c, new(big.Int).Exp(big.NewInt(prime.Prime(slotChecksum)), big.NewInt(int64(cs)), nil))
	return c, nil
}

// Decode recovers (op, operand) from a chunk and verifies its checksum.
// Only the four slot primes are divided out; no general factorization runs.
func Decode(c *big.Int) (Opcode, *big.Int, error) {
	if c == nil || c.Sign() <= 0 {
		return 0, nil, fmt.Errorf("%w: non-positive chunk", ErrCorrupt)
	}

	rest := new(big.Int).Set(c)
	opExp := divideOut(rest, prime.Prime(slotOpcode))
	mag := divideOutBig(rest, prime.Prime(slotOperand))
	negExp := divideOut(rest, prime.Prime(slotNeg))
	csExp := divideOut(rest, prime.Prime(slotChecksum))

	if rest.Cmp(bigOne) != 0 {
		return 0, nil, fmt.Errorf("%w: residue %s after slot primes", ErrCorrupt, rest)
	}
	if negExp > 1 {
		return 0, nil, fmt.Errorf("%w: sign exponent %d", ErrCorrupt, negExp)
	}
	if negExp == 1 && mag.Sign() == 0 {
		// No conforming encoder marks a zero operand negative.
		return 0, nil, fmt.Errorf("%w: negative zero operand", ErrCorrupt)
	}
	op := Opcode(opExp)
	if !op.Valid() {
		return 0, nil, fmt.Errorf("%w: opcode %d undefined", ErrCorrupt, opExp)
	}

	operand := mag
	if negExp == 1 {
		operand = mag.Neg(mag)
	}
	if want := prime.Checksum(uint64(op), operand); want != csExp {
		return 0, nil, fmt.Errorf("%w: checksum %d, want %d", ErrCorrupt, csExp, want)
	}
	return op, operand, nil
}

var bigOne = big.NewInt(1)

// divideOut strips every factor p from n and returns the exponent.
func divideOut(n *big.Int, p int64) uint64 {
	exp := divideOutBig(n, p)
	return exp.Uint64()
}

// divideOutBig strips every factor p from n, returning the exponent as a big
// integer. The operand slot needs this form: its exponent is the operand
// magnitude itself.
func divideOutBig(n *big.Int, p int64) *big.Int {
	bp := big.NewInt(p)
	exp := new(big.Int)
	q, r := new(big.Int), new(big.Int)
	for {
		q.QuoRem(n, bp, r)
		if r.Sign() != 0 {
			return exp
		}
		n.Set(q)
		exp.Add(exp, bigOne)
	}
}
