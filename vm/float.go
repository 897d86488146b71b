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
	"math"
	"math/big"
)

// Floats reuse the integer stack slots as their IEEE-754 bit patterns;
// only the low 64 bits of a slot are significant to the float opcodes.

var mask64 = new(big.Int).SetUint64(math.MaxUint64)

// bitsToFloat reinterprets the low 64 bits of v as a float64.
func bitsToFloat(v *big.Int) float64 {
	return math.Float64frombits(new(big.Int).And(v, mask64).Uint64())
}

// floatToBits returns the bit pattern of f as a big integer.
func floatToBits(f float64) *big.Int {
	return new(big.Int).SetUint64(math.Float64bits(f))
}

// floatToInt truncates the float encoded in v toward zero. NaN and the
// infinities convert to 0.
func floatToInt(v *big.Int) *big.Int {
	f := bitsToFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return new(big.Int)
	}
	out, _ := new(big.Float).SetFloat64(math.Trunc(f)).Int(nil)
	return out
}

// intToFloat converts the integer v to the nearest float64 bit pattern.
func intToFloat(v *big.Int) *big.Int {
	f, _ := new(big.Float).SetInt(v).Float64()
	return floatToBits(f)
}
