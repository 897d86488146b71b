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

// Package prime maintains the process-wide prime table used by the chunk
// codec and computes the per-chunk checksum.
//
// The table is append-only: once Prime(i) has returned a value, that value is
// stable for the lifetime of the process. Access is serialized internally, so
// the table may be shared by any number of VM instances.
package prime

import (
	"math/big"
	"sync"
)

// checksumModulus is the small prime the per-chunk checksum is reduced by.
const checksumModulus = 7

var (
	mu    sync.Mutex
	cache = []int64{2, 3, 5, 7}
)

// Prime returns the i-th prime (Prime(0) == 2). The table grows by trial
// division and is cached; lookups below the cached length take constant time.
func Prime(i int) int64 {
	mu.Lock()
	defer mu.Unlock()
	for len(cache) <= i {
		cache = append(cache, nextPrime(cache[len(cache)-1]))
	}
	return cache[i]
}

// Count returns the number of primes currently cached.
func Count() int {
	mu.Lock()
	defer mu.Unlock()
	return len(cache)
}

// nextPrime returns the smallest prime strictly greater than n.
// Caller holds mu.
func nextPrime(n int64) int64 {
	for c := n + 2; ; c += 2 {
		if isPrime(c) {
			return c
		}
	}
}

func isPrime(n int64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := int64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

var (
	big131 = big.NewInt(131)
	bigOne = big.NewInt(1)
	bigMod = big.NewInt(checksumModulus)
)

// Checksum computes the checksum exponent for an (opcode, operand) pair:
// (op*131 + |operand| + sign) mod 7, where sign is 1 for a negative
// operand. Folding the sign in separately makes a flipped NEG exponent
// detectable. The same pair always yields the same value.
func Checksum(op uint64, operand *big.Int) uint64 {
	sum := new(big.Int).Mul(big.NewInt(int64(op)), big131)
	if operand != nil {
		sum.Add(sum, new(big.Int).Abs(operand))
		if operand.Sign() < 0 {
			sum.Add(sum, bigOne)
		}
	}
	return sum.Mod(sum, bigMod).Uint64()
}
