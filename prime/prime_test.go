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

package prime

import (
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimeSequence(t *testing.T) {
	want := []int64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}
	for i, p := range want {
		assert.Equal(t, p, Prime(i), "prime index %d", i)
	}
}

func TestPrimeStable(t *testing.T) {
	p := Prime(50)
	require.Equal(t, p, Prime(50), "cached prime changed between lookups")
	assert.GreaterOrEqual(t, Count(), 51)
}

func TestPrimeConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]int64, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Prime(100 + i%4)
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		assert.Equal(t, Prime(100+i%4), r)
	}
}

func TestChecksumDeterministic(t *testing.T) {
	operand := big.NewInt(12345)
	first := Checksum(3, operand)
	assert.Equal(t, first, Checksum(3, operand))
	assert.Less(t, first, uint64(7))
}

func TestChecksumKnownValues(t *testing.T) {
	cases := []struct {
		op      uint64
		operand int64
		want    uint64
	}{
		{0, 0, 0},
		{1, 3, (131 + 3) % 7},
		{1, -3, (131 + 3 + 1) % 7},
		{15, 2, (15*131 + 2) % 7},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Checksum(tc.op, big.NewInt(tc.operand)),
			"checksum(%d, %d)", tc.op, tc.operand)
	}
}

func TestChecksumNilOperand(t *testing.T) {
	assert.Equal(t, Checksum(4, big.NewInt(0)), Checksum(4, nil))
}

func TestChecksumSignSensitive(t *testing.T) {
	pos := Checksum(2, big.NewInt(10))
	neg := Checksum(2, big.NewInt(-10))
	assert.NotEqual(t, pos, neg, "sign must contribute to the checksum")
}
