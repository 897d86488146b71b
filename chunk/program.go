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
	"bufio"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Program is an ordered, immutable-once-assembled sequence of chunks.
type Program []*big.Int

// Parse reads the on-disk program form: one decimal chunk per line, with
// blank lines and '#' comments ignored.
func Parse(r io.Reader) (Program, error) {
	var prog Program
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		n, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, fmt.Errorf("chunk: line %d: %q is not a decimal integer", line, text)
		}
		prog = append(prog, n)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

// Load reads a program file from disk.
func Load(path string) (Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Write serializes the program in its on-disk form.
func (p Program) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, c := range p {
		if _, err := bw.WriteString(c.String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Save writes the program to a file.
func (p Program) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.Write(f)
}

// Hash returns the Keccak-256 digest over each chunk's big-endian magnitude
// bytes followed by a zero byte, used as the program's identity in
// checkpoints.
func (p Program) Hash() [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, c := range p {
		h.Write(c.Bytes())
		h.Write([]byte{0})
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashHex returns Hash as a hex string.
func (p Program) HashHex() string {
	return fmt.Sprintf("%x", p.Hash())
}

// Disassemble returns a human-readable listing of the program. Chunks that
// fail to decode are listed as corrupt rather than aborting the listing.
func Disassemble(p Program) string {
	var b strings.Builder
	for i, c := range p {
		op, arg, err := Decode(c)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "[%04d] ?corrupt? %v\n", i, err)
		case op.Arity() == 1:
			fmt.Fprintf(&b, "[%04d] %-12s %s\n", i, op, arg)
		default:
			fmt.Fprintf(&b, "[%04d] %s\n", i, op)
		}
	}
	return b.String()
}
