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

// Package asm translates the line-oriented textual assembly form into chunk
// sequences.
//
// Line grammar:
//
//	[label ':'] [opcode [operand]] ['#' comment]
//
// Identifiers are [A-Za-z_][A-Za-z0-9_]*, operands are signed decimal big
// integers or label names, and mnemonics are case-insensitive. Label operands
// resolve to the jump's relative offset after the instruction executes:
// target - (current + 1).
package asm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/UOR-Foundation/uor-labs/chunk"
)

// Error sentinels. Every assembly failure wraps one of these together with
// the 1-based source line number.
var (
	ErrUnknownOpcode  = errors.New("asm: unknown opcode")
	ErrUnknownSymbol  = errors.New("asm: unknown symbol")
	ErrDuplicateLabel = errors.New("asm: duplicate label")
	ErrBadOperand     = errors.New("asm: malformed operand")
	ErrBadLabel       = errors.New("asm: malformed label")
)

// item is one instruction-bearing source line recorded by the scan pass.
type item struct {
	line    int    // 1-based source line
	op      chunk.Opcode
	operand string // raw token; empty for arity-0 opcodes
	index   int    // chunk index this line occupies
}

// Assembler holds the state for one assembly run.
type Assembler struct {
	labels map[string]int
	items  []item
}

// New creates an Assembler.
func New() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

// Assemble translates source text into a chunk sequence. Assembling the same
// source twice yields identical sequences.
func (a *Assembler) Assemble(src string) (chunk.Program, error) {
	if err := a.scan(src); err != nil {
		return nil, err
	}
	return a.emit()
}

// Assemble is a convenience wrapper for a one-shot assembly run.
func Assemble(src string) (chunk.Program, error) {
	return New().Assemble(src)
}

// scan records every instruction line's opcode, raw operand, and future chunk
// index, and fixes all label positions so forward references resolve cleanly.
func (a *Assembler) scan(src string) error {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	index := 0
	for i, raw := range lines {
		line := i + 1
		text := raw
		if c := strings.IndexByte(text, '#'); c >= 0 {
			text = text[:c]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		// Labels attach to the next emitted chunk position.
		if c := strings.IndexByte(text, ':'); c >= 0 {
			name := strings.TrimSpace(text[:c])
			if !isIdent(name) {
				return fmt.Errorf("line %d: %w: %q", line, ErrBadLabel, name)
			}
			if _, ok := a.labels[name]; ok {
				return fmt.Errorf("line %d: %w: %q", line, ErrDuplicateLabel, name)
			}
			a.labels[name] = index
			text = strings.TrimSpace(text[c+1:])
			if text == "" {
				continue
			}
		}

		fields := strings.Fields(text)
		op, ok := chunk.Lookup(fields[0])
		if !ok {
			return fmt.Errorf("line %d: %w: %q", line, ErrUnknownOpcode, fields[0])
		}
		switch {
		case len(fields) > 2:
			return fmt.Errorf("line %d: %w: trailing tokens after %q", line, ErrBadOperand, fields[1])
		case op.Arity() == 0 && len(fields) == 2:
			return fmt.Errorf("line %d: %w: %s takes no operand", line, ErrBadOperand, op)
		case op.Arity() == 1 && len(fields) == 1:
			return fmt.Errorf("line %d: %w: %s requires an operand", line, ErrBadOperand, op)
		}
		it := item{line: line, op: op, index: index}
		if len(fields) == 2 {
			it.operand = fields[1]
		}
		a.items = append(a.items, it)
		index++
	}
	return nil
}

// emit resolves operands and invokes the codec for every recorded line.
func (a *Assembler) emit() (chunk.Program, error) {
	prog := make(chunk.Program, 0, len(a.items))
	for _, it := range a.items {
		var operand *big.Int
		switch {
		case it.operand == "":
			operand = new(big.Int)
		case isIdent(it.operand):
			target, ok := a.labels[it.operand]
			if !ok {
				return nil, fmt.Errorf("line %d: %w: %q", it.line, ErrUnknownSymbol, it.operand)
			}
			operand = big.NewInt(int64(target - (it.index + 1)))
		default:
			n, ok := new(big.Int).SetString(it.operand, 10)
			if !ok {
				return nil, fmt.Errorf("line %d: %w: %q", it.line, ErrBadOperand, it.operand)
			}
			operand = n
		}
		c, err := chunk.Encode(it.op, operand)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", it.line, err)
		}
		prog = append(prog, c)
	}
	return prog, nil
}

// Labels returns the symbol table of the last Assemble call.
func (a *Assembler) Labels() map[string]int {
	out := make(map[string]int, len(a.labels))
	for k, v := range a.labels {
		out[k] = v
	}
	return out
}

// isIdent reports whether s matches [A-Za-z_][A-Za-z0-9_]*.
func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
