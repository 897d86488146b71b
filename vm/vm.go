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

// Package vm executes chunk programs against a stack, an address-indexed
// memory, subroutine call frames, and a small set of host services.
//
// Each fetched chunk is decoded (and its checksum verified) on demand;
// BLOCK runs a bounded slice of the program in a subordinate VM, and
// THREAD_START does the same on a separate goroutine.
package vm

import (
	"context"
	"fmt"
	"math/big"

	lru "github.com/hashicorp/golang-lru"
	"github.com/inconshreveable/log15"
	"golang.org/x/sync/semaphore"

	"github.com/UOR-Foundation/uor-labs/chunk"
)

var logger = log15.New("module", "vm")

const (
	// DefaultMaxThreads bounds concurrently running THREAD_START children.
	DefaultMaxThreads = 8

	// defaultDecodeCache is the decoded-instruction cache size per VM.
	defaultDecodeCache = 4096

	// maxShift bounds SHL/SHR amounts.
	maxShift = 1 << 20
)

// frame captures the state needed to resume a caller after a CALL returns.
type frame struct {
	ret   int // chunk index to restore in the caller
	entry int // callee's first chunk index, used by the profiler
}

// decoded is a cached decode result. The operand is shared and must not be
// mutated by handlers.
type decoded struct {
	op  chunk.Opcode
	arg *big.Int
}

// Config carries the optional collaborators and limits of a VM instance.
// The zero value runs with no gateway, no hooks, no checkpoint store, and
// no step budget.
type Config struct {
	// MaxSteps halts execution with a fatal error once this many chunks
	// have executed. 0 means unlimited.
	MaxSteps uint64
	// MaxThreads bounds concurrent THREAD_START children across the whole
	// VM tree. 0 selects DefaultMaxThreads.
	MaxThreads int64
	// Gateway serves HASH, SIGN, VERIFY, RNG, SYSCALL, INT and NET_*.
	Gateway Gateway
	// Hook receives pre/post-execute callbacks; nil installs the null hook.
	Hook Hook
	// Store receives CHECKPOINT snapshots; nil makes CHECKPOINT a no-op.
	Store Store
	// Input pre-loads the input queue consumed by INPUT.
	Input []*big.Int
	// InputSource optionally blocks INPUT on an empty queue instead of
	// failing.
	InputSource InputSource
}

// VM is one execution engine instance, top-level or subordinate.
type VM struct {
	prog   chunk.Program
	pc     int
	stack  *Stack
	mem    *Memory
	frames []frame

	input    []*big.Int
	inputSrc InputSource
	out      []OutputEntry

	gw    Gateway
	hook  Hook
	store Store

	halted   bool
	steps    uint64
	maxSteps uint64
	decode   *lru.Cache

	sem        *semaphore.Weighted
	threads    map[int64]*thread
	nextThread int64
}

// New creates a VM ready to execute prog.
func New(prog chunk.Program, cfg Config) *VM {
	if cfg.Hook == nil {
		cfg.Hook = nopHook{}
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = DefaultMaxThreads
	}
	cache, _ := lru.New(defaultDecodeCache)
	v := &VM{
		prog:     prog,
		stack:    NewStack(),
		mem:      NewMemory(),
		gw:       cfg.Gateway,
		hook:     cfg.Hook,
		store:    cfg.Store,
		maxSteps: cfg.MaxSteps,
		decode:   cache,
		sem:      semaphore.NewWeighted(cfg.MaxThreads),
		inputSrc: cfg.InputSource,
	}
	for _, in := range cfg.Input {
		v.input = append(v.input, new(big.Int).Set(in))
	}
	return v
}

// newChild builds a subordinate VM over body for BLOCK and THREAD_START:
// fresh memory and queues, shared gateway, store, and thread semaphore.
// The caller installs the stack.
func (v *VM) newChild(body []*big.Int) *VM {
	cache, _ := lru.New(defaultDecodeCache)
	return &VM{
		prog:   chunk.Program(body),
		stack:  NewStack(),
		mem:    NewMemory(),
		gw:     v.gw,
		hook:   nopHook{},
		store:  v.store,
		decode: cache,
		sem:    v.sem,
	}
}

// ---- Accessors -------------------------------------------------------------

// PC returns the current chunk index.
func (v *VM) PC() int { return v.pc }

// Halted reports whether the VM has stopped.
func (v *VM) Halted() bool { return v.halted }

// Steps returns the number of chunks executed so far.
func (v *VM) Steps() uint64 { return v.steps }

// Output returns the output queue accumulated so far.
func (v *VM) Output() []OutputEntry { return v.out }

// Stack returns the evaluation stack.
func (v *VM) Stack() *Stack { return v.stack }

// Memory returns the VM's memory.
func (v *VM) Memory() *Memory { return v.mem }

// Program returns the program under execution.
func (v *VM) Program() chunk.Program { return v.prog }

// ---- Execution -------------------------------------------------------------

// Run executes until HALT, the end of the program, or a fatal error.
func (v *VM) Run() error { return v.RunContext(context.Background()) }

// RunContext is Run with a context observed by blocking operations
// (THREAD_JOIN, gateway calls, blocking INPUT).
func (v *VM) RunContext(ctx context.Context) error {
	for !v.halted && v.pc < len(v.prog) {
		if err := v.step(ctx); err != nil {
			return err
		}
	}
	// Running past the last chunk is a normal termination.
	v.halted = true
	return nil
}

// Step executes exactly one instruction.
func (v *VM) Step() error { return v.step(context.Background()) }

func (v *VM) step(ctx context.Context) error {
	if v.halted {
		return ErrHalted
	}
	if v.pc < 0 || v.pc >= len(v.prog) {
		v.halted = true
		return nil
	}
	if v.maxSteps > 0 && v.steps >= v.maxSteps {
		v.halted = true
		return v.fatal(v.pc, ErrStepLimit)
	}

	pc := v.pc
	op, arg, err := v.decodeAt(pc)
	if err != nil {
		v.halted = true
		return v.fatal(pc, err)
	}

	v.hook.Before(v, pc, op, arg)
	v.steps++
	v.pc++
	if err := v.exec(ctx, pc, op, arg); err != nil {
		v.halted = true
		return v.fatal(pc, err)
	}
	v.hook.After(v, pc, op, arg)
	return nil
}

// decodeAt decodes the chunk at index pc through the LRU cache.
func (v *VM) decodeAt(pc int) (chunk.Opcode, *big.Int, error) {
	if hit, ok := v.decode.Get(pc); ok {
		d := hit.(decoded)
		return d.op, d.arg, nil
	}
	op, arg, err := chunk.Decode(v.prog[pc])
	if err != nil {
		return 0, nil, err
	}
	v.decode.Add(pc, decoded{op: op, arg: arg})
	return op, arg, nil
}

func (v *VM) fatal(pc int, err error) error {
	if fe, ok := err.(*FatalError); ok {
		// A subordinate VM already pinned the fault; keep its frame.
		return fe
	}
	return &FatalError{PC: pc, Err: err}
}

// popPair pops the top two operands: b from the top, a below it.
func (v *VM) popPair() (a, b *big.Int, err error) {
	if b, err = v.stack.Pop(); err != nil {
		return nil, nil, err
	}
	if a, err = v.stack.Pop(); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// branch moves the pc by a signed chunk offset relative to the instruction
// after the branch (v.pc has already advanced past it).
func (v *VM) branch(arg *big.Int) error {
	if !arg.IsInt64() {
		return fmt.Errorf("%w: offset %s", ErrJumpRange, arg)
	}
	target := v.pc + int(arg.Int64())
	if target < 0 || target > len(v.prog) {
		return fmt.Errorf("%w: target %d of %d chunks", ErrJumpRange, target, len(v.prog))
	}
	v.pc = target
	return nil
}

// extent validates the chunk count operand of BLOCK, NTT, and THREAD_START
// against the remaining program and returns it.
func (v *VM) extent(arg *big.Int) (int, error) {
	if !arg.IsInt64() || arg.Sign() < 0 {
		return 0, fmt.Errorf("%w: count %s", ErrBlockRange, arg)
	}
	n := int(arg.Int64())
	if v.pc+n > len(v.prog) {
		return 0, fmt.Errorf("%w: %d chunks past index %d of %d", ErrBlockRange, n, v.pc, len(v.prog))
	}
	return n, nil
}

// exec dispatches one decoded instruction. v.pc has already been advanced
// past the instruction; branch handlers adjust it further.
//
//nolint:gocyclo
func (v *VM) exec(ctx context.Context, pc int, op chunk.Opcode, arg *big.Int) error {
	switch op {

	// ---- Arithmetic --------------------------------------------------------

	case chunk.OpAdd:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		v.stack.Push(a.Add(a, b))

	case chunk.OpSub:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		v.stack.Push(a.Sub(a, b))

	case chunk.OpMul:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		v.stack.Push(a.Mul(a, b))

	case chunk.OpDiv:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		if b.Sign() == 0 {
			return ErrDivisionByZero
		}
		v.stack.Push(a.Quo(a, b))

	case chunk.OpMod:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		if b.Sign() == 0 {
			return ErrDivisionByZero
		}
		v.stack.Push(a.Rem(a, b))

	case chunk.OpNeg:
		a, err := v.stack.Pop()
		if err != nil {
			return err
		}
		v.stack.Push(a.Neg(a))

	case chunk.OpFmul:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		v.stack.Push(floatToBits(bitsToFloat(a) * bitsToFloat(b)))

	case chunk.OpFdiv:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		v.stack.Push(floatToBits(bitsToFloat(a) / bitsToFloat(b)))

	case chunk.OpF2i:
		a, err := v.stack.Pop()
		if err != nil {
			return err
		}
		v.stack.Push(floatToInt(a))

	case chunk.OpI2f:
		a, err := v.stack.Pop()
		if err != nil {
			return err
		}
		v.stack.Push(intToFloat(a))

	// ---- Bitwise -----------------------------------------------------------

	case chunk.OpAnd:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		v.stack.Push(a.And(a, b))

	case chunk.OpOr:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		v.stack.Push(a.Or(a, b))

	case chunk.OpXor:
		a, b, err := v.popPair()
		if err != nil {
			return err
		}
		v.stack.Push(a.Xor(a, b))

	case chunk.OpShl:
		val, amount, err := v.popPair()
		if err != nil {
			return err
		}
		n, err := shiftAmount(amount)
		if err != nil {
			return err
		}
		v.stack.Push(val.Lsh(val, n))

	case chunk.OpShr:
		val, amount, err := v.popPair()
		if err != nil {
			return err
		}
		n, err := shiftAmount(amount)
		if err != nil {
			return err
		}
		v.stack.Push(val.Rsh(val, n))

	// ---- Stack / memory ----------------------------------------------------

	case chunk.OpPush:
		v.stack.Push(new(big.Int).Set(arg))

	case chunk.OpLoad:
		v.stack.Push(v.mem.Load(arg))

	case chunk.OpStore:
		val, err := v.stack.Pop()
		if err != nil {
			return err
		}
		v.mem.Store(arg, val)

	case chunk.OpAlloc:
		if !arg.IsInt64() {
			return fmt.Errorf("%w: alloc of %s words", ErrMemoryOutOfRange, arg)
		}
		base, err := v.mem.Alloc(arg.Int64())
		if err != nil {
			return err
		}
		v.stack.Push(big.NewInt(base))

	case chunk.OpFree:
		base := arg
		if arg.Sign() == 0 {
			popped, err := v.stack.Pop()
			if err != nil {
				return err
			}
			base = popped
		}
		if !base.IsInt64() {
			return fmt.Errorf("%w: free of base %s", ErrMemoryOutOfRange, base)
		}
		if err := v.mem.Free(base.Int64()); err != nil {
			return err
		}

	// ---- Control flow ------------------------------------------------------

	case chunk.OpJmp:
		return v.branch(arg)

	case chunk.OpJz:
		cond, err := v.stack.Pop()
		if err != nil {
			return err
		}
		if cond.Sign() == 0 {
			return v.branch(arg)
		}

	case chunk.OpJnz:
		cond, err := v.stack.Pop()
		if err != nil {
			return err
		}
		if cond.Sign() != 0 {
			return v.branch(arg)
		}

	case chunk.OpCall:
		ret := v.pc
		if err := v.branch(arg); err != nil {
			return err
		}
		v.frames = append(v.frames, frame{ret: ret, entry: v.pc})

	case chunk.OpRet:
		if len(v.frames) == 0 {
			v.halted = true
			return nil
		}
		f := v.frames[len(v.frames)-1]
		v.frames = v.frames[:len(v.frames)-1]
		v.pc = f.ret

	// ---- I/O ---------------------------------------------------------------

	case chunk.OpPrint:
		val, err := v.stack.Pop()
		if err != nil {
			return err
		}
		v.out = append(v.out, OutputEntry{Kind: KindPrint, Value: val})

	case chunk.OpOutput:
		val, err := v.stack.Pop()
		if err != nil {
			return err
		}
		v.out = append(v.out, OutputEntry{Kind: KindOutput, Value: val})

	case chunk.OpInput:
		switch {
		case len(v.input) > 0:
			v.stack.Push(v.input[0])
			v.input = v.input[1:]
		case v.inputSrc != nil:
			val, err := v.inputSrc.Read()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInputExhausted, err)
			}
			v.stack.Push(val)
		default:
			return ErrInputExhausted
		}

	case chunk.OpTrace:
		top, err := v.stack.Peek()
		if err != nil {
			return err
		}
		v.out = append(v.out, OutputEntry{Kind: KindTrace, Value: new(big.Int).Set(top)})

	case chunk.OpBrk:
		v.out = append(v.out, OutputEntry{Kind: KindBrk})
		if br, ok := v.hook.(Breaker); ok {
			br.OnBreak(v, pc)
		}

	// ---- Host services -----------------------------------------------------

	case chunk.OpHash, chunk.OpSign, chunk.OpVerify, chunk.OpRng,
		chunk.OpSyscall, chunk.OpInt, chunk.OpNetSend, chunk.OpNetRecv:
		if v.gw == nil {
			return fmt.Errorf("%w: no gateway configured for %s", ErrGateway, op)
		}
		replaced, err := v.gw.Call(ctx, op, v.stack.Snapshot())
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrGateway, op, err)
		}
		v.stack.Replace(replaced)

	// ---- Composite ---------------------------------------------------------

	case chunk.OpCheckpoint:
		if v.store == nil {
			break
		}
		if err := v.store.Save(v.Snapshot()); err != nil {
			return fmt.Errorf("%w: checkpoint: %v", ErrGateway, err)
		}

	case chunk.OpBlock:
		n, err := v.extent(arg)
		if err != nil {
			return err
		}
		child := v.newChild(v.prog[v.pc : v.pc+n])
		child.stack = v.stack.Clone()
		if v.maxSteps > 0 {
			child.maxSteps = v.maxSteps - v.steps
		}
		err = child.RunContext(ctx)
		v.steps += child.steps
		v.out = append(v.out, child.out...)
		if err != nil {
			return err
		}
		v.pc += n

	case chunk.OpNtt:
		n, err := v.extent(arg)
		if err != nil {
			return err
		}
		if err := nttRoundtrip(v.prog[v.pc : v.pc+n]); err != nil {
			return err
		}

	case chunk.OpThreadStart:
		n, err := v.extent(arg)
		if err != nil {
			return err
		}
		if err := v.startThread(ctx, v.prog[v.pc:v.pc+n]); err != nil {
			return err
		}
		v.pc += n

	case chunk.OpThreadJoin:
		handle, err := v.stack.Pop()
		if err != nil {
			return err
		}
		if err := v.joinThread(ctx, handle); err != nil {
			return err
		}

	// ---- Misc --------------------------------------------------------------

	case chunk.OpHalt:
		v.halted = true

	case chunk.OpNop:

	default:
		return fmt.Errorf("%w: opcode %d unhandled", chunk.ErrCorrupt, uint64(op))
	}

	return nil
}

// shiftAmount bounds a shift operand.
func shiftAmount(amount *big.Int) (uint, error) {
	if amount.Sign() < 0 || !amount.IsInt64() || amount.Int64() > maxShift {
		return 0, fmt.Errorf("%w: %s", ErrBadShift, amount)
	}
	return uint(amount.Int64()), nil
}
