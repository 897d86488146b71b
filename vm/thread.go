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
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// thread is one spawned subordinate VM. Threads share nothing with the
// parent except the spawn-time stack copy; their output is merged at join.
type thread struct {
	id   int64
	uid  string
	vm   *VM
	done chan struct{}
	err  error
}

// startThread spawns a subordinate VM over body on its own goroutine and
// pushes the join handle onto the parent's stack. The thread semaphore
// shared by the top-level VM and all its children bounds how many children
// run at once.
func (v *VM) startThread(ctx context.Context, body []*big.Int) error {
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrThreadHandle, err)
	}
	child := v.newChild(body)
	child.stack = v.stack.Clone()
	child.maxSteps = v.maxSteps

	if v.threads == nil {
		v.threads = make(map[int64]*thread)
	}
	v.nextThread++
	t := &thread{
		id:   v.nextThread,
		uid:  uuid.New().String(),
		vm:   child,
		done: make(chan struct{}),
	}
	v.threads[t.id] = t
	logger.Debug("thread started", "id", t.id, "uid", t.uid, "chunks", len(body))

	go func() {
		defer v.sem.Release(1)
		defer close(t.done)
		t.err = child.RunContext(ctx)
	}()

	v.stack.Push(big.NewInt(t.id))
	return nil
}

// joinThread pops nothing itself; the caller hands it the popped handle. It
// blocks until the child terminates, merges the child's output queue in
// child-emission order, and re-raises the child's fatal error. A handle is
// joinable once and only once.
func (v *VM) joinThread(ctx context.Context, handle *big.Int) error {
	if !handle.IsInt64() {
		return fmt.Errorf("%w: %s", ErrThreadHandle, handle)
	}
	t, ok := v.threads[handle.Int64()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrThreadHandle, handle)
	}
	delete(v.threads, t.id)

	select {
	case <-t.done:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrThreadHandle, ctx.Err())
	}
	logger.Debug("thread joined", "id", t.id, "uid", t.uid, "entries", len(t.vm.out))

	v.out = append(v.out, t.vm.out...)
	return t.err
}
