// Copyright 2025 The uor-labs Authors
// This file is part of the uor-labs library.

package main

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/UOR-Foundation/uor-labs/vm"
)

var (
	eventColor = color.New(color.FgYellow, color.Bold)
	errColor   = color.New(color.FgRed, color.Bold)
)

func debugCmd(ctx *cli.Context) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}

	ctrl := vm.NewDebugController()
	for _, idx := range ctx.IntSlice(breakFlag.Name) {
		ctrl.AddBreak(idx)
	}
	for _, addr := range ctx.Int64Slice(watchFlag.Name) {
		ctrl.AddWatch(addr)
	}

	machine, cleanup, err := makeVM(ctx, ctrl)
	if err != nil {
		return err
	}
	defer cleanup()

	done := make(chan error, 1)
	go func() { done <- machine.Run() }()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		select {
		case ev := <-ctrl.Events():
			printEvent(ev)
			if quit := prompt(line, machine, ctrl); quit {
				// Detach: auto-resume any remaining stops and let the
				// program run to completion.
				ctrl.SetStep(false)
				ctrl.Resume()
				for {
					select {
					case <-ctrl.Events():
						ctrl.Resume()
					case err := <-done:
						writeOutput(machine.Output())
						if err != nil {
							return cli.NewExitError(err.Error(), 1)
						}
						return nil
					}
				}
			}
		case err := <-done:
			writeOutput(machine.Output())
			if err != nil {
				errColor.Fprintln(os.Stderr, err)
				return cli.NewExitError(err.Error(), 1)
			}
			fmt.Fprintln(os.Stderr, "program terminated")
			return nil
		}
	}
}

func printEvent(ev vm.Event) {
	switch ev.Kind {
	case vm.EventWatch:
		eventColor.Fprintf(os.Stderr, "watchpoint @%d: %s -> %s (pc=%d %s)\n",
			ev.Addr, ev.Old, ev.New, ev.PC, ev.Op)
	case vm.EventBrk:
		eventColor.Fprintf(os.Stderr, "BRK at pc=%d\n", ev.PC)
	default:
		if ev.Arg != nil && ev.Arg.Sign() != 0 {
			eventColor.Fprintf(os.Stderr, "stopped at pc=%d: %s %s (depth=%d)\n",
				ev.PC, ev.Op, ev.Arg, ev.Depth)
		} else {
			eventColor.Fprintf(os.Stderr, "stopped at pc=%d: %s (depth=%d)\n",
				ev.PC, ev.Op, ev.Depth)
		}
	}
}

// prompt reads debugger commands until one resumes execution. It returns
// true when the user asked to quit.
func prompt(line *liner.State, machine *vm.VM, ctrl *vm.DebugController) bool {
	for {
		input, err := line.Prompt("(uorvm) ")
		if err != nil {
			return true
		}
		line.AppendHistory(input)
		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "c", "continue":
			ctrl.SetStep(false)
			ctrl.Resume()
			return false
		case "s", "step":
			ctrl.SetStep(true)
			ctrl.Resume()
			return false
		case "b", "break":
			if idx, ok := atoiArg(fields); ok {
				ctrl.AddBreak(idx)
				fmt.Fprintf(os.Stderr, "breakpoint at chunk %d\n", idx)
			}
		case "d", "delete":
			if idx, ok := atoiArg(fields); ok {
				ctrl.RemoveBreak(idx)
			}
		case "w", "watch":
			if addr, ok := atoiArg(fields); ok {
				ctrl.AddWatch(int64(addr))
				fmt.Fprintf(os.Stderr, "watchpoint at address %d\n", addr)
			}
		case "stack":
			for i, v := range machine.Stack().Snapshot() {
				fmt.Fprintf(os.Stderr, "  [%d] %s\n", i, v)
			}
		case "mem":
			if addr, ok := atoiArg(fields); ok {
				fmt.Fprintln(os.Stderr, machine.Memory().Load(big.NewInt(int64(addr))))
			}
		case "out":
			for _, e := range machine.Output() {
				fmt.Fprintf(os.Stderr, "  %s %s\n", e.Kind, e.Render())
			}
		case "dump":
			spew.Fdump(os.Stderr, machine.Snapshot())
		case "q", "quit":
			return true
		default:
			fmt.Fprintln(os.Stderr, "commands: c s b|d IDX w ADDR stack mem ADDR out dump q")
		}
	}
}

func atoiArg(fields []string) (int, bool) {
	if len(fields) < 2 {
		fmt.Fprintln(os.Stderr, "missing argument")
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad argument:", fields[1])
		return 0, false
	}
	return n, true
}
