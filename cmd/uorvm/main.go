// Copyright 2025 The uor-labs Authors
// This file is part of the uor-labs library.

// Command uorvm assembles and executes prime-power chunk programs.
//
// Usage:
//
//	uorvm assemble [-o OUT] [--emit stage] [IN]
//	uorvm disasm [IN]
//	uorvm run [--config FILE] [--max-steps N] [--input CSV] [IN]
//	uorvm debug [-b IDX]... [-w ADDR]... IN
//	uorvm profile IN
//	uorvm flamegraph IN
//
// Exit status is 0 on a normal HALT, 1 on a fatal VM error, and 2 on an
// assembler error.
package main

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/inconshreveable/log15"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/UOR-Foundation/uor-labs/asm"
	"github.com/UOR-Foundation/uor-labs/checkpoint"
	"github.com/UOR-Foundation/uor-labs/chunk"
	"github.com/UOR-Foundation/uor-labs/vm"
	"github.com/UOR-Foundation/uor-labs/vm/hostgw"
)

const version = "0.3.0"

var (
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=crit ... 4=debug",
		Value: 2,
	}
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	outputFlag = cli.StringFlag{
		Name:  "o",
		Usage: "Output file (default: stdout)",
	}
	emitFlag = cli.StringFlag{
		Name:  "emit",
		Usage: "Emit stage: chunks, listing",
		Value: "chunks",
	}
	maxStepsFlag = cli.Uint64Flag{
		Name:  "max-steps",
		Usage: "Step budget (0 = unlimited)",
	}
	inputFlag = cli.StringFlag{
		Name:  "input",
		Usage: "Comma-separated decimal values pre-loaded on the input queue",
	}
	checkpointDirFlag = cli.StringFlag{
		Name:  "checkpoint-dir",
		Usage: "Directory for CHECKPOINT snapshots",
	}
	breakFlag = cli.IntSliceFlag{
		Name:  "b",
		Usage: "Breakpoint at chunk index (repeatable)",
	}
	watchFlag = cli.Int64SliceFlag{
		Name:  "w",
		Usage: "Watchpoint on memory address (repeatable)",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "uorvm"
	app.Usage = "prime-power chunk assembler and virtual machine"
	app.Version = version
	app.Flags = []cli.Flag{verbosityFlag}
	app.Before = func(ctx *cli.Context) error {
		lvl := log15.Lvl(ctx.GlobalInt(verbosityFlag.Name))
		log15.Root().SetHandler(log15.LvlFilterHandler(lvl,
			log15.StreamHandler(os.Stderr, log15.TerminalFormat())))
		return nil
	}
	app.Commands = []cli.Command{
		assembleCommand,
		disasmCommand,
		runCommand,
		debugCommand,
		profileCommand,
		flamegraphCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var assembleCommand = cli.Command{
	Action:    assembleCmd,
	Name:      "assemble",
	Usage:     "Translate assembly text into a chunk list",
	ArgsUsage: "[IN]",
	Category:  "TOOLCHAIN COMMANDS",
	Flags:     []cli.Flag{outputFlag, emitFlag},
	Description: `Reads assembly from IN (or stdin) and writes the chunk list,
one decimal integer per line. Exits 2 on any assembler error.`,
}

var disasmCommand = cli.Command{
	Action:    disasmCmd,
	Name:      "disasm",
	Usage:     "List the instructions of a chunk program",
	ArgsUsage: "[IN]",
	Category:  "TOOLCHAIN COMMANDS",
}

var runCommand = cli.Command{
	Action:    runCmd,
	Name:      "run",
	Usage:     "Execute a program (assembly text or chunk list)",
	ArgsUsage: "[IN]",
	Category:  "EXECUTION COMMANDS",
	Flags:     []cli.Flag{configFileFlag, maxStepsFlag, inputFlag, checkpointDirFlag},
	Description: `Assembles IN when it is text, loads it when it is a chunk
list, and executes it. The output queue is written to stdout; trace entries
go to stderr.`,
}

var debugCommand = cli.Command{
	Action:    debugCmd,
	Name:      "debug",
	Usage:     "Execute with the interactive debugger attached",
	ArgsUsage: "IN",
	Category:  "EXECUTION COMMANDS",
	Flags:     []cli.Flag{configFileFlag, maxStepsFlag, inputFlag, breakFlag, watchFlag},
}

var profileCommand = cli.Command{
	Action:    profileCmd,
	Name:      "profile",
	Usage:     "Execute and print per-opcode execution counts",
	ArgsUsage: "IN",
	Category:  "EXECUTION COMMANDS",
	Flags:     []cli.Flag{configFileFlag, maxStepsFlag, inputFlag},
}

var flamegraphCommand = cli.Command{
	Action:    flamegraphCmd,
	Name:      "flamegraph",
	Usage:     "Execute and print folded call-stack samples",
	ArgsUsage: "IN",
	Category:  "EXECUTION COMMANDS",
	Flags:     []cli.Flag{configFileFlag, maxStepsFlag, inputFlag},
}

// ---- Command bodies --------------------------------------------------------

func assembleCmd(ctx *cli.Context) error {
	src, err := readInput(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	prog, err := asm.Assemble(string(src))
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	out := os.Stdout
	if path := ctx.String(outputFlag.Name); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 2)
		}
		defer f.Close()
		out = f
	}
	switch stage := ctx.String(emitFlag.Name); stage {
	case "chunks":
		err = prog.Write(out)
	case "listing":
		_, err = io.WriteString(out, chunk.Disassemble(prog))
	default:
		err = fmt.Errorf("unknown emit stage: %s", stage)
	}
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	return nil
}

func disasmCmd(ctx *cli.Context) error {
	prog, err := loadProgram(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	fmt.Print(chunk.Disassemble(prog))
	return nil
}

func runCmd(ctx *cli.Context) error {
	machine, cleanup, err := makeVM(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	runErr := machine.Run()
	writeOutput(machine.Output())
	if runErr != nil {
		return cli.NewExitError(runErr.Error(), 1)
	}
	return nil
}

func profileCmd(ctx *cli.Context) error {
	prof := vm.NewProfiler(1)
	machine, cleanup, err := makeVM(ctx, prof)
	if err != nil {
		return err
	}
	defer cleanup()

	runErr := machine.Run()
	writeOutput(machine.Output())

	counts := prof.Counts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Opcode", "Count", "Share"})
	total := prof.Total()
	for _, name := range names {
		table.Append([]string{
			name,
			fmt.Sprintf("%d", counts[name]),
			fmt.Sprintf("%.1f%%", 100*float64(counts[name])/float64(total)),
		})
	}
	table.SetFooter([]string{"TOTAL", fmt.Sprintf("%d", total), ""})
	table.Render()

	if runErr != nil {
		return cli.NewExitError(runErr.Error(), 1)
	}
	return nil
}

func flamegraphCmd(ctx *cli.Context) error {
	prof := vm.NewProfiler(1)
	machine, cleanup, err := makeVM(ctx, prof)
	if err != nil {
		return err
	}
	defer cleanup()

	runErr := machine.Run()
	if err := prof.WriteFolded(os.Stdout); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if runErr != nil {
		return cli.NewExitError(runErr.Error(), 1)
	}
	return nil
}

// ---- Shared plumbing -------------------------------------------------------

// makeVM loads the program named by the context, merges config file and
// flags, and builds a VM with the default host gateway.
func makeVM(ctx *cli.Context, hook vm.Hook) (*vm.VM, func(), error) {
	prog, err := loadProgram(ctx)
	if err != nil {
		return nil, nil, cli.NewExitError(err.Error(), 2)
	}
	settings, err := makeSettings(ctx)
	if err != nil {
		return nil, nil, cli.NewExitError(err.Error(), 2)
	}

	gw, err := hostgw.New()
	if err != nil {
		return nil, nil, cli.NewExitError(err.Error(), 1)
	}
	cfg := vm.Config{
		MaxSteps:   settings.VM.MaxSteps,
		MaxThreads: settings.VM.MaxThreads,
		Gateway:    gw,
		Hook:       hook,
		Input:      settings.inputValues,
	}

	cleanup := func() {}
	if dir := settings.Checkpoint.Dir; dir != "" {
		store, err := checkpoint.Open(dir)
		if err != nil {
			return nil, nil, cli.NewExitError(err.Error(), 1)
		}
		cfg.Store = store
		cleanup = func() { store.Close() }
	}
	return vm.New(prog, cfg), cleanup, nil
}

// loadProgram reads IN (file or stdin) as a chunk list, falling back to
// assembling it as source text.
func loadProgram(ctx *cli.Context) (chunk.Program, error) {
	src, err := readInput(ctx)
	if err != nil {
		return nil, err
	}
	if prog, err := chunk.Parse(strings.NewReader(string(src))); err == nil && len(prog) > 0 {
		return prog, nil
	}
	return asm.Assemble(string(src))
}

func readInput(ctx *cli.Context) ([]byte, error) {
	if ctx.NArg() < 1 {
		if isatty.IsTerminal(os.Stdin.Fd()) {
			return nil, fmt.Errorf("no input file and stdin is a terminal")
		}
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(ctx.Args().First())
}

// writeOutput renders print/output entries to stdout and trace/brk entries
// to stderr.
func writeOutput(entries []vm.OutputEntry) {
	wrote := false
	for _, e := range entries {
		switch e.Kind {
		case vm.KindPrint, vm.KindOutput:
			fmt.Print(e.Render())
			wrote = true
		default:
			fmt.Fprintf(os.Stderr, "%s: %s\n", e.Kind, e.Render())
		}
	}
	if wrote {
		fmt.Println()
	}
}

func parseInputList(csv string) ([]*big.Int, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	var out []*big.Int
	for _, tok := range strings.Split(csv, ",") {
		n, ok := new(big.Int).SetString(strings.TrimSpace(tok), 10)
		if !ok {
			return nil, fmt.Errorf("input value %q is not a decimal integer", tok)
		}
		out = append(out, n)
	}
	return out, nil
}
