package jit

import (
	"log"
	"os"

	"forge/isa"
)

// CompilerConfig configures one Compile call (spec §6's configuration
// table). It is a plain struct literal, not a parsed config file — the
// teacher's own NewVirtualMachine(debug bool, files ...string) takes
// configuration as constructor parameters rather than reading environment
// or flag state from inside the core, and Forge follows that here; only
// cmd/forge's CLI layer reaches for the flag package.
type CompilerConfig struct {
	InstructionSet isa.Kind

	// Diagnostic toggles (spec §6). PrintOriginalGraph, PrintNodeFlags,
	// PrintGradientDebug and PrintOptimizationStats each gate textual output
	// to Logger; Compile runs no optimisation pass and prints nothing for
	// PrintOptimizedGraph. The output matches the teacher's plain fmt.Println/fmt.Printf diagnostics
	// (vm.printCurrentState, vm.printProgram) just routed through a
	// *log.Logger instead of bare stdout writes.
	PrintOriginalGraph     bool
	PrintOptimizedGraph    bool
	PrintOptimizationStats bool
	PrintNodeFlags         bool
	PrintGradientDebug     bool

	// Logger receives diagnostic output when any Print* toggle is set.
	// Defaults to a logger writing to os.Stdout with no prefix, when left
	// nil (DefaultConfig below sets it explicitly; zero-value configs are
	// given one lazily by Compile).
	Logger *log.Logger
}

// DefaultConfig returns a CompilerConfig selecting SSE2 scalar codegen
// with every diagnostic toggle off, logging to stdout.
func DefaultConfig() CompilerConfig {
	return CompilerConfig{
		InstructionSet: isa.SSE2Scalar,
		Logger:         log.New(os.Stdout, "", 0),
	}
}

func (c *CompilerConfig) logger() *log.Logger {
	if c.Logger == nil {
		return log.New(os.Stdout, "", 0)
	}
	return c.Logger
}
