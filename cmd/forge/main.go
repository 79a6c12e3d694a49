// Command forge is a small demonstration front end for the Forge JIT: it
// records one fixed expression graph, compiles it, runs it over a Buffer,
// and prints the result and (since the graph seeds a diff-input) its
// gradient. Mirrors the teacher's own single-binary CLI shape
// (flag-configured, one main.go) rather than growing a cmd/ subcommand
// tree the spec never asked for.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"forge/buffer"
	"forge/graph"
	"forge/isa"
	"forge/jit"
	"forge/recorder"
	"forge/trace"
)

var (
	xFlag    = flag.Float64("x", 2.0, "value bound to the differentiable input x")
	yFlag    = flag.Float64("y", 3.0, "value bound to the plain input y")
	avx2Flag = flag.Bool("avx2", false, "compile with the AVX2 4-wide backend instead of SSE2 scalar")
	printAsm = flag.Bool("print-stats", false, "print compiled-code size and pool stats")
)

func init() {
	flag.Parse()
}

// demoIDs holds the node ids the demo needs to feed inputs into and read
// results back out of, once the recording session that produced them has
// already stopped.
type demoIDs struct {
	x, y, result graph.NodeId
}

// buildGraph records result = sin(x)*y + x^2, with x marked as the sole
// differentiable input.
func buildGraph(xVal, yVal float64) (*graph.Graph, demoIDs, error) {
	rec := recorder.New()
	if err := rec.Start(); err != nil {
		return nil, demoIDs{}, err
	}

	x, err := trace.DiffInput(xVal)
	if err != nil {
		return nil, demoIDs{}, err
	}
	y, err := trace.Input(yVal)
	if err != nil {
		return nil, demoIDs{}, err
	}

	result := x.Sin().Mul(y).Add(x.Square())
	if err := trace.MarkOutput(result); err != nil {
		return nil, demoIDs{}, err
	}

	ids := demoIDs{
		x:      x.NodeId(rec),
		y:      y.NodeId(rec),
		result: result.NodeId(rec),
	}

	g, err := rec.Stop()
	if err != nil {
		return nil, demoIDs{}, err
	}
	return g, ids, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	g, ids, err := buildGraph(*xFlag, *yFlag)
	if err != nil {
		return fmt.Errorf("forge: record: %w", err)
	}

	cfg := jit.DefaultConfig()
	cfg.PrintOptimizationStats = *printAsm
	if *avx2Flag {
		cfg.InstructionSet = isa.AVX2Packed
	}

	kernel, err := jit.Compile(g, cfg)
	if err != nil {
		return fmt.Errorf("forge: compile: %w", err)
	}
	defer kernel.Close()

	buf := buffer.New(g, kernel)
	if err := buf.SetValue(ids.x, *xFlag); err != nil {
		return err
	}
	if err := buf.SetValue(ids.y, *yFlag); err != nil {
		return err
	}

	if err := kernel.Execute(buf); err != nil {
		return fmt.Errorf("forge: execute: %w", err)
	}

	result, err := buf.GetValue(ids.result)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "result = %.10f\n", result)

	grad, err := buf.GetGradient(ids.x)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "d(result)/dx = %.10f\n", grad)
	return nil
}
