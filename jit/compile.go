package jit

import (
	"forge/graph"
	"forge/isa"
)

// Compile lowers a frozen Graph to native code per cfg and returns a
// Kernel ready for repeated Execute calls (spec §4's top-level pipeline:
// plan a constant pool, allocate executable memory, emit forward and
// optional reverse passes).
//
// hasReverse is true whenever the graph has at least one diff-input: a
// reverse pass is emitted unconditionally once the graph has
// any diff-inputs at all, so a diff-input feeding no marked output simply
// gets an all-zero gradient rather than a skipped pass (keeping Kernel's
// shape predictable from the Graph alone, independent of which outputs a
// caller happens to mark).
func Compile(g *graph.Graph, cfg CompilerConfig) (*Kernel, error) {
	if !g.Frozen() {
		g.Freeze()
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	e, err := emitterFor(cfg.InstructionSet)
	if err != nil {
		return nil, err
	}

	log := cfg.logger()
	if cfg.PrintOriginalGraph {
		log.Printf("forge: graph (%d nodes, %d outputs, %d diff-inputs)", g.Size(), len(g.Outputs()), len(g.DiffInputs()))
	}
	if cfg.PrintNodeFlags {
		for _, n := range g.Nodes() {
			log.Printf("forge: node %d %v active=%v needsGradient=%v dead=%v", n.Dst, n.Op, n.IsActive, n.NeedsGradient, n.IsDead)
		}
	}

	hasReverse := len(g.DiffInputs()) > 0
	pool := NewConstPool(cfg.InstructionSet)
	c := newCodegen(g, e, pool, log)

	e.Prologue(c.buf)
	if err := c.emitForward(); err != nil {
		return nil, err
	}
	if hasReverse {
		if cfg.PrintGradientDebug {
			log.Printf("forge: emitting reverse pass for %d diff-input(s)", len(g.DiffInputs()))
		}
		if err := c.emitReverse(); err != nil {
			return nil, err
		}
	}
	e.Epilogue(c.buf)

	if cfg.PrintOptimizationStats {
		log.Printf("forge: emitted %d bytes of code, %d pool entries", c.buf.Len(), len(pool.values))
	}

	return newKernel(c.buf, pool, g.Size(), e, hasReverse)
}

func emitterFor(kind isa.Kind) (isa.Emitter, error) {
	switch kind {
	case isa.SSE2Scalar:
		return isa.SSE2{}, nil
	case isa.AVX2Packed:
		return isa.AVX2{}, nil
	default:
		return nil, ErrUnsupportedInstructionSet
	}
}
