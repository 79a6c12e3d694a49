package jit

import (
	"log"

	"forge/graph"
	"forge/isa"
	"forge/regalloc"
)

// codegen holds the state shared by the forward and reverse emitters: the
// graph being compiled, the growing code buffer, the chosen instruction-set
// strategy, the register allocator, and the constant-pool planner. Splitting
// "forward" and "reverse" into separate passes over one codegen (rather than
// two unrelated types) keeps one continuous instruction stream and one
// constant pool across both passes; the reverse pass reloads every value
// it needs from the buffer rather than reusing forward-pass registers.
type codegen struct {
	g        *graph.Graph
	buf      *isa.CodeBuffer
	e        isa.Emitter
	alloc    *regalloc.Allocator
	pool     *ConstPool
	numNodes int
	logger   *log.Logger

	coeffCache map[graph.Opcode][]int
}

func newCodegen(g *graph.Graph, e isa.Emitter, pool *ConstPool, logger *log.Logger) *codegen {
	return &codegen{
		g:          g,
		buf:        isa.NewCodeBuffer(),
		e:          e,
		alloc:      regalloc.New(16),
		pool:       pool,
		numNodes:   g.Size(),
		logger:     logger,
		coeffCache: make(map[graph.Opcode][]int),
	}
}

// store is the regalloc.StoreFunc used for every VALUE-slot spill in both
// passes: a node's result lives at buffer slot node_id.
func (c *codegen) store(r int, id graph.NodeId) {
	c.e.EmitStore(c.buf, r, int(id))
}

// load is the regalloc.LoadFunc used for VALUE slots. Constant/BoolConstant
// /IntConstant nodes load from the constant pool (or EmitZero for the
// zero value, which is never pool-allocated per spec §4.3); every other
// node — including Input, whose slot the caller pre-populates — loads from
// its own buffer slot.
func (c *codegen) load(r int, id graph.NodeId) {
	n := c.g.Node(id)
	switch n.Op {
	case graph.Constant:
		v := c.g.ConstPool()[int(n.Imm)]
		c.loadLiteral(r, v)
	case graph.BoolConstant, graph.IntConstant:
		c.loadLiteral(r, n.Imm)
	default:
		c.e.EmitLoad(c.buf, r, int(id))
	}
}

func (c *codegen) loadLiteral(r int, v float64) {
	if v == 0 {
		c.e.EmitZero(c.buf, r)
		return
	}
	c.e.EmitLoadFromPool(c.buf, r, c.pool.Offset(v))
}

// ensureAvoiding is the common entry point both passes use to get a node's
// VALUE into a register, honoring an avoid set so an operand already
// resident in another register isn't evicted out from under a sibling
// operand lookup.
func (c *codegen) ensureAvoiding(id graph.NodeId, avoid map[int]bool) (int, error) {
	return c.alloc.EnsureInRegister(id, avoid, c.store, c.load)
}

// scratch allocates a register for a value with no Graph identity (a
// temporary used mid-instruction-sequence), spilling a dirty cached value
// out of the way first if necessary.
func (c *codegen) scratch(avoid map[int]bool) (int, error) {
	return c.alloc.AllocateAvoiding(avoid, c.store)
}

// registerCoeffs returns the constant-pool offsets of op's Horner
// coefficients (isa.TranscendentalCoeffs), registering each with the pool
// on first request and caching the offsets for reuse by later nodes of the
// same opcode.
func (c *codegen) registerCoeffs(op graph.Opcode) []int {
	if offs, ok := c.coeffCache[op]; ok {
		return offs
	}
	// Tan has no table entry of its own: isa.EmitTranscendental computes it
	// as sin(r)/cos(r), so its coefficient pool is Sin's coefficients
	// followed by Cos's.
	if op == graph.Tan {
		offs := append(append([]int{}, c.registerCoeffs(graph.Sin)...), c.registerCoeffs(graph.Cos)...)
		c.coeffCache[op] = offs
		return offs
	}
	coeffs := isa.TranscendentalCoeffs[op]
	offs := make([]int, len(coeffs))
	for i, v := range coeffs {
		offs[i] = c.pool.Offset(v)
	}
	c.coeffCache[op] = offs
	return offs
}

// rangeConsts builds the pool offsets isa.EmitTranscendental needs to fold
// an operand into its polynomial's convergence interval (spec §4.5, §9).
func (c *codegen) rangeConsts() isa.RangeReductionConsts {
	return isa.RangeReductionConsts{
		SignMask:          c.pool.SignMaskOffset(),
		One:               c.pool.BoolOneOffset(),
		Half:              c.pool.HalfOffset(),
		Ln2:               c.pool.Ln2Offset(),
		InvLn2:            c.pool.InvLn2Offset(),
		TwoPi:             c.pool.TwoPiOffset(),
		InvTwoPi:          c.pool.InvTwoPiOffset(),
		ExponentBias:      c.pool.ExponentBiasOffset(),
		DoubleMagic:       c.pool.DoubleMagicOffset(),
		MantissaMask:      c.pool.MantissaMaskOffset(),
		ExponentClearMask: c.pool.ExponentClearMaskOffset(),
	}
}

// avoidSet builds a map[int]bool from a small fixed list of registers —
// shorthand used throughout forward.go/reverse.go wherever multiple
// already-chosen registers must all be excluded from a further allocation.
func avoidSet(regs ...int) map[int]bool {
	m := make(map[int]bool, len(regs))
	for _, r := range regs {
		m[r] = true
	}
	return m
}
