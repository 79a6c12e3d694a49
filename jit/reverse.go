package jit

import (
	"forge/graph"
	"forge/isa"
)

// emitReverse implements spec §4.7's AAD reverse emitter: seed each
// differentiable output's adjoint to 1.0, then walk the graph in reverse
// order accumulating each node's adjoint into its operands' adjoint slots
// via the opcode's partial-derivative formula. Adjoints are addressed at
// buffer slot numNodes+id, the parallel region the spec reserves alongside
// the value slots, and are never cached in the register allocator — every
// accumulation is a plain load-add-store, deliberately simpler than the
// forward pass's register-resident bookkeeping so the arithmetic here stays
// easy to audit against the calculus it's implementing.
func (c *codegen) emitReverse() error {
	for _, out := range c.g.Outputs() {
		if !c.g.Node(out).NeedsGradient {
			continue
		}
		r, err := c.scratch(nil)
		if err != nil {
			return err
		}
		c.e.EmitLoadImmediate(c.buf, r, c.pool.Offset(1.0))
		c.adjointStore(r, out)
	}

	for i := c.g.Size() - 1; i >= 0; i-- {
		id := graph.NodeId(i)
		n := c.g.Node(id)
		if n.IsDead || !n.NeedsGradient {
			continue
		}
		if n.Op.IsComparison() || n.Op.IsBoolLogic() || n.Op.IsIntDomain() {
			continue // zero real derivative (spec §4.7 point 2)
		}
		if err := c.emitReverseNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (c *codegen) adjointSlot(id graph.NodeId) int { return c.numNodes + int(id) }

func (c *codegen) adjointLoad(r int, id graph.NodeId) {
	c.e.EmitLoad(c.buf, r, c.adjointSlot(id))
}

func (c *codegen) adjointStore(r int, id graph.NodeId) {
	c.e.EmitStore(c.buf, r, c.adjointSlot(id))
}

// accumulate adds the value in contrib into id's adjoint slot: a plain
// read-modify-write, since two different operands of the same node (or two
// different nodes sharing an operand) may both contribute to the same
// adjoint over the course of the reverse walk.
func (c *codegen) accumulate(id graph.NodeId, contrib int, avoid map[int]bool) error {
	tmp, err := c.scratch(avoid)
	if err != nil {
		return err
	}
	c.adjointLoad(tmp, id)
	c.e.EmitAdd(c.buf, tmp, contrib)
	c.adjointStore(tmp, id)
	return nil
}

// subtractFrom accumulates -contrib into id's adjoint (used by Sub/Neg/Cos
// where the partial derivative is negative one or carries a leading minus).
func (c *codegen) subtractFrom(id graph.NodeId, contrib int, avoid map[int]bool) error {
	tmp, err := c.scratch(avoid)
	if err != nil {
		return err
	}
	c.adjointLoad(tmp, id)
	c.e.EmitSub(c.buf, tmp, contrib)
	c.adjointStore(tmp, id)
	return nil
}

func (c *codegen) emitReverseNode(n *graph.Node) error {
	adj, err := c.scratch(nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(adj)
	defer c.alloc.Unlock(adj)
	c.adjointLoad(adj, n.Dst)

	switch n.Op {
	case graph.Add:
		if err := c.accumulate(n.A, adj, avoidSet(adj)); err != nil {
			return err
		}
		return c.accumulate(n.B, adj, avoidSet(adj))

	case graph.Sub:
		if err := c.accumulate(n.A, adj, avoidSet(adj)); err != nil {
			return err
		}
		return c.subtractFrom(n.B, adj, avoidSet(adj))

	case graph.Neg, graph.IntNeg:
		return c.subtractFrom(n.A, adj, avoidSet(adj))

	case graph.Mul:
		return c.emitMulAdjoint(n, adj)

	case graph.Div:
		return c.emitDivAdjoint(n, adj)

	case graph.Square:
		// d(a^2)/da = 2a; opA += adj*2*a.
		a, err := c.scratch(avoidSet(adj))
		if err != nil {
			return err
		}
		c.alloc.Lock(a)
		c.load(a, n.A)
		c.e.EmitAdd(c.buf, a, a) // a = 2*a
		c.e.EmitMul(c.buf, a, adj)
		c.alloc.Unlock(a)
		return c.accumulate(n.A, a, avoidSet(adj, a))

	case graph.Recip:
		// r = 1/a, dr/da = -r^2; opA += -adj*r*r.
		r, err := c.scratch(avoidSet(adj))
		if err != nil {
			return err
		}
		c.alloc.Lock(r)
		c.load(r, n.Dst)
		c.e.EmitSquare(c.buf, r, r)
		c.e.EmitMul(c.buf, r, adj)
		c.alloc.Unlock(r)
		return c.subtractFrom(n.A, r, avoidSet(adj, r))

	case graph.Sqrt:
		// r = sqrt(a), dr/da = 1/(2r); opA += adj/(2r).
		r, err := c.scratch(avoidSet(adj))
		if err != nil {
			return err
		}
		c.alloc.Lock(r)
		c.load(r, n.Dst)
		c.e.EmitAdd(c.buf, r, r) // r = 2*r
		contrib, err := c.scratch(avoidSet(adj, r))
		if err == nil {
			c.e.EmitMove(c.buf, contrib, adj)
			c.e.EmitDiv(c.buf, contrib, r)
		}
		c.alloc.Unlock(r)
		if err != nil {
			return err
		}
		return c.accumulate(n.A, contrib, avoidSet(adj, contrib))

	case graph.Abs:
		return c.emitAbsAdjoint(n, adj)

	case graph.Mod:
		// Treated as piecewise-linear in the dividend only (spec leaves the
		// exact subgradient convention open; d/da=1, d/db=0 matches the
		// common AAD convention of not differentiating through the modulus).
		return c.accumulate(n.A, adj, avoidSet(adj))

	case graph.Exp:
		// r = e^a, dr/da = r; opA += adj*r.
		r, err := c.scratch(avoidSet(adj))
		if err != nil {
			return err
		}
		c.alloc.Lock(r)
		c.load(r, n.Dst)
		c.e.EmitMul(c.buf, r, adj)
		c.alloc.Unlock(r)
		return c.accumulate(n.A, r, avoidSet(adj, r))

	case graph.Log:
		// d(ln a)/da = 1/a; opA += adj/a.
		a, err := c.scratch(avoidSet(adj))
		if err != nil {
			return err
		}
		c.alloc.Lock(a)
		contrib, err := c.scratch(avoidSet(adj, a))
		if err == nil {
			c.load(a, n.A)
			c.e.EmitMove(c.buf, contrib, adj)
			c.e.EmitDiv(c.buf, contrib, a)
		}
		c.alloc.Unlock(a)
		if err != nil {
			return err
		}
		return c.accumulate(n.A, contrib, avoidSet(adj, contrib))

	case graph.Sin:
		return c.emitSinCosAdjoint(n, adj, true)
	case graph.Cos:
		return c.emitSinCosAdjoint(n, adj, false)
	case graph.Tan:
		// r = tan(a), dr/da = 1+r^2; opA += adj*(1+r*r).
		r, err := c.scratch(avoidSet(adj))
		if err != nil {
			return err
		}
		c.alloc.Lock(r)
		one, err := c.scratch(avoidSet(adj, r))
		if err == nil {
			c.load(r, n.Dst)
			c.e.EmitLoadImmediate(c.buf, one, c.pool.Offset(1.0))
			c.e.EmitSquare(c.buf, r, r)
			c.e.EmitAdd(c.buf, r, one)
			c.e.EmitMul(c.buf, r, adj)
		}
		c.alloc.Unlock(r)
		if err != nil {
			return err
		}
		return c.accumulate(n.A, r, avoidSet(adj, r))

	case graph.Pow:
		return c.emitPowAdjoint(n, adj)

	case graph.Min, graph.Max:
		return c.emitMinMaxAdjoint(n, adj)

	case graph.If:
		return c.emitIfAdjoint(n, adj)

	default:
		return nil
	}
}

func (c *codegen) emitMulAdjoint(n *graph.Node, adj int) error {
	a, err := c.scratch(avoidSet(adj))
	if err != nil {
		return err
	}
	c.alloc.Lock(a)
	b, err := c.scratch(avoidSet(adj, a))
	if err != nil {
		c.alloc.Unlock(a)
		return err
	}
	c.alloc.Lock(b)
	c.load(a, n.A)
	c.load(b, n.B)
	contribA, err := c.scratch(avoidSet(adj, a, b))
	if err == nil {
		c.e.EmitMove(c.buf, contribA, b)
		c.e.EmitMul(c.buf, contribA, adj) // adj*b
	}
	var contribB int
	if err == nil {
		contribB, err = c.scratch(avoidSet(adj, a, b, contribA))
		if err == nil {
			c.e.EmitMove(c.buf, contribB, a)
			c.e.EmitMul(c.buf, contribB, adj) // adj*a
		}
	}
	c.alloc.Unlock(a)
	c.alloc.Unlock(b)
	if err != nil {
		return err
	}
	if err := c.accumulate(n.A, contribA, avoidSet(adj, contribA, contribB)); err != nil {
		return err
	}
	return c.accumulate(n.B, contribB, avoidSet(adj, contribB))
}

func (c *codegen) emitDivAdjoint(n *graph.Node, adj int) error {
	a, err := c.scratch(avoidSet(adj))
	if err != nil {
		return err
	}
	c.alloc.Lock(a)
	b, err := c.scratch(avoidSet(adj, a))
	if err != nil {
		c.alloc.Unlock(a)
		return err
	}
	c.alloc.Lock(b)
	c.load(a, n.A)
	c.load(b, n.B)
	// opA += adj/b
	contribA, err := c.scratch(avoidSet(adj, a, b))
	if err == nil {
		c.e.EmitMove(c.buf, contribA, adj)
		c.e.EmitDiv(c.buf, contribA, b)
	}
	// opB -= adj*a/(b*b)
	var contribB int
	if err == nil {
		contribB, err = c.scratch(avoidSet(adj, a, b, contribA))
		if err == nil {
			c.e.EmitMove(c.buf, contribB, a)
			c.e.EmitMul(c.buf, contribB, adj)
			c.e.EmitDiv(c.buf, contribB, b)
			c.e.EmitDiv(c.buf, contribB, b)
		}
	}
	c.alloc.Unlock(a)
	c.alloc.Unlock(b)
	if err != nil {
		return err
	}
	if err := c.accumulate(n.A, contribA, avoidSet(adj, contribA, contribB)); err != nil {
		return err
	}
	return c.subtractFrom(n.B, contribB, avoidSet(adj, contribB))
}

// emitAbsAdjoint implements d|a|/da = sign(a): the adjoint is multiplied by
// a's sign by XORing a's sign bit into it, so a negative a flips the
// adjoint's sign and a = +0 passes it through (spec §9's Abs gradient note).
func (c *codegen) emitAbsAdjoint(n *graph.Node, adj int) error {
	a, err := c.scratch(avoidSet(adj))
	if err != nil {
		return err
	}
	c.alloc.Lock(a)
	magMask, err := c.scratch(avoidSet(adj, a))
	if err != nil {
		c.alloc.Unlock(a)
		return err
	}
	c.alloc.Lock(magMask)
	signMask, err := c.scratch(avoidSet(adj, a, magMask))
	if err == nil {
		c.load(a, n.A)
		c.e.EmitLoadImmediate(c.buf, signMask, c.pool.SignMaskOffset())
		c.e.EmitAndPD(c.buf, signMask, a) // sign bit of a
		c.e.EmitMove(c.buf, magMask, adj)
		c.e.EmitXorPD(c.buf, magMask, signMask) // adj * sign(a)
	}
	c.alloc.Unlock(a)
	c.alloc.Unlock(magMask)
	if err != nil {
		return err
	}
	return c.accumulate(n.A, magMask, avoidSet(adj, magMask))
}

func (c *codegen) emitSinCosAdjoint(n *graph.Node, adj int, isSin bool) error {
	a, err := c.scratch(avoidSet(adj))
	if err != nil {
		return err
	}
	c.alloc.Lock(a)
	companion, err := c.scratch(avoidSet(adj, a))
	if err != nil {
		c.alloc.Unlock(a)
		return err
	}
	c.alloc.Lock(companion)
	tmps, err := c.scratchN(3, avoidSet(adj, a, companion))
	if err == nil {
		c.load(a, n.A)
		companionOp := graph.Cos
		if !isSin {
			companionOp = graph.Sin
		}
		isa.EmitTranscendental(c.e, c.buf, companionOp, companion, a, 0, [4]int{tmps[0], tmps[1], tmps[2], 0}, c.rangeConsts(), c.registerCoeffs(companionOp))
		c.e.EmitMul(c.buf, companion, adj)
	}
	c.alloc.Unlock(a)
	c.alloc.Unlock(companion)
	if err != nil {
		return err
	}
	if isSin {
		return c.accumulate(n.A, companion, avoidSet(adj, companion))
	}
	return c.subtractFrom(n.A, companion, avoidSet(adj, companion))
}

// emitPowAdjoint implements a^b's partials: d/da = b*r/a, d/db = r*ln(a),
// where r is the node's own forward-computed value.
func (c *codegen) emitPowAdjoint(n *graph.Node, adj int) error {
	a, err := c.scratch(avoidSet(adj))
	if err != nil {
		return err
	}
	c.alloc.Lock(a)
	b, err := c.scratch(avoidSet(adj, a))
	if err != nil {
		c.alloc.Unlock(a)
		return err
	}
	c.alloc.Lock(b)
	r, err := c.scratch(avoidSet(adj, a, b))
	if err != nil {
		c.alloc.Unlock(a)
		c.alloc.Unlock(b)
		return err
	}
	c.alloc.Lock(r)
	c.load(a, n.A)
	c.load(b, n.B)
	c.load(r, n.Dst)

	contribA, err := c.scratch(avoidSet(adj, a, b, r))
	if err == nil {
		c.e.EmitMove(c.buf, contribA, b)
		c.e.EmitMul(c.buf, contribA, r)
		c.e.EmitDiv(c.buf, contribA, a)
		c.e.EmitMul(c.buf, contribA, adj)
	}
	var contribB, lnA int
	var tmps []int
	if err == nil {
		lnA, err = c.scratch(avoidSet(adj, a, b, r, contribA))
	}
	if err == nil {
		tmps, err = c.scratchN(4, avoidSet(adj, a, b, r, contribA, lnA))
	}
	if err == nil {
		isa.EmitTranscendental(c.e, c.buf, graph.Log, lnA, a, 0, [4]int{tmps[0], tmps[1], tmps[2], tmps[3]}, c.rangeConsts(), c.registerCoeffs(graph.Log))
		contribB, err = c.scratch(avoidSet(adj, a, b, r, contribA, lnA))
	}
	if err == nil {
		c.e.EmitMove(c.buf, contribB, r)
		c.e.EmitMul(c.buf, contribB, lnA)
		c.e.EmitMul(c.buf, contribB, adj)
	}
	c.alloc.Unlock(a)
	c.alloc.Unlock(b)
	c.alloc.Unlock(r)
	if err != nil {
		return err
	}
	if err := c.accumulate(n.A, contribA, avoidSet(adj, contribA, contribB)); err != nil {
		return err
	}
	return c.accumulate(n.B, contribB, avoidSet(adj, contribB))
}

// emitMinMaxAdjoint routes the adjoint entirely to whichever operand the
// forward pass selected, using the same comparison the dominant branch was
// chosen by (spec §4.7 point 3).
func (c *codegen) emitMinMaxAdjoint(n *graph.Node, adj int) error {
	a, err := c.scratch(avoidSet(adj))
	if err != nil {
		return err
	}
	c.alloc.Lock(a)
	b, err := c.scratch(avoidSet(adj, a))
	if err != nil {
		c.alloc.Unlock(a)
		return err
	}
	c.alloc.Lock(b)
	mask, err := c.scratch(avoidSet(adj, a, b))
	if err != nil {
		c.alloc.Unlock(a)
		c.alloc.Unlock(b)
		return err
	}
	c.load(a, n.A)
	c.load(b, n.B)
	cmp := graph.CmpLE
	if n.Op == graph.Max {
		cmp = graph.CmpGE
	}
	c.e.EmitCmp(c.buf, cmp, mask, a, b) // all-ones where A dominates
	contribA, err := c.scratch(avoidSet(adj, a, b, mask))
	if err == nil {
		c.e.EmitMove(c.buf, contribA, adj)
		c.e.EmitAndPD(c.buf, contribA, mask)
	}
	var contribB int
	if err == nil {
		contribB, err = c.scratch(avoidSet(adj, a, b, mask, contribA))
		if err == nil {
			c.e.EmitMove(c.buf, contribB, adj)
			c.e.EmitAndPD(c.buf, contribB, mask)
			c.e.EmitXorPD(c.buf, contribB, adj) // adj & ~mask == adj XOR (adj & mask)
		}
	}
	c.alloc.Unlock(a)
	c.alloc.Unlock(b)
	if err != nil {
		return err
	}
	if err := c.accumulate(n.A, contribA, avoidSet(adj, contribA, contribB)); err != nil {
		return err
	}
	return c.accumulate(n.B, contribB, avoidSet(adj, contribB))
}

// emitIfAdjoint mirrors emitSelect's mask reconstruction: the stored
// 0.0/1.0 condition is turned back into a canonical mask, then the
// adjoint is routed to whichever of t/f the mask selects.
func (c *codegen) emitIfAdjoint(n *graph.Node, adj int) error {
	cond, err := c.scratch(avoidSet(adj))
	if err != nil {
		return err
	}
	c.alloc.Lock(cond)
	zero, err := c.scratch(avoidSet(adj, cond))
	if err != nil {
		c.alloc.Unlock(cond)
		return err
	}
	c.alloc.Lock(zero)
	mask, err := c.scratch(avoidSet(adj, cond, zero))
	if err == nil {
		c.load(cond, n.A)
		c.e.EmitZero(c.buf, zero)
		c.e.EmitCmp(c.buf, graph.CmpNE, mask, cond, zero)
	}
	c.alloc.Unlock(cond)
	c.alloc.Unlock(zero)
	if err != nil {
		return err
	}
	c.alloc.Lock(mask)
	contribT, err := c.scratch(avoidSet(adj, mask))
	if err == nil {
		c.e.EmitMove(c.buf, contribT, adj)
		c.e.EmitAndPD(c.buf, contribT, mask)
	}
	var contribF int
	if err == nil {
		contribF, err = c.scratch(avoidSet(adj, mask, contribT))
		if err == nil {
			c.e.EmitMove(c.buf, contribF, adj)
			c.e.EmitAndPD(c.buf, contribF, mask)
			c.e.EmitXorPD(c.buf, contribF, adj)
		}
	}
	c.alloc.Unlock(mask)
	if err != nil {
		return err
	}
	if err := c.accumulate(n.B, contribT, avoidSet(adj, contribT, contribF)); err != nil {
		return err
	}
	return c.accumulate(n.C, contribF, avoidSet(adj, contribF))
}
