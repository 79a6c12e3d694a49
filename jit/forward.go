package jit

import (
	"forge/graph"
	"forge/isa"
)

// emitForward walks the graph in construction order and, per non-dead
// node, invokes the instruction-set strategy with register-allocator state
// (spec §4.6). Input/Constant/BoolConstant/IntConstant nodes emit no code
// here — their value is materialised lazily, the first time ensureAvoiding
// is asked to resolve them as an operand.
func (c *codegen) emitForward() error {
	for i := 0; i < c.g.Size(); i++ {
		id := graph.NodeId(i)
		n := c.g.Node(id)
		if n.IsDead {
			continue
		}
		switch n.Op {
		case graph.Input, graph.Constant, graph.BoolConstant, graph.IntConstant:
			continue
		}
		if err := c.emitForwardNode(n); err != nil {
			return err
		}
	}
	// Flush every node still holding a deferred (dirty) store so the
	// buffer is fully coherent before any reverse pass or return to the
	// caller reads it (spec §4.4's deferred-store contract).
	c.alloc.SpillAll(c.store)
	// Every output must be physically present in its buffer slot for the
	// caller to read, even an output that is a bare Input or Constant that
	// the loop above never touched.
	for _, out := range c.g.Outputs() {
		if c.g.Node(out).Op == graph.Input {
			continue
		}
		r, err := c.ensureAvoiding(out, nil)
		if err != nil {
			return err
		}
		c.store(r, out)
	}
	return nil
}

// binaryCommutative resolves (dstReg, srcReg) for a commutative op (Add,
// Mul, Min, Max): whichever operand is already resident becomes dst, so
// the instruction can execute in place without an extra move (spec §4.5
// "commutative selector").
func (c *codegen) binaryCommutative(aID, bID graph.NodeId) (dst, src int, err error) {
	if r, ok := c.alloc.FindNode(aID); ok {
		dst = r
		c.alloc.Lock(dst)
		src, err = c.ensureAvoiding(bID, avoidSet(dst))
		c.alloc.Unlock(dst)
		return dst, src, err
	}
	if r, ok := c.alloc.FindNode(bID); ok {
		dst = r
		c.alloc.Lock(dst)
		src, err = c.ensureAvoiding(aID, avoidSet(dst))
		c.alloc.Unlock(dst)
		return dst, src, err
	}
	dst, err = c.ensureAvoiding(aID, nil)
	if err != nil {
		return 0, 0, err
	}
	c.alloc.Lock(dst)
	src, err = c.ensureAvoiding(bID, avoidSet(dst))
	c.alloc.Unlock(dst)
	return dst, src, err
}

// binaryNonCommutative resolves (dstReg, srcReg) for Sub/Div, which must
// place the first operand in the destination register regardless of which
// side happens to already be resident (spec §4.5 "non-commutative
// selector").
func (c *codegen) binaryNonCommutative(aID, bID graph.NodeId) (dst, src int, err error) {
	dst, err = c.ensureAvoiding(aID, nil)
	if err != nil {
		return 0, 0, err
	}
	c.alloc.Lock(dst)
	src, err = c.ensureAvoiding(bID, avoidSet(dst))
	c.alloc.Unlock(dst)
	return dst, src, err
}

func (c *codegen) emitForwardNode(n *graph.Node) error {
	switch n.Op {
	case graph.Add, graph.Mul, graph.Min, graph.Max:
		dst, src, err := c.binaryCommutative(n.A, n.B)
		if err != nil {
			return err
		}
		c.alloc.WithLocked([]int{dst, src}, func() {
			switch n.Op {
			case graph.Add:
				c.e.EmitAdd(c.buf, dst, src)
			case graph.Mul:
				c.e.EmitMul(c.buf, dst, src)
			case graph.Min:
				c.e.EmitMin(c.buf, dst, src)
			case graph.Max:
				c.e.EmitMax(c.buf, dst, src)
			}
		})
		c.alloc.SetRegister(dst, n.Dst, true)

	case graph.Sub, graph.Div:
		dst, src, err := c.binaryNonCommutative(n.A, n.B)
		if err != nil {
			return err
		}
		c.alloc.WithLocked([]int{dst, src}, func() {
			if n.Op == graph.Sub {
				c.e.EmitSub(c.buf, dst, src)
			} else {
				c.e.EmitDiv(c.buf, dst, src)
			}
		})
		c.alloc.SetRegister(dst, n.Dst, true)

	case graph.IntAdd, graph.IntSub, graph.IntMul, graph.IntDiv, graph.IntMod:
		return c.emitIntArith(n)

	case graph.Mod:
		return c.emitMod(n)

	case graph.Neg, graph.IntNeg:
		return c.emitSignFlip(n, c.pool.SignMaskOffset(), false)
	case graph.Abs:
		return c.emitSignFlip(n, c.pool.AbsMaskOffset(), true)

	case graph.Square:
		src, err := c.ensureAvoiding(n.A, nil)
		if err != nil {
			return err
		}
		c.alloc.Lock(src)
		dst, err := c.scratch(avoidSet(src))
		c.alloc.Unlock(src)
		if err != nil {
			return err
		}
		c.e.EmitSquare(c.buf, dst, src)
		c.alloc.SetRegister(dst, n.Dst, true)

	case graph.Recip:
		src, err := c.ensureAvoiding(n.A, nil)
		if err != nil {
			return err
		}
		c.alloc.Lock(src)
		dst, err := c.scratch(avoidSet(src))
		if err == nil {
			c.e.EmitLoadImmediate(c.buf, dst, c.pool.Offset(1.0))
			c.e.EmitDiv(c.buf, dst, src)
		}
		c.alloc.Unlock(src)
		if err != nil {
			return err
		}
		c.alloc.SetRegister(dst, n.Dst, true)

	case graph.Sqrt:
		src, err := c.ensureAvoiding(n.A, nil)
		if err != nil {
			return err
		}
		c.alloc.Lock(src)
		dst, err := c.scratch(avoidSet(src))
		if err == nil {
			c.e.EmitSqrt(c.buf, dst, src)
		}
		c.alloc.Unlock(src)
		if err != nil {
			return err
		}
		c.alloc.SetRegister(dst, n.Dst, true)

	case graph.Exp, graph.Log, graph.Sin, graph.Cos, graph.Tan:
		return c.emitUnaryTranscendental(n)
	case graph.Pow:
		return c.emitPow(n)

	case graph.CmpLT, graph.CmpLE, graph.CmpGT, graph.CmpGE, graph.CmpEQ, graph.CmpNE,
		graph.IntCmpLT, graph.IntCmpLE, graph.IntCmpGT, graph.IntCmpGE, graph.IntCmpEQ, graph.IntCmpNE,
		graph.BoolEq, graph.BoolNe:
		return c.emitComparison(n)

	case graph.BoolAnd:
		return c.emitBoolAnd(n)
	case graph.BoolOr:
		return c.emitBoolOr(n)
	case graph.BoolNot:
		return c.emitBoolNot(n)

	case graph.If, graph.IntIf:
		return c.emitSelect(n)

	case graph.ArrayIndex:
		// Reserved but never emitted by the recorder (spec §4.1, §9 open
		// question 4); if one somehow reaches codegen, fall through to the
		// NaN path below rather than silently miscompiling.
		fallthrough
	default:
		warnUnsupportedOpcode(c.logger, n.Op.String())
		dst, err := c.scratch(nil)
		if err != nil {
			return err
		}
		c.e.EmitZero(c.buf, dst)
		c.e.EmitDiv(c.buf, dst, dst) // 0.0 / 0.0 -> NaN, visible rather than silently wrong (spec §4.6, §7)
		c.alloc.SetRegister(dst, n.Dst, true)
	}
	return nil
}

// emitIntArith lowers an integer binary op by truncating both operands
// (round toward zero) before the real-domain instruction and truncating
// the result, per spec §4.5 "Integer lowering".
func (c *codegen) emitIntArith(n *graph.Node) error {
	aID, bID := n.A, n.B
	aReg, err := c.ensureAvoiding(aID, nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(aReg)
	bReg, err := c.ensureAvoiding(bID, avoidSet(aReg))
	if err != nil {
		c.alloc.Unlock(aReg)
		return err
	}
	c.alloc.Lock(bReg)
	dst, err := c.scratch(avoidSet(aReg, bReg))
	if err != nil {
		c.alloc.Unlock(aReg)
		c.alloc.Unlock(bReg)
		return err
	}
	truncA, err := c.scratch(avoidSet(aReg, bReg, dst))
	if err != nil {
		c.alloc.Unlock(aReg)
		c.alloc.Unlock(bReg)
		return err
	}
	c.e.EmitRoundTrunc(c.buf, truncA, aReg)
	c.e.EmitRoundTrunc(c.buf, dst, bReg)
	switch n.Op {
	case graph.IntAdd:
		c.e.EmitAdd(c.buf, dst, truncA)
	case graph.IntSub:
		c.e.EmitSub(c.buf, truncA, dst)
		c.e.EmitMove(c.buf, dst, truncA)
	case graph.IntMul:
		c.e.EmitMul(c.buf, dst, truncA)
	case graph.IntDiv:
		c.e.EmitDiv(c.buf, truncA, dst)
		c.e.EmitMove(c.buf, dst, truncA)
		c.e.EmitRoundTrunc(c.buf, dst, dst)
	case graph.IntMod:
		// a - b*trunc(a/b), truncated operands already in truncA/dst.
		quot, err2 := c.scratch(avoidSet(aReg, bReg, dst, truncA))
		if err2 != nil {
			c.alloc.Unlock(aReg)
			c.alloc.Unlock(bReg)
			return err2
		}
		c.e.EmitMove(c.buf, quot, truncA)
		c.e.EmitDiv(c.buf, quot, dst)
		c.e.EmitRoundTrunc(c.buf, quot, quot)
		c.e.EmitMul(c.buf, quot, dst)
		c.e.EmitSub(c.buf, truncA, quot)
		c.e.EmitMove(c.buf, dst, truncA)
	}
	c.alloc.Unlock(aReg)
	c.alloc.Unlock(bReg)
	c.alloc.SetRegister(dst, n.Dst, true)
	return nil
}

func (c *codegen) emitMod(n *graph.Node) error {
	aReg, err := c.ensureAvoiding(n.A, nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(aReg)
	bReg, err := c.ensureAvoiding(n.B, avoidSet(aReg))
	if err != nil {
		c.alloc.Unlock(aReg)
		return err
	}
	c.alloc.Lock(bReg)
	tmp, err := c.scratch(avoidSet(aReg, bReg))
	if err == nil {
		c.e.EmitMove(c.buf, tmp, aReg)
		c.e.EmitDiv(c.buf, tmp, bReg)
		c.e.EmitRoundTrunc(c.buf, tmp, tmp)
		c.e.EmitMul(c.buf, tmp, bReg)
		c.e.EmitSub(c.buf, aReg, tmp)
	}
	c.alloc.Unlock(aReg)
	c.alloc.Unlock(bReg)
	if err != nil {
		return err
	}
	c.alloc.SetRegister(aReg, n.Dst, true)
	return nil
}

// emitSignFlip implements Neg/IntNeg (xor against the sign-bit mask) and
// Abs (and against the all-bits-but-sign mask) uniformly: both are a mask
// load into a fresh register followed by a bitwise op against the operand,
// which never disturbs the operand's own register (spec §9 open question 1
// resolves real Neg to the same XOR strategy IntNeg already used, so both
// backends agree bit-exactly).
func (c *codegen) emitSignFlip(n *graph.Node, maskOffset int, isAnd bool) error {
	src, err := c.ensureAvoiding(n.A, nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(src)
	dst, err := c.scratch(avoidSet(src))
	if err == nil {
		c.e.EmitLoadImmediate(c.buf, dst, maskOffset)
		if isAnd {
			c.e.EmitAndPD(c.buf, dst, src)
		} else {
			c.e.EmitXorPD(c.buf, dst, src)
		}
	}
	c.alloc.Unlock(src)
	if err != nil {
		return err
	}
	c.alloc.SetRegister(dst, n.Dst, true)
	return nil
}

// scratchN allocates n scratch registers in sequence, each avoiding every
// register already held plus every register avoided so far.
func (c *codegen) scratchN(n int, avoid map[int]bool) ([]int, error) {
	regs := make([]int, 0, n)
	for i := 0; i < n; i++ {
		merged := make(map[int]bool, len(avoid)+len(regs))
		for r := range avoid {
			merged[r] = true
		}
		for _, r := range regs {
			merged[r] = true
		}
		r, err := c.scratch(merged)
		if err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}

func (c *codegen) emitUnaryTranscendental(n *graph.Node) error {
	src, err := c.ensureAvoiding(n.A, nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(src)
	dst, err := c.scratch(avoidSet(src))
	if err != nil {
		c.alloc.Unlock(src)
		return err
	}
	tmps, err := c.scratchN(4, avoidSet(src, dst))
	if err != nil {
		c.alloc.Unlock(src)
		return err
	}
	isa.EmitTranscendental(c.e, c.buf, n.Op, dst, src, 0, [4]int{tmps[0], tmps[1], tmps[2], tmps[3]}, c.rangeConsts(), c.registerCoeffs(n.Op))
	c.alloc.Unlock(src)
	c.alloc.SetRegister(dst, n.Dst, true)
	return nil
}

func (c *codegen) emitPow(n *graph.Node) error {
	aReg, err := c.ensureAvoiding(n.A, nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(aReg)
	bReg, err := c.ensureAvoiding(n.B, avoidSet(aReg))
	if err != nil {
		c.alloc.Unlock(aReg)
		return err
	}
	c.alloc.Lock(bReg)
	dst, err := c.scratch(avoidSet(aReg, bReg))
	if err != nil {
		c.alloc.Unlock(aReg)
		c.alloc.Unlock(bReg)
		return err
	}
	tmps, err := c.scratchN(4, avoidSet(aReg, bReg, dst))
	if err != nil {
		c.alloc.Unlock(aReg)
		c.alloc.Unlock(bReg)
		return err
	}
	coeffs := append(append([]int{}, c.registerCoeffs(graph.Log)...), c.registerCoeffs(graph.Exp)...)
	isa.EmitTranscendental(c.e, c.buf, graph.Pow, dst, aReg, bReg, [4]int{tmps[0], tmps[1], tmps[2], tmps[3]}, c.rangeConsts(), coeffs)
	c.alloc.Unlock(aReg)
	c.alloc.Unlock(bReg)
	c.alloc.SetRegister(dst, n.Dst, true)
	return nil
}

func (c *codegen) emitComparison(n *graph.Node) error {
	aReg, err := c.ensureAvoiding(n.A, nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(aReg)
	bReg, err := c.ensureAvoiding(n.B, avoidSet(aReg))
	if err != nil {
		c.alloc.Unlock(aReg)
		return err
	}
	c.alloc.Lock(bReg)
	dst, err := c.scratch(avoidSet(aReg, bReg))
	if err != nil {
		c.alloc.Unlock(aReg)
		c.alloc.Unlock(bReg)
		return err
	}
	maskOne, err := c.scratch(avoidSet(aReg, bReg, dst))
	if err == nil {
		c.e.EmitCmp(c.buf, n.Op, dst, aReg, bReg)
		c.e.EmitLoadImmediate(c.buf, maskOne, c.pool.BoolOneOffset())
		c.e.EmitAndPD(c.buf, dst, maskOne) // canonical mask -> stored 0.0/1.0 double (spec §4.5 boolean lowering)
	}
	c.alloc.Unlock(aReg)
	c.alloc.Unlock(bReg)
	if err != nil {
		return err
	}
	c.alloc.SetRegister(dst, n.Dst, true)
	return nil
}

func (c *codegen) emitBoolAnd(n *graph.Node) error {
	dst, src, err := c.binaryCommutative(n.A, n.B)
	if err != nil {
		return err
	}
	c.alloc.WithLocked([]int{dst, src}, func() { c.e.EmitMul(c.buf, dst, src) }) // And == multiply (spec §4.5)
	c.alloc.SetRegister(dst, n.Dst, true)
	return nil
}

// emitBoolOr lowers Or as `a + b - a*b` (spec §4.5), needing both operand
// values kept alive across two instructions so a fresh scratch holds the
// product rather than clobbering either operand in place.
func (c *codegen) emitBoolOr(n *graph.Node) error {
	aReg, err := c.ensureAvoiding(n.A, nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(aReg)
	bReg, err := c.ensureAvoiding(n.B, avoidSet(aReg))
	if err != nil {
		c.alloc.Unlock(aReg)
		return err
	}
	c.alloc.Lock(bReg)
	dst, err := c.scratch(avoidSet(aReg, bReg))
	if err == nil {
		c.e.EmitMove(c.buf, dst, aReg)
		c.e.EmitMul(c.buf, dst, bReg) // dst = a*b
		sum, err2 := c.scratch(avoidSet(aReg, bReg, dst))
		if err2 != nil {
			err = err2
		} else {
			c.e.EmitMove(c.buf, sum, aReg)
			c.e.EmitAdd(c.buf, sum, bReg) // sum = a+b
			c.e.EmitSub(c.buf, sum, dst)  // sum = a+b-a*b
			dst = sum
		}
	}
	c.alloc.Unlock(aReg)
	c.alloc.Unlock(bReg)
	if err != nil {
		return err
	}
	c.alloc.SetRegister(dst, n.Dst, true)
	return nil
}

func (c *codegen) emitBoolNot(n *graph.Node) error {
	src, err := c.ensureAvoiding(n.A, nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(src)
	dst, err := c.scratch(avoidSet(src))
	if err == nil {
		c.e.EmitLoadImmediate(c.buf, dst, c.pool.Offset(1.0))
		c.e.EmitSub(c.buf, dst, src) // 1.0 - a
	}
	c.alloc.Unlock(src)
	if err != nil {
		return err
	}
	c.alloc.SetRegister(dst, n.Dst, true)
	return nil
}

// emitSelect implements If and IntIf identically (spec §4.5: "IntIf is
// identical to If on the underlying doubles"): the stored 0.0/1.0 boolean
// is converted back to a canonical mask with a not-equal-zero compare
// (spec §4.5's "conditional selection invariant"), then blended.
func (c *codegen) emitSelect(n *graph.Node) error {
	condReg, err := c.ensureAvoiding(n.A, nil)
	if err != nil {
		return err
	}
	c.alloc.Lock(condReg)
	tReg, err := c.ensureAvoiding(n.B, avoidSet(condReg))
	if err != nil {
		c.alloc.Unlock(condReg)
		return err
	}
	c.alloc.Lock(tReg)
	fReg, err := c.ensureAvoiding(n.C, avoidSet(condReg, tReg))
	if err != nil {
		c.alloc.Unlock(condReg)
		c.alloc.Unlock(tReg)
		return err
	}
	c.alloc.Lock(fReg)

	avoid := avoidSet(condReg, tReg, fReg)
	zeroReg, err := c.scratch(avoid)
	var maskReg, dstReg, tmpReg int
	if err == nil {
		avoid[zeroReg] = true
		maskReg, err = c.scratch(avoid)
	}
	if err == nil {
		avoid[maskReg] = true
		dstReg, err = c.scratch(avoid)
	}
	if err == nil {
		avoid[dstReg] = true
		tmpReg, err = c.scratch(avoid)
	}
	if err == nil {
		c.e.EmitZero(c.buf, zeroReg)
		c.e.EmitCmp(c.buf, graph.CmpNE, maskReg, condReg, zeroReg)
		c.e.EmitIf(c.buf, dstReg, maskReg, tReg, fReg, tmpReg)
	}
	c.alloc.Unlock(condReg)
	c.alloc.Unlock(tReg)
	c.alloc.Unlock(fReg)
	if err != nil {
		return err
	}
	c.alloc.SetRegister(dstReg, n.Dst, true)
	return nil
}
