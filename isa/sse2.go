package isa

import "forge/graph"

// SSE2 implements Emitter for one-double-per-lane scalar code (XMM0..15,
// *sd instruction forms). This is the simpler of the two strategies and
// the natural reference for AVX2's packed forms in avx2.go.
type SSE2 struct{}

var _ Emitter = SSE2{}

func (SSE2) Kind() Kind      { return SSE2Scalar }
func (SSE2) VectorWidth() int { return 1 }
func (SSE2) SlotSize() int    { return 8 }

// Prologue/Epilogue are empty: the scalar kernel uses no callee-saved XMM
// registers (the SysV ABI treats all XMM registers as caller-saved) and
// needs no stack frame beyond the implicit one from the `ret` at the end
// of Epilogue.
func (SSE2) Prologue(buf *CodeBuffer) {}
func (SSE2) Epilogue(buf *CodeBuffer) { buf.emit(0xC3) } // ret

func (SSE2) EmitLoad(buf *CodeBuffer, dst reg, slot int) {
	buf.EmitLegacyMemDisp(0xF2, 0x10, dst, BufferBaseGPR, int32(slot*8)) // movsd dst, [rdi+slot*8]
}

func (SSE2) EmitStore(buf *CodeBuffer, src reg, slot int) {
	buf.EmitLegacyMemDisp(0xF2, 0x11, src, BufferBaseGPR, int32(slot*8)) // movsd [rdi+slot*8], src
}

func (SSE2) EmitLoadFromPool(buf *CodeBuffer, dst reg, poolOffset int) {
	buf.EmitLegacyRM(0xF2, 0x10, dst, poolOffset) // movsd dst, [rip+pool]
}

func (s SSE2) EmitZero(buf *CodeBuffer, dst reg) {
	s.EmitXorPD(buf, dst, dst) // xorpd dst, dst
}

func (s SSE2) EmitLoadImmediate(buf *CodeBuffer, dst reg, poolOffset int) {
	s.EmitLoadFromPool(buf, dst, poolOffset)
}

func (SSE2) EmitMove(buf *CodeBuffer, dst, src reg) {
	buf.EmitLegacyRR(0xF2, 0x10, dst, src) // movsd dst, src
}

func (s SSE2) EmitCreateAllOnes(buf *CodeBuffer, dst reg) {
	// pcmpeqd dst, dst sets every bit, any mandatory-66-prefixed integer
	// compare-equal-to-self trick; reused below to build masks.
	buf.EmitLegacyRR(0x66, 0x76, dst, dst)
}

func (SSE2) EmitShiftLeft(buf *CodeBuffer, dst reg, bits int) {
	buf.emit(0x66)
	if extBit(dst) {
		buf.emit(rexPrefix(false, false, false, extBit(dst)))
	}
	buf.emit(0x0F, 0x73, modRM(3, 6, byte(dst&7)), byte(bits)) // psllq dst, imm8 (0F 73 /6) — per-lane logical shift, not pslldq's whole-register byte shift
}

// EmitShiftRight is psrlq (0F 73 /2), a per-lane 64-bit logical right
// shift — distinct from pslldq/psrldq (/7, /3), which shift bytes across
// the whole register rather than bits within each 64-bit lane. The
// transcendental range-reduction code below relies on this being a true
// per-lane bit shift to pull a double's exponent field out of its high
// bits.
func (SSE2) EmitShiftRight(buf *CodeBuffer, dst reg, bits int) {
	buf.emit(0x66)
	if extBit(dst) {
		buf.emit(rexPrefix(false, false, false, extBit(dst)))
	}
	buf.emit(0x0F, 0x73, modRM(3, 2, byte(dst&7)), byte(bits)) // psrlq dst, imm8
}

func (SSE2) EmitAdd(buf *CodeBuffer, dst, src reg) { buf.EmitLegacyRR(0xF2, 0x58, dst, src) } // addsd
func (SSE2) EmitSub(buf *CodeBuffer, dst, src reg) { buf.EmitLegacyRR(0xF2, 0x5C, dst, src) } // subsd
func (SSE2) EmitMul(buf *CodeBuffer, dst, src reg) { buf.EmitLegacyRR(0xF2, 0x59, dst, src) } // mulsd
func (SSE2) EmitDiv(buf *CodeBuffer, dst, src reg) { buf.EmitLegacyRR(0xF2, 0x5E, dst, src) } // divsd
func (SSE2) EmitSqrt(buf *CodeBuffer, dst, src reg) { buf.EmitLegacyRR(0xF2, 0x51, dst, src) } // sqrtsd
func (s SSE2) EmitSquare(buf *CodeBuffer, dst, src reg) {
	if dst != src {
		s.EmitMove(buf, dst, src)
	}
	s.EmitMul(buf, dst, dst)
}
func (SSE2) EmitMin(buf *CodeBuffer, dst, src reg) { buf.EmitLegacyRR(0xF2, 0x5D, dst, src) } // minsd
func (SSE2) EmitMax(buf *CodeBuffer, dst, src reg) { buf.EmitLegacyRR(0xF2, 0x5F, dst, src) } // maxsd

func (SSE2) EmitRoundTrunc(buf *CodeBuffer, dst, src reg) {
	buf.emit(0x66)
	if extBit(dst) || extBit(src) {
		buf.emit(rexPrefix(false, extBit(dst), false, extBit(src)))
	}
	buf.emit(0x0F, 0x3A, 0x0B, modRM(3, byte(dst&7), byte(src&7)), 0x0B) // roundsd dst, src, imm8(truncate|inexact-suppressed)
}

func (SSE2) EmitAndPD(buf *CodeBuffer, dst, src reg) { buf.EmitLegacyRR(0x66, 0x54, dst, src) } // andpd
func (SSE2) EmitXorPD(buf *CodeBuffer, dst, src reg) { buf.EmitLegacyRR(0x66, 0x57, dst, src) } // xorpd
func (SSE2) EmitOrPD(buf *CodeBuffer, dst, src reg)  { buf.EmitLegacyRR(0x66, 0x56, dst, src) } // orpd

// EmitCmp emits the canonical mask form via cmpsd's immediate
// predicate byte, which directly produces an all-ones/all-zeros mask in
// dst — the form the If primitive below requires (spec §4.5's
// "conditional selection invariant").
func (SSE2) EmitCmp(buf *CodeBuffer, op graph.Opcode, dst, a, b reg) {
	pred, swap := cmpPredicate(op)
	lhs, rhs := a, b
	if swap {
		lhs, rhs = b, a
	}
	if dst != lhs {
		buf.EmitLegacyRR(0xF2, 0x10, dst, lhs) // movsd dst, lhs
	}
	buf.emit(0xF2)
	if extBit(dst) || extBit(rhs) {
		buf.emit(rexPrefix(false, extBit(dst), false, extBit(rhs)))
	}
	buf.emit(0x0F, 0xC2, modRM(3, byte(dst&7), byte(rhs&7)), pred) // cmpsd dst, rhs, pred
}

// cmpPredicate maps a comparison opcode to cmpsd's immediate predicate
// byte, plus whether operands must be swapped because x86 only encodes
// LT/LE/EQ/NE/UNORD directly (GT/GE are their swapped-operand mirror).
func cmpPredicate(op graph.Opcode) (byte, bool) {
	switch op {
	case graph.CmpLT, graph.IntCmpLT:
		return 0x01, false
	case graph.CmpLE, graph.IntCmpLE:
		return 0x02, false
	case graph.CmpGT, graph.IntCmpGT:
		return 0x01, true // GT(a,b) == LT(b,a)
	case graph.CmpGE, graph.IntCmpGE:
		return 0x02, true // GE(a,b) == LE(b,a)
	case graph.CmpEQ, graph.IntCmpEQ, graph.BoolEq:
		return 0x00, false
	case graph.CmpNE, graph.IntCmpNE, graph.BoolNe:
		return 0x04, false
	default:
		return 0x00, false
	}
}

// EmitIf realises branch-free select for SSE2 as `(cond & t) | (~cond &
// f)` (spec §4.5): cond must already be a canonical mask. tmp receives
// cond's bitwise complement and then `~cond & f`; f is left unchanged; dst
// ends up holding the selected value. Operand registers must be locked by
// the caller across this call (they are read more than once).
func (s SSE2) EmitIf(buf *CodeBuffer, dst, cond, t, f, tmp reg) {
	s.EmitCreateAllOnes(buf, tmp)
	s.EmitXorPD(buf, tmp, cond) // tmp = ~cond
	s.EmitAndPD(buf, tmp, f)    // tmp = ~cond & f
	if dst != t {
		s.EmitMove(buf, dst, t)
	}
	s.EmitAndPD(buf, dst, cond) // dst = cond & t
	s.EmitOrPD(buf, dst, tmp)  // dst = (cond & t) | (~cond & f)
}

func (SSE2) EmitPolynomial(buf *CodeBuffer, dst, src, tmp reg, coeffPool []int) {
	if len(coeffPool) == 0 {
		return
	}
	se := SSE2{}
	se.EmitLoadFromPool(buf, dst, coeffPool[0])
	for _, c := range coeffPool[1:] {
		se.EmitMul(buf, dst, src)
		se.EmitLoadFromPool(buf, tmp, c)
		se.EmitAdd(buf, dst, tmp)
	}
}
