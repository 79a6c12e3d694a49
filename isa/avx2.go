package isa

import "forge/graph"

// AVX2 implements Emitter for four-doubles-per-lane packed code (YMM0..15,
// v*pd instruction forms, VEX-encoded). Mirrors SSE2's shape one-for-one;
// the forward/reverse emitters in package jit switch on opcode identically
// regardless of which Emitter they were handed.
type AVX2 struct{}

var _ Emitter = AVX2{}

func (AVX2) Kind() Kind       { return AVX2Packed }
func (AVX2) VectorWidth() int { return 4 }
func (AVX2) SlotSize() int    { return 32 }

func (AVX2) Prologue(buf *CodeBuffer) {}
func (AVX2) Epilogue(buf *CodeBuffer) {
	buf.emit(0xC5, 0xF8, 0x77) // vzeroupper, avoids the AVX/SSE transition penalty on return
	buf.emit(0xC3)             // ret
}

func (AVX2) EmitLoad(buf *CodeBuffer, dst reg, slot int) {
	buf.EmitVexMemDisp(mmap0F, pp66, false, true, 0x28, dst, 0, BufferBaseGPR, int32(slot*32)) // vmovapd dst, [rdi+slot*32]
}

func (AVX2) EmitStore(buf *CodeBuffer, src reg, slot int) {
	buf.EmitVexMemDisp(mmap0F, pp66, false, true, 0x29, src, 0, BufferBaseGPR, int32(slot*32)) // vmovapd [rdi+slot*32], src
}

func (AVX2) EmitLoadFromPool(buf *CodeBuffer, dst reg, poolOffset int) {
	buf.EmitVexRM(mmap0F, pp66, false, true, 0x28, dst, 0, poolOffset) // vmovapd dst, [rip+pool]
}

func (a AVX2) EmitZero(buf *CodeBuffer, dst reg) {
	a.EmitXorPD(buf, dst, dst) // vxorpd dst, dst, dst
}

func (a AVX2) EmitLoadImmediate(buf *CodeBuffer, dst reg, poolOffset int) {
	a.EmitLoadFromPool(buf, dst, poolOffset)
}

func (AVX2) EmitMove(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x28, dst, 0, src) // vmovapd dst, src
}

func (AVX2) EmitCreateAllOnes(buf *CodeBuffer, dst reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x76, dst, dst, dst) // vpcmpeqd dst, dst, dst
}

func (AVX2) EmitShiftLeft(buf *CodeBuffer, dst reg, bits int) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x73, 6, dst, dst) // vpsllq — per-lane logical left shift, all 4 lanes independently
	buf.emit(byte(bits))
}

// EmitShiftRight is vpsrlq (/2), a per-lane 64-bit logical right shift.
// Using /3 (vpsrldq) here would shift bytes across the whole 256-bit
// register rather than within each of the four 64-bit lanes, corrupting
// three of the four lanes' results — the transcendental range-reduction
// code needs the true per-lane shift to extract each lane's exponent
// field independently.
func (AVX2) EmitShiftRight(buf *CodeBuffer, dst reg, bits int) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x73, 2, dst, dst)
	buf.emit(byte(bits))
}

func (AVX2) EmitAdd(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x58, dst, dst, src) // vaddpd dst, dst, src
}
func (AVX2) EmitSub(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x5C, dst, dst, src) // vsubpd
}
func (AVX2) EmitMul(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x59, dst, dst, src) // vmulpd
}
func (AVX2) EmitDiv(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x5E, dst, dst, src) // vdivpd
}
func (AVX2) EmitSqrt(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x51, dst, 0, src) // vsqrtpd
}
func (a AVX2) EmitSquare(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x59, dst, src, src) // vmulpd dst, src, src
}
func (AVX2) EmitMin(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x5D, dst, dst, src) // vminpd
}
func (AVX2) EmitMax(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x5F, dst, dst, src) // vmaxpd
}

func (AVX2) EmitRoundTrunc(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F3A, pp66, false, true, 0x09, dst, 0, src) // vroundpd dst, src, imm8
	buf.emit(0x0B)                                                 // truncate, inexact suppressed
}

func (AVX2) EmitAndPD(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x54, dst, dst, src) // vandpd
}
func (AVX2) EmitXorPD(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x57, dst, dst, src) // vxorpd
}
func (AVX2) EmitOrPD(buf *CodeBuffer, dst, src reg) {
	buf.EmitVexRR(mmap0F, pp66, false, true, 0x56, dst, dst, src) // vorpd
}

// EmitCmp emits vcmppd with an immediate predicate, producing the same
// canonical all-ones/all-zeros mask form SSE2's cmpsd does (spec §4.5),
// just four lanes wide.
func (AVX2) EmitCmp(buf *CodeBuffer, op graph.Opcode, dst, a, b reg) {
	pred, swap := cmpPredicate(op)
	lhs, rhs := a, b
	if swap {
		lhs, rhs = b, a
	}
	buf.EmitVexRR(mmap0F, pp66, false, true, 0xC2, dst, lhs, rhs)
	buf.emit(pred)
}

// EmitIf uses vblendvpd, whose selector operand reads each lane's sign bit
// — exactly the canonical mask form EmitCmp produces, so no extra
// conversion step is needed (unlike SSE2's manual and/andn/or). tmp is
// unused; kept only so the Emitter interface is uniform across backends.
func (AVX2) EmitIf(buf *CodeBuffer, dst, cond, t, f, tmp reg) {
	// vblendvpd dst, f, t, cond  (select t where cond's sign bit is 1, f otherwise)
	buf.emit(vex3(extBit(dst), false, extBit(t), mmap0F3A, false, f, true, pp66)...)
	buf.emit(0x4B, modRM(3, byte(dst&7), byte(t&7)), byte(cond)<<4)
}

func (AVX2) EmitPolynomial(buf *CodeBuffer, dst, src, tmp reg, coeffPool []int) {
	if len(coeffPool) == 0 {
		return
	}
	a := AVX2{}
	a.EmitLoadFromPool(buf, dst, coeffPool[0])
	for _, c := range coeffPool[1:] {
		a.EmitMul(buf, dst, src)
		a.EmitLoadFromPool(buf, tmp, c)
		a.EmitAdd(buf, dst, tmp)
	}
}
