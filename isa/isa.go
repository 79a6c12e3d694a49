// Package isa implements the instruction-set strategy from spec §4.5: the
// code-emission primitives that differ between SSE2 scalar (one double per
// lane) and AVX2 packed (four doubles per lane), behind a single Emitter
// interface so the forward and reverse emitters in package jit stay
// opcode-switched without caring which width is in play.
package isa

import "forge/graph"

// Kind names an instruction-set strategy.
type Kind int

const (
	SSE2Scalar Kind = iota
	AVX2Packed
)

func (k Kind) String() string {
	switch k {
	case SSE2Scalar:
		return "SSE2_SCALAR"
	case AVX2Packed:
		return "AVX2_PACKED"
	default:
		return "?unknown?"
	}
}

// BufferBaseGPR is the general-purpose register holding the kernel's value
// buffer base pointer on entry, per spec §4.5's calling-convention note
// (rdi under the SysV ABI, the only ABI this package targets).
const BufferBaseGPR = 7 // RDI

// Emitter is the instruction-set strategy interface. Every method appends
// bytes to buf; none of them touch the register allocator or the graph —
// callers (package jit) own that coordination, matching the separation the
// spec draws between "register allocator", "instruction-set strategy", and
// "forward/reverse emitter".
type Emitter interface {
	Kind() Kind
	VectorWidth() int // 1 for SSE2 scalar, 4 for AVX2 packed
	SlotSize() int     // bytes per buffer slot: 8 or 32

	Prologue(buf *CodeBuffer)
	Epilogue(buf *CodeBuffer)

	// Memory and register movement (spec §4.5 "Memory").
	EmitLoad(buf *CodeBuffer, dst reg, slot int)
	EmitStore(buf *CodeBuffer, src reg, slot int)
	EmitLoadFromPool(buf *CodeBuffer, dst reg, poolOffset int)
	EmitZero(buf *CodeBuffer, dst reg)
	EmitLoadImmediate(buf *CodeBuffer, dst reg, poolOffset int)
	EmitMove(buf *CodeBuffer, dst, src reg)
	EmitCreateAllOnes(buf *CodeBuffer, dst reg)
	EmitShiftLeft(buf *CodeBuffer, dst reg, bits int)
	EmitShiftRight(buf *CodeBuffer, dst reg, bits int)

	// Real arithmetic, in place on dst (spec §4.5 "Real arithmetic").
	EmitAdd(buf *CodeBuffer, dst, src reg)
	EmitSub(buf *CodeBuffer, dst, src reg)
	EmitMul(buf *CodeBuffer, dst, src reg)
	EmitDiv(buf *CodeBuffer, dst, src reg)
	EmitSqrt(buf *CodeBuffer, dst, src reg)
	EmitSquare(buf *CodeBuffer, dst, src reg)
	EmitMin(buf *CodeBuffer, dst, src reg)
	EmitMax(buf *CodeBuffer, dst, src reg)
	EmitRoundTrunc(buf *CodeBuffer, dst, src reg)

	// Bitwise, for masks and sign-bit tricks (spec §4.5 "Bitwise"). EmitOrPD
	// is not in the spec's enumerated primitive list but is the natural
	// third leg of the and/xor/or trio the mask tricks below need (SSE2's
	// EmitIf, the range reduction in transcendental.go) and every ISA provides it at
	// the same cost as the other two.
	EmitAndPD(buf *CodeBuffer, dst, src reg)
	EmitXorPD(buf *CodeBuffer, dst, src reg)
	EmitOrPD(buf *CodeBuffer, dst, src reg)

	// Comparisons leave a canonical mask (all-ones / all-zeros) in dst
	// (spec §4.5 "Comparisons").
	EmitCmp(buf *CodeBuffer, op graph.Opcode, dst, a, b reg)

	// Conditional select (spec §4.5 "Conditional select"). cond must carry
	// a mask in the canonical form EmitCmp produces. tmp is a scratch
	// register the implementation may clobber freely (SSE2 uses it to hold
	// cond's bitwise complement; AVX2's vblendvpd ignores it).
	EmitIf(buf *CodeBuffer, dst, cond, t, f, tmp reg)

	// EmitPolynomial evaluates a Horner-form polynomial in x (already in
	// src) with coefficients preloaded into coeffPool (highest degree
	// first) via RIP-relative pool loads, leaving the result in dst. Used
	// by package isa's transcendental table (transcendental.go) — exposed
	// so jit's forward emitter can negotiate the temp register with the
	// allocator before invoking a transcendental codegen closure.
	EmitPolynomial(buf *CodeBuffer, dst, src, tmp reg, coeffPool []int)
}
