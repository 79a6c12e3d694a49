package isa

import "forge/graph"

// TranscendentalCoeffs holds, per transcendental opcode, the Horner
// coefficients (highest degree first) of a Maclaurin polynomial fit to the
// *reduced* argument EmitTranscendental's range reduction produces below,
// not to the caller's raw operand. Exp's series is in its reduced residual
// r directly (every consecutive power present, so EmitPolynomial's plain
// Horner evaluation applies as-is); Sin, Cos and Log are odd/even-only
// series, so EmitTranscendental evaluates them as Horner-in-the-square
// times (for Sin and Log) the original variable — see emitSquaredHorner.
var TranscendentalCoeffs = map[graph.Opcode][]float64{
	// exp(r) for r in [-ln2/2, ln2/2], one term past where the remainder
	// drops under 1e-6 at the domain edge.
	graph.Exp: {1.0 / 5040, 1.0 / 720, 1.0 / 120, 1.0 / 24, 1.0 / 6, 0.5, 1.0, 1.0},

	// atanh(s) = s + s^3/3 + s^5/5 + ..., Horner in s^2 (highest degree
	// first); Log evaluates ln(m) = 2*atanh(s) with s = (m-1)/(m+1), m the
	// mantissa in [1,2) the frexp-style split below extracts. This
	// converges far faster than a direct Maclaurin ln(1+r) fit — whose
	// radius-of-convergence edge near r=1 needs on the order of 1e6 terms
	// for this accuracy — for the same worst-case s in [0, 1/3].
	graph.Log: {1.0 / 11, 1.0 / 9, 1.0 / 7, 1.0 / 5, 1.0 / 3, 1.0},

	// sin(r) = r * Horner(coeffs, r^2), r folded into [-pi, pi] by the
	// 2*pi argument reduction below. Carried to the r^17 term, the first
	// whose own magnitude drops under 1e-6 at the r=pi domain edge (which
	// bounds the alternating series' remainder).
	graph.Sin: {
		1.0 / 355687428096000, // r^16 (times the leading r: degree 17)
		-1.0 / 1307674368000,  // r^14
		1.0 / 6227020800,      // r^12
		-1.0 / 39916800,       // r^10
		1.0 / 362880,          // r^8
		-1.0 / 5040,           // r^6
		1.0 / 120,             // r^4
		-1.0 / 6,              // r^2
		1.0,                   // r^0
	},

	// cos(r) = Horner(coeffs, r^2), same reduced r as Sin, to r^18.
	graph.Cos: {
		-1.0 / 6402373705728000, // r^18
		1.0 / 20922789888000,    // r^16
		-1.0 / 87178291200,      // r^14
		1.0 / 479001600,         // r^12
		-1.0 / 3628800,          // r^10
		1.0 / 40320,             // r^8
		-1.0 / 720,              // r^6
		1.0 / 24,                // r^4
		-1.0 / 2,                // r^2
		1.0,                     // r^0
	},
}

func NumTranscendentalCoeffs(op graph.Opcode) int { return len(TranscendentalCoeffs[op]) }

// RangeReductionConsts carries the constant-pool offsets EmitTranscendental
// needs to fold an arbitrary-magnitude operand into the interval its
// Maclaurin fit actually converges well over, and to recombine the folded
// pieces into the final result afterward (spec §4.5/§9's "range reduction
// before polynomial evaluation" approximation scheme). Populated once per
// compile by the caller (package jit's ConstPool accessors) and threaded
// through unchanged.
type RangeReductionConsts struct {
	SignMask          int // sign-bit-only mask: copysign(0.5, y) during round-to-nearest
	One               int // 1.0
	Half              int // 0.5
	Ln2               int // ln(2)
	InvLn2            int // 1/ln(2)
	TwoPi             int // 2*pi
	InvTwoPi          int // 1/(2*pi)
	ExponentBias      int // 1023.0
	DoubleMagic       int // 2^52
	MantissaMask      int // low 52 bits
	ExponentClearMask int // sign+mantissa bits, exponent field cleared
}

// emitRoundToNearest replaces acc (on entry, an arbitrary double y) with
// round-to-nearest(y) (on exit), via EmitRoundTrunc's truncate-toward-zero
// primitive biased by copysign(0.5, y) first — the standard way to build
// round-to-nearest out of a truncate-only instruction. signTmp and loadTmp
// are clobbered scratch.
func emitRoundToNearest(e Emitter, buf *CodeBuffer, acc, signTmp, loadTmp reg, consts RangeReductionConsts) {
	e.EmitMove(buf, signTmp, acc)
	e.EmitLoadFromPool(buf, loadTmp, consts.SignMask)
	e.EmitAndPD(buf, signTmp, loadTmp) // signTmp = sign(y), as +-0.0
	e.EmitLoadFromPool(buf, loadTmp, consts.Half)
	e.EmitOrPD(buf, signTmp, loadTmp) // signTmp = copysign(0.5, y)
	e.EmitAdd(buf, acc, signTmp)
	e.EmitRoundTrunc(buf, acc, acc)
}

// emitSquaredHorner evaluates an odd- or even-power-only series (Sin, Cos,
// Log's atanh fit) by Horner-evaluating coeffPool over s*s rather than s
// directly — the fix for naive sequential Horner silently computing the
// wrong function against a sparse coefficient table (a flat Horner pass
// only reproduces a series that uses every consecutive power, true of Exp
// but not of these). sq and loadTmp are clobbered scratch; s is read, never
// written, but must not alias dst: dst is overwritten by the polynomial
// before the final multiply by s.
func emitSquaredHorner(e Emitter, buf *CodeBuffer, dst, s, sq, loadTmp reg, coeffPool []int, multiplyByS bool) {
	e.EmitSquare(buf, sq, s)
	e.EmitPolynomial(buf, dst, sq, loadTmp, coeffPool)
	if multiplyByS {
		e.EmitMul(buf, dst, s)
	}
}

// emitSinCosCore folds src into [-pi, pi] via round-to-nearest(src /
// 2*pi), then evaluates the (now-valid) squared-Horner fit of coeffPool
// against the folded residual. dst may alias src. t1-t3 are scratch.
func emitSinCosCore(e Emitter, buf *CodeBuffer, dst, src, t1, t2, t3 reg, consts RangeReductionConsts, coeffPool []int, isSin bool) {
	e.EmitMove(buf, t1, src)
	e.EmitLoadFromPool(buf, t2, consts.InvTwoPi)
	e.EmitMul(buf, t1, t2) // t1 = src / 2pi
	emitRoundToNearest(e, buf, t1, t3, t2, consts)
	e.EmitLoadFromPool(buf, t2, consts.TwoPi)
	e.EmitMul(buf, t1, t2) // t1 = k*2pi
	e.EmitMove(buf, dst, src)
	e.EmitSub(buf, dst, t1) // dst = r = src - k*2pi, in [-pi, pi]
	emitSquaredHorner(e, buf, t1, dst, t3, t2, coeffPool, isSin)
	e.EmitMove(buf, dst, t1)
}

// emitExpCore folds src into r = src - k*ln2 (r in [-ln2/2, ln2/2], k the
// nearest integer to src/ln2), evaluates Exp's polynomial on r, and
// reconstructs 2^k by building its IEEE-754 bit pattern directly: k+1023
// (the biased exponent) is pushed into 2^52's mantissa field via the same
// magic-number addition Log's split runs in reverse, masked down to just
// the integer, then shifted left 52 bits into the exponent field. dst may
// alias src. t1-t4 are scratch.
func emitExpCore(e Emitter, buf *CodeBuffer, dst, src, t1, t2, t3, t4 reg, consts RangeReductionConsts, coeffPool []int) {
	e.EmitMove(buf, t1, src)
	e.EmitLoadFromPool(buf, t2, consts.InvLn2)
	e.EmitMul(buf, t1, t2) // t1 = src / ln2
	emitRoundToNearest(e, buf, t1, t3, t2, consts)
	e.EmitMove(buf, t3, t1)
	e.EmitLoadFromPool(buf, t2, consts.Ln2)
	e.EmitMul(buf, t3, t2) // t3 = k*ln2
	e.EmitMove(buf, dst, src)
	e.EmitSub(buf, dst, t3) // dst = r

	e.EmitLoadFromPool(buf, t2, consts.ExponentBias)
	e.EmitAdd(buf, t1, t2) // t1 = k + 1023 (biased exponent)
	e.EmitLoadFromPool(buf, t2, consts.DoubleMagic)
	e.EmitAdd(buf, t1, t2) // t1 = biasedK + 2^52
	e.EmitLoadFromPool(buf, t2, consts.MantissaMask)
	e.EmitAndPD(buf, t1, t2)     // t1 = biasedK, as a raw integer in its low bits
	e.EmitShiftLeft(buf, t1, 52) // t1 = bit pattern of 2^k

	e.EmitPolynomial(buf, t3, dst, t4, coeffPool) // t3 = exp(r)
	e.EmitMul(buf, t1, t3)                        // t1 = 2^k * exp(r)
	e.EmitMove(buf, dst, t1)
}

// emitLogCore splits src's IEEE-754 bits into an exponent e and a mantissa
// m in [1,2) (the frexp decomposition), via a per-lane logical right shift
// to isolate the raw biased-exponent bits, the magic-number trick to turn
// that raw integer into its exact double value, and a clear-exponent /
// OR-in-one mask pair to force m into [1,2) while preserving its mantissa
// bits. log(x) = 2*atanh(s) + e*ln2, s = (m-1)/(m+1), evaluated by
// emitSquaredHorner against coeffPool. dst may alias src. t1-t4 are
// scratch.
func emitLogCore(e Emitter, buf *CodeBuffer, dst, src, t1, t2, t3, t4 reg, consts RangeReductionConsts, coeffPool []int) {
	e.EmitMove(buf, t1, src)
	e.EmitShiftRight(buf, t1, 52) // t1 = raw biased exponent bits
	e.EmitLoadFromPool(buf, t2, consts.DoubleMagic)
	e.EmitOrPD(buf, t1, t2) // t1 = 2^52 + E_biased
	e.EmitSub(buf, t1, t2)  // t1 = E_biased, exact double
	e.EmitLoadFromPool(buf, t2, consts.ExponentBias)
	e.EmitSub(buf, t1, t2) // t1 = e, the unbiased exponent

	e.EmitMove(buf, dst, src)
	e.EmitLoadFromPool(buf, t2, consts.ExponentClearMask)
	e.EmitAndPD(buf, dst, t2) // dst = sign+mantissa bits of src
	e.EmitLoadFromPool(buf, t2, consts.One)
	e.EmitOrPD(buf, dst, t2) // dst = m, in [1,2)

	e.EmitMove(buf, t3, dst)
	e.EmitAdd(buf, t3, t2)  // t3 = m+1 (t2 still holds 1.0)
	e.EmitSub(buf, dst, t2) // dst = m-1
	e.EmitDiv(buf, dst, t3) // dst = s = (m-1)/(m+1)

	emitSquaredHorner(e, buf, t2, dst, t3, t4, coeffPool, true) // t2 = s * atanh-poly(s^2) = atanh(s)
	e.EmitAdd(buf, t2, t2)                                      // t2 = 2*atanh(s) = ln(m)

	e.EmitLoadFromPool(buf, t3, consts.Ln2)
	e.EmitMul(buf, t1, t3) // t1 = e*ln2
	e.EmitAdd(buf, t2, t1) // t2 = ln(m) + e*ln2 = ln(src)
	e.EmitMove(buf, dst, t2)
}

// EmitTranscendental lowers one of the Exp/Log/Sin/Cos/Tan/Pow opcodes
// through range reduction followed by polynomial evaluation (spec §4.5,
// §9). dst/src are the result/operand register (dst may alias src; src is
// otherwise left unchanged); extra is Pow's exponent operand (unused
// otherwise); tmps is scratch, sized for the heaviest case (Log and Exp
// each use all four); consts supplies the range-reduction constant-pool
// offsets; coeffPool supplies the polynomial's own coefficient offsets
// (Sin's followed by Cos's for Tan, Log's followed by Exp's for Pow).
func EmitTranscendental(e Emitter, buf *CodeBuffer, op graph.Opcode, dst, src, extra reg, tmps [4]reg, consts RangeReductionConsts, coeffPool []int) {
	t1, t2, t3, t4 := tmps[0], tmps[1], tmps[2], tmps[3]
	switch op {
	case graph.Exp:
		emitExpCore(e, buf, dst, src, t1, t2, t3, t4, consts, coeffPool)
	case graph.Log:
		emitLogCore(e, buf, dst, src, t1, t2, t3, t4, consts, coeffPool)
	case graph.Sin:
		emitSinCosCore(e, buf, dst, src, t1, t2, t3, consts, coeffPool, true)
	case graph.Cos:
		emitSinCosCore(e, buf, dst, src, t1, t2, t3, consts, coeffPool, false)
	case graph.Tan:
		sinCoeffs := coeffPool[:NumTranscendentalCoeffs(graph.Sin)]
		cosCoeffs := coeffPool[NumTranscendentalCoeffs(graph.Sin):]
		sinAcc := t4
		emitSinCosCore(e, buf, sinAcc, src, t1, t2, t3, consts, sinCoeffs, true)
		emitSinCosCore(e, buf, dst, src, t1, t2, t3, consts, cosCoeffs, false) // dst now holds cos(src)
		e.EmitDiv(buf, sinAcc, dst)
		e.EmitMove(buf, dst, sinAcc)
	case graph.Pow:
		logCoeffs := coeffPool[:NumTranscendentalCoeffs(graph.Log)]
		expCoeffs := coeffPool[NumTranscendentalCoeffs(graph.Log):]
		emitLogCore(e, buf, dst, src, t1, t2, t3, t4, consts, logCoeffs) // dst now holds ln(a)
		e.EmitMul(buf, dst, extra)                                      // dst = b*ln(a)
		emitExpCore(e, buf, dst, dst, t1, t2, t3, t4, consts, expCoeffs)
	}
}
