package isa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forge/graph"
)

func TestEmitLoadFromPoolRecordsReloc(t *testing.T) {
	buf := NewCodeBuffer()
	SSE2{}.EmitLoadFromPool(buf, 0, 5)
	require.Len(t, buf.Relocs, 1)
	require.Equal(t, 5, buf.Relocs[0].PoolOffset)
	require.Equal(t, buf.Relocs[0].CodeOffset+4, buf.Len())
}

func TestSSE2AddEmitsNonEmptyBytes(t *testing.T) {
	buf := NewCodeBuffer()
	SSE2{}.EmitAdd(buf, 0, 1)
	require.NotEmpty(t, buf.Bytes)
	require.Equal(t, byte(0xF2), buf.Bytes[0], "addsd carries the F2 mandatory prefix")
}

func TestSSE2HighRegistersEmitRexPrefix(t *testing.T) {
	buf := NewCodeBuffer()
	SSE2{}.EmitAdd(buf, 8, 9) // xmm8, xmm9 both need REX.R/B
	require.Equal(t, byte(0xF2), buf.Bytes[0])
	require.Equal(t, byte(0x45), buf.Bytes[1], "REX.R|REX.B set for xmm8/xmm9 operands")
}

func TestAVX2AddUsesVexPrefix(t *testing.T) {
	buf := NewCodeBuffer()
	AVX2{}.EmitAdd(buf, 0, 1)
	require.Equal(t, byte(0xC4), buf.Bytes[0], "VEX 3-byte prefix starts with C4")
}

func TestCmpPredicateGTSwapsOperands(t *testing.T) {
	pred, swap := cmpPredicate(graph.CmpGT)
	require.True(t, swap)
	ltPred, _ := cmpPredicate(graph.CmpLT)
	require.Equal(t, ltPred, pred, "GT(a,b) reuses LT's predicate with swapped operands")
}

func TestEmitPolynomialOneCoeffIsJustALoad(t *testing.T) {
	buf := NewCodeBuffer()
	SSE2{}.EmitPolynomial(buf, 0, 1, 2, []int{7})
	require.Len(t, buf.Relocs, 1)
	require.Equal(t, 7, buf.Relocs[0].PoolOffset)
}

func TestEmitPolynomialMultiCoeffHornerStepsMatchCoeffCount(t *testing.T) {
	buf := NewCodeBuffer()
	SSE2{}.EmitPolynomial(buf, 0, 1, 2, []int{1, 2, 3})
	require.Len(t, buf.Relocs, 3, "one pool load per coefficient")
}

func TestTranscendentalCoeffTableCoversCoreFunctions(t *testing.T) {
	for _, op := range []graph.Opcode{graph.Exp, graph.Log, graph.Sin, graph.Cos} {
		require.NotEmpty(t, TranscendentalCoeffs[op], "%s needs a coefficient table", op)
	}
}

func TestEmittersReportDistinctWidths(t *testing.T) {
	require.Equal(t, 1, SSE2{}.VectorWidth())
	require.Equal(t, 8, SSE2{}.SlotSize())
	require.Equal(t, 4, AVX2{}.VectorWidth())
	require.Equal(t, 32, AVX2{}.SlotSize())
}

func TestEpiloguesEndInRet(t *testing.T) {
	buf := NewCodeBuffer()
	SSE2{}.Epilogue(buf)
	require.Equal(t, byte(0xC3), buf.Bytes[len(buf.Bytes)-1])

	buf2 := NewCodeBuffer()
	AVX2{}.Epilogue(buf2)
	require.Equal(t, byte(0xC3), buf2.Bytes[len(buf2.Bytes)-1])
}
