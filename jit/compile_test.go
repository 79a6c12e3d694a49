package jit_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"forge/buffer"
	"forge/isa"
	"forge/jit"
	"forge/recorder"
	"forge/trace"
)

func TestForwardAddition(t *testing.T) {
	rec := recorder.New()
	require.NoError(t, rec.Start())

	x, err := trace.Input(2.5)
	require.NoError(t, err)
	y, err := trace.Input(4.0)
	require.NoError(t, err)
	out := x.Add(y)
	require.NoError(t, trace.MarkOutput(out))
	xID, yID, outID := x.NodeId(rec), y.NodeId(rec), out.NodeId(rec)

	g, err := rec.Stop()
	require.NoError(t, err)

	k, err := jit.Compile(g, jit.DefaultConfig())
	require.NoError(t, err)
	defer k.Close()

	buf := buffer.New(g, k)
	require.NoError(t, buf.SetValue(xID, 2.5))
	require.NoError(t, buf.SetValue(yID, 4.0))
	require.NoError(t, k.Execute(buf))

	got, err := buf.GetValue(outID)
	require.NoError(t, err)
	require.InDelta(t, 6.5, got, 1e-9)
}

// runExpr compiles and executes result = sin(x)*cos(y) + x^2 under cfg and
// returns the value of the marked output.
func runExpr(t *testing.T, cfg jit.CompilerConfig, xVal, yVal float64) float64 {
	t.Helper()
	rec := recorder.New()
	require.NoError(t, rec.Start())

	x, err := trace.Input(xVal)
	require.NoError(t, err)
	y, err := trace.Input(yVal)
	require.NoError(t, err)
	out := x.Sin().Mul(y.Cos()).Add(x.Square())
	require.NoError(t, trace.MarkOutput(out))
	outID := out.NodeId(rec)
	xID := x.NodeId(rec)
	yID := y.NodeId(rec)

	g, err := rec.Stop()
	require.NoError(t, err)

	k, err := jit.Compile(g, cfg)
	require.NoError(t, err)
	defer k.Close()

	buf := buffer.New(g, k)
	require.NoError(t, buf.SetValue(xID, xVal))
	require.NoError(t, buf.SetValue(yID, yVal))
	require.NoError(t, k.Execute(buf))
	v, err := buf.GetValue(outID)
	require.NoError(t, err)
	return v
}

func TestBackendsAgreeOnTranscendentalComposition(t *testing.T) {
	sse2Cfg := jit.DefaultConfig()
	avx2Cfg := jit.DefaultConfig()
	avx2Cfg.InstructionSet = isa.AVX2Packed

	sse2 := runExpr(t, sse2Cfg, 0.6, 1.3)
	avx2 := runExpr(t, avx2Cfg, 0.6, 1.3)

	require.InDelta(t, sse2, avx2, 1e-9)
	require.InDelta(t, math.Sin(0.6)*math.Cos(1.3)+0.6*0.6, sse2, 1e-6)
}

// runTranscendentalAt records a single-input graph applying op to x,
// compiles and executes it under cfg, and returns the value of the marked
// output. op is one of "sin"/"cos"/"exp"/"log".
func runTranscendentalAt(t *testing.T, cfg jit.CompilerConfig, op string, xVal float64) float64 {
	t.Helper()
	rec := recorder.New()
	require.NoError(t, rec.Start())

	x, err := trace.Input(xVal)
	require.NoError(t, err)
	result := x
	switch op {
	case "sin":
		result = x.Sin()
	case "cos":
		result = x.Cos()
	case "exp":
		result = x.Exp()
	case "log":
		result = x.Log()
	}
	require.NoError(t, trace.MarkOutput(result))
	outID := result.NodeId(rec)
	xID := x.NodeId(rec)

	g, err := rec.Stop()
	require.NoError(t, err)

	k, err := jit.Compile(g, cfg)
	require.NoError(t, err)
	defer k.Close()

	buf := buffer.New(g, k)
	require.NoError(t, buf.SetValue(xID, xVal))
	require.NoError(t, k.Execute(buf))
	v, err := buf.GetValue(outID)
	require.NoError(t, err)
	return v
}

// TestTranscendentalRangeReduction exercises Sin/Cos/Exp/Log at magnitudes
// far outside a bare Maclaurin series' convergence radius, so a kernel that
// skipped range reduction entirely (or that folded the argument but still
// ran Sin/Cos through a flat, not squared, Horner pass) would fail these
// deltas even though the narrow-input TestBackendsAgreeOnTranscendentalComposition
// case above would not catch it.
func TestTranscendentalRangeReduction(t *testing.T) {
	cfg := jit.DefaultConfig()

	sin := runTranscendentalAt(t, cfg, "sin", 47.3)
	require.InDelta(t, math.Sin(47.3), sin, 1e-6)

	cos := runTranscendentalAt(t, cfg, "cos", -123.456)
	require.InDelta(t, math.Cos(-123.456), cos, 1e-6)

	exp := runTranscendentalAt(t, cfg, "exp", 12.0)
	require.InDelta(t, math.Exp(12.0), exp, math.Exp(12.0)*1e-6)

	log := runTranscendentalAt(t, cfg, "log", 534.2)
	require.InDelta(t, math.Log(534.2), log, 1e-6)
}

func TestGradientOfMultiplication(t *testing.T) {
	rec := recorder.New()
	require.NoError(t, rec.Start())

	x, err := trace.DiffInput(3.0)
	require.NoError(t, err)
	y, err := trace.DiffInput(5.0)
	require.NoError(t, err)
	out := x.Mul(y)
	require.NoError(t, trace.MarkOutput(out))
	xID, yID, outID := x.NodeId(rec), y.NodeId(rec), out.NodeId(rec)

	g, err := rec.Stop()
	require.NoError(t, err)

	k, err := jit.Compile(g, jit.DefaultConfig())
	require.NoError(t, err)
	defer k.Close()

	buf := buffer.New(g, k)
	require.NoError(t, buf.SetValue(xID, 3.0))
	require.NoError(t, buf.SetValue(yID, 5.0))
	require.NoError(t, k.Execute(buf))

	val, err := buf.GetValue(outID)
	require.NoError(t, err)
	require.InDelta(t, 15.0, val, 1e-9)

	dx, err := buf.GetGradient(xID)
	require.NoError(t, err)
	require.InDelta(t, 5.0, dx, 1e-9) // d(x*y)/dx = y

	dy, err := buf.GetGradient(yID)
	require.NoError(t, err)
	require.InDelta(t, 3.0, dy, 1e-9) // d(x*y)/dy = x
}

func TestGradientOfConditionalFollowsSelectedBranch(t *testing.T) {
	rec := recorder.New()
	require.NoError(t, rec.Start())

	x, err := trace.DiffInput(-2.0)
	require.NoError(t, err)
	cond := x.LT(trace.Const(0.0))
	out := cond.If(x.Neg(), x.Square())
	require.NoError(t, trace.MarkOutput(out))
	xID, outID := x.NodeId(rec), out.NodeId(rec)

	g, err := rec.Stop()
	require.NoError(t, err)

	k, err := jit.Compile(g, jit.DefaultConfig())
	require.NoError(t, err)
	defer k.Close()

	buf := buffer.New(g, k)
	require.NoError(t, buf.SetValue(xID, -2.0))
	require.NoError(t, k.Execute(buf))

	val, err := buf.GetValue(outID)
	require.NoError(t, err)
	require.InDelta(t, 2.0, val, 1e-9) // x < 0, so -x == 2.0

	dx, err := buf.GetGradient(xID)
	require.NoError(t, err)
	require.InDelta(t, -1.0, dx, 1e-9) // d(-x)/dx along the taken branch
}

func TestAVX2LanesExecuteIndependently(t *testing.T) {
	rec := recorder.New()
	require.NoError(t, rec.Start())

	x, err := trace.Input(0.0)
	require.NoError(t, err)
	out := x.Square()
	require.NoError(t, trace.MarkOutput(out))
	xID, outID := x.NodeId(rec), out.NodeId(rec)

	g, err := rec.Stop()
	require.NoError(t, err)

	cfg := jit.DefaultConfig()
	cfg.InstructionSet = isa.AVX2Packed
	k, err := jit.Compile(g, cfg)
	require.NoError(t, err)
	defer k.Close()

	buf := buffer.New(g, k)
	lanes := []float64{1, 2, 3, 4}
	require.NoError(t, buf.SetLanes(xID, lanes))
	require.NoError(t, k.Execute(buf))

	out4 := make([]float64, 4)
	require.NoError(t, buf.GetLanes(outID, out4))
	for i, v := range lanes {
		require.InDelta(t, v*v, out4[i], 1e-9)
	}
}

func TestIdempotentReexecution(t *testing.T) {
	rec := recorder.New()
	require.NoError(t, rec.Start())

	x, err := trace.Input(7.0)
	require.NoError(t, err)
	out := x.Sqrt()
	require.NoError(t, trace.MarkOutput(out))
	xID, outID := x.NodeId(rec), out.NodeId(rec)

	g, err := rec.Stop()
	require.NoError(t, err)

	k, err := jit.Compile(g, jit.DefaultConfig())
	require.NoError(t, err)
	defer k.Close()

	buf := buffer.New(g, k)
	require.NoError(t, buf.SetValue(xID, 7.0))
	require.NoError(t, k.Execute(buf))
	first, err := buf.GetValue(outID)
	require.NoError(t, err)

	require.NoError(t, k.Execute(buf))
	second, err := buf.GetValue(outID)
	require.NoError(t, err)

	require.InDelta(t, first, second, 1e-12)
	require.InDelta(t, math.Sqrt(7.0), first, 1e-6)
}
