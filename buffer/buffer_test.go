package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forge/buffer"
	"forge/graph"
	"forge/isa"
	"forge/jit"
	"forge/recorder"
	"forge/trace"
)

func compileSquareGraph(t *testing.T, cfg jit.CompilerConfig, diff bool) (*jit.Kernel, *buffer.Buffer, graph.NodeId) {
	t.Helper()
	rec := recorder.New()
	require.NoError(t, rec.Start())

	if diff {
		x, err := trace.DiffInput(2.0)
		require.NoError(t, err)
		out := x.Square()
		require.NoError(t, trace.MarkOutput(out))
		xID := x.NodeId(rec)

		g, err := rec.Stop()
		require.NoError(t, err)
		k, err := jit.Compile(g, cfg)
		require.NoError(t, err)
		return k, buffer.New(g, k), xID
	}

	x, err := trace.Input(2.0)
	require.NoError(t, err)
	out := x.Square()
	require.NoError(t, trace.MarkOutput(out))
	xID := x.NodeId(rec)

	g, err := rec.Stop()
	require.NoError(t, err)
	k, err := jit.Compile(g, cfg)
	require.NoError(t, err)
	return k, buffer.New(g, k), xID
}

func TestNewSizesBufferWithoutAdjointRegionWhenNoDiffInputs(t *testing.T) {
	k, buf, xID := compileSquareGraph(t, jit.DefaultConfig(), false)
	defer k.Close()

	require.Equal(t, k.NumNodes(), buf.NumNodes())
	require.Equal(t, k.VectorWidth(), buf.VectorWidth())

	_, err := buf.GetGradient(xID)
	require.ErrorIs(t, err, buffer.ErrNoReversePass)
}

func TestNewSizesBufferWithAdjointRegionWhenDiffInputPresent(t *testing.T) {
	k, buf, xID := compileSquareGraph(t, jit.DefaultConfig(), true)
	defer k.Close()

	require.NoError(t, buf.SetValue(xID, 3.0))
	require.NoError(t, k.Execute(buf))

	grad, err := buf.GetGradient(xID)
	require.NoError(t, err)
	require.InDelta(t, 6.0, grad, 1e-9) // d(x^2)/dx = 2x at x=3
}

func TestSetValueBroadcastsAcrossAllLanes(t *testing.T) {
	k, buf, xID := compileSquareGraph(t, avx2Config(), false)
	defer k.Close()

	require.NoError(t, buf.SetValue(xID, 5.0))
	lanes := make([]float64, buf.VectorWidth())
	require.NoError(t, buf.GetLanes(xID, lanes))
	for _, v := range lanes {
		require.Equal(t, 5.0, v)
	}
}

func TestSetLanesRejectsWrongLength(t *testing.T) {
	k, buf, xID := compileSquareGraph(t, jit.DefaultConfig(), false)
	defer k.Close()

	err := buf.SetLanes(xID, []float64{1, 2})
	require.ErrorIs(t, err, buffer.ErrLaneCountMismatch)
}

func TestOutOfRangeNodeIdRejected(t *testing.T) {
	k, buf, _ := compileSquareGraph(t, jit.DefaultConfig(), false)
	defer k.Close()

	_, err := buf.GetValue(graph.NodeId(buf.NumNodes() + 1000))
	require.ErrorIs(t, err, buffer.ErrNodeOutOfRange)
}

func TestClearGradientsZeroesAdjointRegion(t *testing.T) {
	k, buf, xID := compileSquareGraph(t, jit.DefaultConfig(), true)
	defer k.Close()

	require.NoError(t, buf.SetValue(xID, 4.0))
	require.NoError(t, k.Execute(buf))

	grad, err := buf.GetGradient(xID)
	require.NoError(t, err)
	require.NotEqual(t, 0.0, grad)

	require.NoError(t, buf.ClearGradients())
	grad, err = buf.GetGradient(xID)
	require.NoError(t, err)
	require.Equal(t, 0.0, grad)
}

func avx2Config() jit.CompilerConfig {
	cfg := jit.DefaultConfig()
	cfg.InstructionSet = isa.AVX2Packed
	return cfg
}
