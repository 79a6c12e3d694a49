package recorder

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"forge/graph"
)

func TestStartStopHappyPath(t *testing.T) {
	r := New()
	require.NoError(t, r.Start())

	g := r.Graph()
	x := g.AddInput()
	g.MarkOutput(x)

	frozen, err := r.Stop()
	require.NoError(t, err)
	require.True(t, frozen.Frozen())
}

func TestDoubleStartFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Start())
	defer r.Stop()

	r2 := New()
	err := r2.Start()
	require.ErrorIs(t, err, graph.ErrRecorderAlreadyActive)
}

func TestStopWithoutOutputFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Start())
	r.Graph().AddConstant(1.0)

	_, err := r.Stop()
	require.ErrorIs(t, err, graph.ErrNoOutputsMarked)

	// Per spec §8 scenario 6, a failed Stop returns the recorder to the
	// idle state: a brand new session can Start immediately.
	r2 := New()
	require.NoError(t, r2.Start())
	x := r2.Graph().AddInput()
	r2.Graph().MarkOutput(x)
	_, err = r2.Stop()
	require.NoError(t, err)
}

func TestStopWithoutStartFails(t *testing.T) {
	r := New()
	_, err := r.Stop()
	require.ErrorIs(t, err, graph.ErrRecordingNotActive)
}

func TestConcurrentRecordersAreIsolated(t *testing.T) {
	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	results := make([]int, n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			r := New()
			require.NoError(t, r.Start())
			g := r.Graph()
			var last graph.NodeId
			for k := 0; k <= i; k++ {
				last = g.AddConstant(float64(k))
			}
			g.MarkOutput(last)
			frozen, err := r.Stop()
			require.NoError(t, err)
			results[i] = frozen.Size()
		}(i)
	}
	wg.Wait()

	for i, size := range results {
		require.Equal(t, i+1, size, "thread %d graph size should reflect only its own operations", i)
	}
}
