package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"forge/graph"
)

func TestFindNodeMissThenHit(t *testing.T) {
	a := New(4)
	_, ok := a.FindNode(7)
	require.False(t, ok)

	a.SetRegister(2, 7, true)
	r, ok := a.FindNode(7)
	require.True(t, ok)
	require.Equal(t, 2, r)
}

func TestAllocateAvoidingPrefersFreeRegister(t *testing.T) {
	a := New(2)
	a.SetRegister(0, 1, false)

	spilled := false
	r, err := a.AllocateAvoiding(nil, func(reg int, node graph.NodeId) { spilled = true })
	require.NoError(t, err)
	require.Equal(t, 1, r)
	require.False(t, spilled, "a free register must not trigger a spill")
}

func TestAllocateAvoidingSpillsDirtyWhenNoFreeRegister(t *testing.T) {
	a := New(1)
	a.SetRegister(0, 5, true)

	var spilledReg int
	var spilledNode graph.NodeId
	r, err := a.AllocateAvoiding(nil, func(reg int, node graph.NodeId) {
		spilledReg, spilledNode = reg, node
	})
	require.NoError(t, err)
	require.Equal(t, 0, r)
	require.Equal(t, 0, spilledReg)
	require.Equal(t, graph.NodeId(5), spilledNode)
}

func TestAllocateAvoidingNeverEvictsALockedRegister(t *testing.T) {
	a := New(1)
	a.SetRegister(0, 9, true)
	a.Lock(0)

	_, err := a.AllocateAvoiding(nil, func(reg int, node graph.NodeId) {
		t.Fatalf("must not spill a locked register")
	})
	require.ErrorIs(t, err, ErrRegisterLocked)
}

func TestAllocateAvoidingRespectsAvoidSet(t *testing.T) {
	a := New(2)
	r, err := a.AllocateAvoiding(map[int]bool{0: true}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, r)
}

func TestEnsureInRegisterLoadsOnMiss(t *testing.T) {
	a := New(2)
	loadedReg := -1
	var loadedNode graph.NodeId
	r, err := a.EnsureInRegister(3, nil, nil, func(reg int, node graph.NodeId) {
		loadedReg, loadedNode = reg, node
	})
	require.NoError(t, err)
	require.Equal(t, r, loadedReg)
	require.Equal(t, graph.NodeId(3), loadedNode)
	require.False(t, a.IsDirty(r), "EnsureInRegister must leave the register clean after load")
}

func TestEnsureInRegisterSkipsLoadOnHit(t *testing.T) {
	a := New(2)
	a.SetRegister(0, 3, true)

	called := false
	r, err := a.EnsureInRegister(3, nil, nil, func(reg int, node graph.NodeId) { called = true })
	require.NoError(t, err)
	require.Equal(t, 0, r)
	require.False(t, called, "an already-resident node must not be reloaded")
}

func TestSpillAllFlushesDirtyUnlockedRegisters(t *testing.T) {
	a := New(3)
	a.SetRegister(0, 1, true)
	a.SetRegister(1, 2, true)
	a.Lock(1)
	a.SetRegister(2, 3, false)

	flushed := map[int]graph.NodeId{}
	a.SpillAll(func(reg int, node graph.NodeId) { flushed[reg] = node })

	require.Equal(t, map[int]graph.NodeId{0: 1}, flushed, "only reg 0 is dirty and unlocked")
	require.False(t, a.IsDirty(0))
	require.True(t, a.IsDirty(1), "locked dirty register is left untouched")
}

func TestWithLockedPreventsEvictionDuringClosure(t *testing.T) {
	a := New(1)
	a.SetRegister(0, 1, true)

	a.WithLocked([]int{0}, func() {
		_, err := a.AllocateAvoiding(nil, func(reg int, node graph.NodeId) {
			t.Fatalf("register locked by WithLocked must not be spilled")
		})
		require.ErrorIs(t, err, ErrRegisterLocked)
	})

	// Once the closure returns, the lock is released and the register is
	// eligible for eviction again.
	r, err := a.AllocateAvoiding(nil, func(reg int, node graph.NodeId) {})
	require.NoError(t, err)
	require.Equal(t, 0, r)
}

func TestNestedLocksRequireMatchingUnlocks(t *testing.T) {
	a := New(1)
	a.SetRegister(0, 1, false)
	a.Lock(0)
	a.Lock(0)
	a.Unlock(0)
	require.True(t, a.IsLocked(0), "one Unlock should not release a doubly-locked register")
	a.Unlock(0)
	require.False(t, a.IsLocked(0))
}

func TestSpillPolicyPrefersNonDirtyLRUOverDirty(t *testing.T) {
	a := New(2)
	a.SetRegister(0, 1, true)  // dirty
	a.SetRegister(1, 2, false) // clean, older than nothing else

	spilledAny := false
	r, err := a.AllocateAvoiding(nil, func(reg int, node graph.NodeId) { spilledAny = true })
	require.NoError(t, err)
	require.Equal(t, 1, r, "clean register must be reused before a dirty one")
	require.False(t, spilledAny)
}
