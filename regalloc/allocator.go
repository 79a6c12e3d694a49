// Package regalloc implements the register allocator described in spec
// §4.4: an abstract SIMD register file (XMM0..XMM15 for SSE2-scalar,
// YMM0..YMM15 for AVX2 — the width itself is opaque to this package, only
// the register count matters here) tracking which Graph node each register
// currently holds, dirty bits, and a pin/lock discipline so multi-instruction
// sequences in the forward and reverse emitters can hold operand registers
// without fear of eviction mid-emission.
package regalloc

import "forge/graph"

// noNode marks a register slot that holds no node.
const noNode graph.NodeId = ^graph.NodeId(0)

// reg tracks one physical register's allocation state.
type reg struct {
	node     graph.NodeId
	holding  bool
	dirty    bool
	lockCnt  int
	lastUsed int64
}

// StoreFunc writes the value currently in reg out to node's buffer slot.
// Supplied by the caller (the forward/reverse emitter) since only the
// instruction-set strategy knows how to emit the actual store instruction.
type StoreFunc func(reg int, node graph.NodeId)

// LoadFunc loads node's value into reg, from wherever the caller decides is
// appropriate (constant pool on a Constant's first use, buffer slot
// otherwise — that decision lives in the emitter, not here).
type LoadFunc func(reg int, node graph.NodeId)

// Allocator is the abstract register file from spec §4.4. It holds no
// instruction-emission knowledge of its own; store/load side effects are
// performed by the StoreFunc/LoadFunc callbacks passed into its operations,
// keeping this package decoupled from the isa package.
type Allocator struct {
	regs  []reg
	clock int64
	// nodeToReg is a reverse index kept in sync with regs for FindNode.
	nodeToReg map[graph.NodeId]int
}

// New returns an Allocator managing numRegs abstract registers, all free.
func New(numRegs int) *Allocator {
	regs := make([]reg, numRegs)
	for i := range regs {
		regs[i].node = noNode
	}
	return &Allocator{regs: regs, nodeToReg: make(map[graph.NodeId]int)}
}

// NumRegs returns the size of the register file.
func (a *Allocator) NumRegs() int { return len(a.regs) }

// FindNode reports whether id is currently live in a register, and which
// one.
func (a *Allocator) FindNode(id graph.NodeId) (int, bool) {
	r, ok := a.nodeToReg[id]
	return r, ok
}

// IsLocked reports whether reg is currently pinned.
func (a *Allocator) IsLocked(r int) bool { return a.regs[r].lockCnt > 0 }

// IsDirty reports whether reg currently holds a value not yet written back
// to its node's buffer slot.
func (a *Allocator) IsDirty(r int) bool { return a.regs[r].dirty }

// Lock pins regs so AllocateAvoiding/EnsureInRegister will never evict them.
// Locks nest: a register locked twice needs two Unlock calls before it is
// eligible for eviction again.
func (a *Allocator) Lock(regs ...int) {
	for _, r := range regs {
		a.regs[r].lockCnt++
	}
}

// Unlock reverses one Lock call on each of regs.
func (a *Allocator) Unlock(regs ...int) {
	for _, r := range regs {
		if a.regs[r].lockCnt > 0 {
			a.regs[r].lockCnt--
		}
	}
}

// WithLocked pins regs for the duration of fn, per spec §9's design note
// that the pin discipline is naturally a RAII-style helper around a
// multi-instruction emission closure. Unlocks regs even if fn panics.
func (a *Allocator) WithLocked(regs []int, fn func()) {
	a.Lock(regs...)
	defer a.Unlock(regs...)
	fn()
}

// touch advances the LRU clock and stamps r as most-recently-used.
func (a *Allocator) touch(r int) {
	a.clock++
	a.regs[r].lastUsed = a.clock
}

// SetRegister records that r now holds node, with dirty indicating whether
// the value has not yet been written back to node's buffer slot. Evicts
// any stale reverse-mapping for the node r previously held.
func (a *Allocator) SetRegister(r int, node graph.NodeId, dirty bool) {
	old := &a.regs[r]
	if old.holding {
		delete(a.nodeToReg, old.node)
	}
	old.node = node
	old.holding = true
	old.dirty = dirty
	a.nodeToReg[node] = r
	a.touch(r)
}

// Clear drops the contents of r without spilling. Used after a store has
// just made the register clean, or when a node's value is no longer
// needed (e.g. a dead node).
func (a *Allocator) Clear(r int) {
	old := &a.regs[r]
	if old.holding {
		delete(a.nodeToReg, old.node)
	}
	old.holding = false
	old.dirty = false
	old.node = noNode
}

// MarkClean records that r's value has been written back to its buffer
// slot, without changing which node it holds.
func (a *Allocator) MarkClean(r int) {
	a.regs[r].dirty = false
}

// pickEvictionCandidate chooses a register to reuse, excluding avoid and
// any currently-locked register, preferring free registers, then
// non-dirty-LRU, then (if only dirty candidates remain) the coldest dirty
// register — matching spec §4.4's spill policy.
func (a *Allocator) pickEvictionCandidate(avoid map[int]bool) (int, bool) {
	best := -1
	bestIsFree := false
	bestDirty := true
	var bestClock int64 = 1<<63 - 1

	for i := range a.regs {
		if avoid[i] || a.regs[i].lockCnt > 0 {
			continue
		}
		r := &a.regs[i]
		if !r.holding {
			// Free register: always wins outright.
			return i, true
		}
		switch {
		case best == -1:
			best, bestIsFree, bestDirty, bestClock = i, false, r.dirty, r.lastUsed
		case bestDirty && !r.dirty:
			// Prefer any non-dirty candidate over a dirty one.
			best, bestDirty, bestClock = i, false, r.lastUsed
		case bestDirty == r.dirty && r.lastUsed < bestClock:
			best, bestClock = i, r.lastUsed
		}
	}
	if best == -1 {
		return -1, false
	}
	return best, bestIsFree
}

// AllocateAvoiding picks a free (or coldest, per the spill policy) register
// not present in avoid. If the chosen register holds a dirty value for
// another node, spill is invoked to flush it to that node's buffer slot
// before the register is reused (spec §4.4). Returns ErrRegisterLocked if
// every register is either in avoid or currently locked.
func (a *Allocator) AllocateAvoiding(avoid map[int]bool, spill StoreFunc) (int, error) {
	r, _ := a.pickEvictionCandidate(avoid)
	if r == -1 {
		return -1, ErrRegisterLocked
	}
	old := &a.regs[r]
	if old.holding && old.dirty {
		spill(r, old.node)
	}
	a.Clear(r)
	return r, nil
}

// EnsureInRegister returns a register holding id's value, loading it if
// necessary. If id is already resident, its register is returned unchanged
// (and touched for LRU purposes). Otherwise a target register is chosen via
// AllocateAvoiding and load is invoked to populate it, after which the
// register is marked clean (spec §4.4: "marks the register clean").
func (a *Allocator) EnsureInRegister(id graph.NodeId, avoid map[int]bool, spill StoreFunc, load LoadFunc) (int, error) {
	if r, ok := a.FindNode(id); ok {
		a.touch(r)
		return r, nil
	}
	r, err := a.AllocateAvoiding(avoid, spill)
	if err != nil {
		return -1, err
	}
	load(r, id)
	a.SetRegister(r, id, false)
	return r, nil
}

// SpillAll flushes every dirty, unlocked register via spill and marks it
// clean. Used at the end of the forward pass (or before the reverse pass
// begins) so no live value is left un-mirrored to the buffer.
func (a *Allocator) SpillAll(spill StoreFunc) {
	for i := range a.regs {
		r := &a.regs[i]
		if r.holding && r.dirty && r.lockCnt == 0 {
			spill(i, r.node)
			r.dirty = false
		}
	}
}
