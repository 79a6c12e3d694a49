package graph

import "fmt"

// Graph is the linear, single-assignment IR described in spec §3. It is a
// bag of arrays (nodes, constPool, outputs, diffInputs) mutable only while
// its owning recorder is active; after Stop freezes it, it is read-only and
// may be compiled any number of times, each producing an independent
// Kernel.
type Graph struct {
	nodes      []Node
	constPool  []float64
	outputs    []NodeId
	diffInputs []NodeId
	inputs     []NodeId

	frozen bool
}

// NewGraph returns an empty, mutable Graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Clear resets the Graph to empty and mutable. Called by the recorder when
// a new session starts.
func (g *Graph) Clear() {
	g.nodes = g.nodes[:0]
	g.constPool = g.constPool[:0]
	g.outputs = g.outputs[:0]
	g.diffInputs = g.diffInputs[:0]
	g.inputs = g.inputs[:0]
	g.frozen = false
}

// Empty reports whether the Graph has no nodes.
func (g *Graph) Empty() bool { return len(g.nodes) == 0 }

// Size returns the number of nodes in the Graph.
func (g *Graph) Size() int { return len(g.nodes) }

// Frozen reports whether the Graph has been finalized by Recorder.Stop.
func (g *Graph) Frozen() bool { return g.frozen }

// Freeze marks the Graph read-only. Called once by Recorder.Stop.
func (g *Graph) Freeze() { g.frozen = true }

// Node returns the node at id. Panics if id is out of range, matching the
// invariant that every reference in a frozen Graph is valid.
func (g *Graph) Node(id NodeId) *Node { return &g.nodes[id] }

// Nodes returns the full node slice, in construction (topological) order.
func (g *Graph) Nodes() []Node { return g.nodes }

// ConstPool returns the ordered constant-pool values.
func (g *Graph) ConstPool() []float64 { return g.constPool }

// Outputs returns the NodeIds marked as outputs, in marking order.
func (g *Graph) Outputs() []NodeId { return g.outputs }

// DiffInputs returns the NodeIds marked both input and differentiable.
func (g *Graph) DiffInputs() []NodeId { return g.diffInputs }

// Inputs returns every NodeId added via AddInput, in construction order.
func (g *Graph) Inputs() []NodeId { return g.inputs }

// AddNode appends node, stamping its Dst to the id it is assigned, and
// returns that id. Operand ids are not validated here — validation is the
// recorder's job at construction time and the compiler's job before
// lowering (ErrOperandOutOfRange).
func (g *Graph) AddNode(n Node) NodeId {
	id := NodeId(len(g.nodes))
	n.Dst = id
	g.nodes = append(g.nodes, n)
	return id
}

// AddConstant pushes value to the constant pool (no deduplication at this
// layer) and appends a Constant node referencing it.
func (g *Graph) AddConstant(value float64) NodeId {
	idx := len(g.constPool)
	g.constPool = append(g.constPool, value)
	return g.AddNode(Node{Op: Constant, A: noOperand, B: noOperand, C: noOperand, Imm: float64(idx)})
}

// AddInput appends an Input node, seeds IsActive, and records it in the
// input list.
func (g *Graph) AddInput() NodeId {
	id := g.AddNode(Node{Op: Input, A: noOperand, B: noOperand, C: noOperand, IsActive: true})
	g.inputs = append(g.inputs, id)
	return id
}

// AddDiffInput appends an Input node seeded both IsActive and
// NeedsGradient, and records it in both the input and diff-input lists.
func (g *Graph) AddDiffInput() NodeId {
	id := g.AddNode(Node{Op: Input, A: noOperand, B: noOperand, C: noOperand, IsActive: true, NeedsGradient: true})
	g.inputs = append(g.inputs, id)
	g.diffInputs = append(g.diffInputs, id)
	return id
}

// MarkOutput records id in the outputs list if it is not already marked.
func (g *Graph) MarkOutput(id NodeId) {
	for _, o := range g.outputs {
		if o == id {
			return
		}
	}
	g.outputs = append(g.outputs, id)
}

// Validate checks the invariants in spec §3/§8: topological operand order,
// valid constant-pool references, and valid output/diff-input references.
// It does not recompute IsActive/NeedsGradient — those are maintained by
// construction (recorder) and are cross-checked by ValidateFlags.
func (g *Graph) Validate() error {
	for i := range g.nodes {
		n := &g.nodes[i]
		for _, op := range n.Operands() {
			if op >= n.Dst {
				return fmt.Errorf("node %d operand %d: %w", n.Dst, op, ErrOperandOutOfRange)
			}
		}
		if n.Op == Constant {
			idx := int(n.Imm)
			if idx < 0 || idx >= len(g.constPool) {
				return fmt.Errorf("node %d: %w", n.Dst, ErrInvalidConstPoolIndex)
			}
		}
	}
	for _, o := range g.outputs {
		if int(o) >= len(g.nodes) {
			return fmt.Errorf("output %d: %w", o, ErrOperandOutOfRange)
		}
	}
	for _, d := range g.diffInputs {
		if int(d) >= len(g.nodes) {
			return fmt.Errorf("diff-input %d: %w", d, ErrOperandOutOfRange)
		}
	}
	if len(g.outputs) == 0 {
		return ErrNoOutputsMarked
	}
	return nil
}

// ValidateFlags cross-checks the activity and gradient-flag propagation
// invariants from spec §8 against the recorded graph. It is O(n) and meant
// for tests/diagnostics, not the hot compile path.
func (g *Graph) ValidateFlags() error {
	for i := range g.nodes {
		n := &g.nodes[i]
		if n.Op == Input {
			continue
		}
		wantActive := false
		wantGrad := false
		for _, op := range n.Operands() {
			opNode := &g.nodes[op]
			wantActive = wantActive || opNode.IsActive
			wantGrad = wantGrad || opNode.NeedsGradient
		}
		if n.Op != Constant && n.Op != BoolConstant && n.Op != IntConstant {
			if n.IsActive != wantActive {
				return fmt.Errorf("node %d: isActive=%v want=%v", n.Dst, n.IsActive, wantActive)
			}
			if n.NeedsGradient != wantGrad {
				return fmt.Errorf("node %d: needsGradient=%v want=%v", n.Dst, n.NeedsGradient, wantGrad)
			}
		}
	}
	return nil
}
