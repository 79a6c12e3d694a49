package graph

// NodeId is a dense 32-bit index into the Graph's node array, and also the
// offset index into a Buffer's value slots. Never reused within a Graph.
type NodeId uint32

// noOperand marks an unused a/b/c slot on a Node.
const noOperand NodeId = ^NodeId(0)

// Node is a single operation in the IR. a, b and c are operand NodeIds (as
// used by Op.NumOperands); unused slots hold noOperand. Imm carries a
// constant-pool index for Constant nodes, or a literal value for
// BoolConstant/IntConstant nodes.
type Node struct {
	Op  Opcode
	Dst NodeId
	A   NodeId
	B   NodeId
	C   NodeId
	Imm float64

	// IsActive is true when this node depends transitively on an Input.
	IsActive bool
	// NeedsGradient is true when this node participates in a gradient
	// that will be computed via AAD.
	NeedsGradient bool
	// IsDead is an optional optimiser mark; emitters may skip dead nodes.
	IsDead bool
}

// Operands returns this node's used operand ids, in a/b/c order, sized to
// Op.NumOperands().
func (n *Node) Operands() []NodeId {
	all := [3]NodeId{n.A, n.B, n.C}
	return all[:n.Op.NumOperands()]
}
