package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddConstantNotDeduped(t *testing.T) {
	g := NewGraph()
	a := g.AddConstant(3.0)
	b := g.AddConstant(3.0)
	require.NotEqual(t, a, b, "AddConstant does no deduplication at the store layer (spec §4.2)")
	require.Equal(t, 2, len(g.ConstPool()))
}

func TestAddInputSeedsActive(t *testing.T) {
	g := NewGraph()
	id := g.AddInput()
	require.True(t, g.Node(id).IsActive)
	require.False(t, g.Node(id).NeedsGradient)
	require.Equal(t, []NodeId{id}, g.Inputs())
}

func TestAddDiffInputSeedsGradient(t *testing.T) {
	g := NewGraph()
	id := g.AddDiffInput()
	require.True(t, g.Node(id).IsActive)
	require.True(t, g.Node(id).NeedsGradient)
	require.Equal(t, []NodeId{id}, g.DiffInputs())
	require.Equal(t, []NodeId{id}, g.Inputs())
}

func TestMarkOutputIsIdempotent(t *testing.T) {
	g := NewGraph()
	id := g.AddConstant(1.0)
	g.MarkOutput(id)
	g.MarkOutput(id)
	require.Equal(t, []NodeId{id}, g.Outputs())
}

func TestValidateCatchesOperandOutOfRange(t *testing.T) {
	g := NewGraph()
	x := g.AddInput()
	// Hand-construct a node whose operand is not strictly less than itself.
	bad := g.AddNode(Node{Op: Add, A: x, B: x + 100})
	g.MarkOutput(bad)
	require.ErrorIs(t, g.Validate(), ErrOperandOutOfRange)
}

func TestValidateCatchesInvalidConstPoolIndex(t *testing.T) {
	g := NewGraph()
	bad := g.AddNode(Node{Op: Constant, A: noOperand, B: noOperand, C: noOperand, Imm: 7})
	g.MarkOutput(bad)
	require.ErrorIs(t, g.Validate(), ErrInvalidConstPoolIndex)
}

func TestValidateRequiresAnOutput(t *testing.T) {
	g := NewGraph()
	g.AddConstant(1.0)
	require.ErrorIs(t, g.Validate(), ErrNoOutputsMarked)
}

func TestActivityPropagation(t *testing.T) {
	g := NewGraph()
	x := g.AddInput()
	c := g.AddConstant(2.0)
	sum := g.AddNode(Node{Op: Add, A: x, B: c, IsActive: true})
	g.MarkOutput(sum)
	require.NoError(t, g.ValidateFlags())

	// A node that OR-combines incorrectly should be caught.
	g2 := NewGraph()
	c1 := g2.AddConstant(1.0)
	c2 := g2.AddConstant(2.0)
	wrong := g2.AddNode(Node{Op: Add, A: c1, B: c2, IsActive: true}) // both operands passive
	g2.MarkOutput(wrong)
	require.Error(t, g2.ValidateFlags())
}

func TestOpcodeNumOperands(t *testing.T) {
	require.Equal(t, 0, Input.NumOperands())
	require.Equal(t, 1, Neg.NumOperands())
	require.Equal(t, 2, Add.NumOperands())
	require.Equal(t, 3, If.NumOperands())
}
