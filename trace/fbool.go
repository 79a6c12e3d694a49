package trace

import (
	"forge/graph"
	"forge/recorder"
)

// fbool is a boolean tracing scalar (spec §6). Represented in the IR (and
// ultimately the value buffer) as a real in {0.0, 1.0} per spec §4.5.
type fbool struct {
	value     bool
	id        graph.NodeId
	hasNode   bool
	isActive  bool
	needsGrad bool
}

// BoolConst returns a passive boolean tracing scalar.
func BoolConst(v bool) fbool {
	return fbool{value: v, id: noNode}
}

func (x fbool) Value() bool { return x.value }

func (x *fbool) nodeID(r *recorder.Recorder) graph.NodeId {
	if x.hasNode {
		return x.id
	}
	imm := 0.0
	if x.value {
		imm = 1.0
	}
	id := r.Graph().AddNode(graph.Node{Op: graph.BoolConstant, A: noOp(), B: noOp(), C: noOp(), Imm: imm})
	x.id = id
	x.hasNode = true
	return id
}

func boolBinary(op graph.Opcode, a, b fbool, eager func(x, y bool) bool) fbool {
	result := fbool{value: eager(a.value, b.value), id: noNode}
	r := recorder.Active()
	if r == nil {
		return result
	}
	aID := a.nodeID(r)
	bID := b.nodeID(r)
	active := a.isActive || b.isActive
	result.isActive = active
	result.needsGrad = a.needsGrad || b.needsGrad
	if !active {
		return result
	}
	id := r.Graph().AddNode(graph.Node{Op: op, A: aID, B: bID, C: noOp(), IsActive: true, NeedsGradient: result.needsGrad})
	result.id = id
	result.hasNode = true
	return result
}

func (a fbool) And(b fbool) fbool { return boolBinary(graph.BoolAnd, a, b, func(x, y bool) bool { return x && y }) }
func (a fbool) Or(b fbool) fbool  { return boolBinary(graph.BoolOr, a, b, func(x, y bool) bool { return x || y }) }
func (a fbool) EQ(b fbool) fbool  { return boolBinary(graph.BoolEq, a, b, func(x, y bool) bool { return x == y }) }
func (a fbool) NE(b fbool) fbool  { return boolBinary(graph.BoolNe, a, b, func(x, y bool) bool { return x != y }) }

func (a fbool) Not() fbool {
	result := fbool{value: !a.value, id: noNode}
	r := recorder.Active()
	if r == nil {
		return result
	}
	aID := a.nodeID(r)
	result.isActive = a.isActive
	result.needsGrad = a.needsGrad
	if !a.isActive {
		return result
	}
	id := r.Graph().AddNode(graph.Node{Op: graph.BoolNot, A: aID, B: noOp(), C: noOp(), IsActive: true, NeedsGradient: result.needsGrad})
	result.id = id
	result.hasNode = true
	return result
}

// If selects trueVal when cond is true, falseVal otherwise. Per spec §4.1,
// this is the only legal way to branch on an active boolean: a direct
// conversion of an active fbool to a native Go bool (the `Value` method
// above) would silently desynchronize the recorded graph from the eager
// computation if used in a native `if`, so recorded control flow must
// always go through If.
func (cond fbool) If(trueVal, falseVal fdouble) fdouble {
	var passive float64
	if cond.value {
		passive = trueVal.value
	} else {
		passive = falseVal.value
	}
	result := fdouble{value: passive, id: noNode}
	r := recorder.Active()
	if r == nil {
		return result
	}
	condID := cond.nodeID(r)
	tID := trueVal.nodeID(r)
	fID := falseVal.nodeID(r)
	active := cond.isActive || trueVal.isActive || falseVal.isActive
	result.isActive = active
	result.needsGrad = cond.needsGrad || trueVal.needsGrad || falseVal.needsGrad
	if !active {
		return result
	}
	id := r.Graph().AddNode(graph.Node{Op: graph.If, A: condID, B: tID, C: fID, IsActive: true, NeedsGradient: result.needsGrad})
	result.id = id
	result.hasNode = true
	return result
}

// NativeBool converts x to a plain Go bool for use in a native `if`.
// Per spec §4.1/§7, this fails loudly (ErrActiveBoolInBranch) when x is
// active while a recorder is active on this thread — the only legal way to
// branch on an active value is the explicit If operator above.
func (x fbool) NativeBool() (bool, error) {
	if x.isActive && recorder.Active() != nil {
		return false, graph.ErrActiveBoolInBranch
	}
	return x.value, nil
}
