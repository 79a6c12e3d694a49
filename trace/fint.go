package trace

import (
	"forge/graph"
	"forge/recorder"
)

// fint is a 64-bit-signed-semantics integer tracing scalar (spec §6),
// represented in the IR and value buffer as a truncated float64 (spec §3).
type fint struct {
	value     int64
	id        graph.NodeId
	hasNode   bool
	isActive  bool
	needsGrad bool
}

// IntConst returns a passive integer tracing scalar.
func IntConst(v int64) fint {
	return fint{value: v, id: noNode}
}

func (x fint) Value() int64 { return x.value }

func (x *fint) nodeID(r *recorder.Recorder) graph.NodeId {
	if x.hasNode {
		return x.id
	}
	id := r.Graph().AddNode(graph.Node{Op: graph.IntConstant, A: noOp(), B: noOp(), C: noOp(), Imm: float64(x.value)})
	x.id = id
	x.hasNode = true
	return id
}

func intBinary(op graph.Opcode, a, b fint, eager func(x, y int64) int64) fint {
	result := fint{value: eager(a.value, b.value), id: noNode}
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

func (a fint) Add(b fint) fint { return intBinary(graph.IntAdd, a, b, func(x, y int64) int64 { return x + y }) }
func (a fint) Sub(b fint) fint { return intBinary(graph.IntSub, a, b, func(x, y int64) int64 { return x - y }) }
func (a fint) Mul(b fint) fint { return intBinary(graph.IntMul, a, b, func(x, y int64) int64 { return x * y }) }
func (a fint) Div(b fint) fint { return intBinary(graph.IntDiv, a, b, func(x, y int64) int64 { return x / y }) }
func (a fint) Mod(b fint) fint { return intBinary(graph.IntMod, a, b, func(x, y int64) int64 { return x % y }) }

func (a fint) Neg() fint {
	result := fint{value: -a.value, id: noNode}
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
	id := r.Graph().AddNode(graph.Node{Op: graph.IntNeg, A: aID, B: noOp(), C: noOp(), IsActive: true, NeedsGradient: result.needsGrad})
	result.id = id
	result.hasNode = true
	return result
}

func intCompare(op graph.Opcode, a, b fint, eager func(x, y int64) bool) fbool {
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

func (a fint) LT(b fint) fbool { return intCompare(graph.IntCmpLT, a, b, func(x, y int64) bool { return x < y }) }
func (a fint) LE(b fint) fbool { return intCompare(graph.IntCmpLE, a, b, func(x, y int64) bool { return x <= y }) }
func (a fint) GT(b fint) fbool { return intCompare(graph.IntCmpGT, a, b, func(x, y int64) bool { return x > y }) }
func (a fint) GE(b fint) fbool { return intCompare(graph.IntCmpGE, a, b, func(x, y int64) bool { return x >= y }) }
func (a fint) EQ(b fint) fbool { return intCompare(graph.IntCmpEQ, a, b, func(x, y int64) bool { return x == y }) }
func (a fint) NE(b fint) fbool { return intCompare(graph.IntCmpNE, a, b, func(x, y int64) bool { return x != y }) }

// IntIf is fint's counterpart of fbool.If: Go has no method-return-type
// overloading, so the fdouble and fint selects are named distinctly while
// matching the same `cond.If(t, f)` shape the spec's fbool table describes.
func (cond fbool) IntIf(trueVal, falseVal fint) fint {
	var passive int64
	if cond.value {
		passive = trueVal.value
	} else {
		passive = falseVal.value
	}
	result := fint{value: passive, id: noNode}
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
	id := r.Graph().AddNode(graph.Node{Op: graph.IntIf, A: condID, B: tID, C: fID, IsActive: true, NeedsGradient: result.needsGrad})
	result.id = id
	result.hasNode = true
	return result
}

// Index lowers array[i] to a chain of If(i == k) ? array[k] : ... nodes at
// recording time, bottoming out at array[0] (spec §4.1). No ArrayIndex
// node is ever emitted by this path — that opcode stays reserved per
// spec §9 open question 4.
func (i fint) Index(array []fdouble) (fdouble, error) {
	if len(array) == 0 {
		return fdouble{}, graph.ErrEmptyArrayIndex
	}
	result := array[0]
	for k := 1; k < len(array); k++ {
		cond := i.EQ(IntConst(int64(k)))
		result = cond.If(array[k], result)
	}
	return result, nil
}
