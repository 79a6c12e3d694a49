// Package trace implements the tracing-scalar façade described in spec §6:
// fdouble, fbool and fint behave like ordinary numbers but, while a
// recorder.Recorder is active on the calling thread, also append nodes to
// its Graph. Passive values (no active recorder, or values that never
// touched an Input) compute eagerly and add no operation node; while a
// recorder is active, though, each operand of an operation is materialised
// first (a Constant node for a literal), even when the result is passive.
package trace

import (
	"math"

	"forge/graph"
	"forge/recorder"
)

// fdouble is a real-valued tracing scalar (spec §6). The zero value is the
// passive double 0.0.
type fdouble struct {
	value    float64
	id       graph.NodeId
	hasNode  bool
	isActive bool
	needsGrad bool
}

// noNode is the sentinel id meaning "no node materialised yet".
const noNode graph.NodeId = ^graph.NodeId(0)

// Const returns a passive tracing scalar wrapping a literal. Its node is
// materialised lazily, the first time it participates in a recorded
// operation (spec §4.1).
func Const(v float64) fdouble {
	return fdouble{value: v, id: noNode}
}

// Input marks a new Input node on the currently active recorder, seeded
// with eager value v, and returns a tracing scalar wired to it. Requires an
// active recorder on the calling thread.
func Input(v float64) (fdouble, error) {
	r := recorder.Active()
	if r == nil {
		return fdouble{}, graph.ErrRecordingNotActive
	}
	id := r.Graph().AddInput()
	return fdouble{value: v, id: id, hasNode: true, isActive: true}, nil
}

// DiffInput is Input's counterpart seeded for gradient computation.
func DiffInput(v float64) (fdouble, error) {
	r := recorder.Active()
	if r == nil {
		return fdouble{}, graph.ErrRecordingNotActive
	}
	id := r.Graph().AddDiffInput()
	return fdouble{value: v, id: id, hasNode: true, isActive: true, needsGrad: true}, nil
}

// Value returns the eagerly-computed passive value. Spec §9 requires this
// to stay correct even while recording, so every operator below computes
// it unconditionally.
func (x fdouble) Value() float64 { return x.value }

// nodeID materialises x's node against the active recorder r if needed
// (lazy constant materialisation, spec §4.1) and returns it.
func (x *fdouble) nodeID(r *recorder.Recorder) graph.NodeId {
	if x.hasNode {
		return x.id
	}
	id := r.Graph().AddConstant(x.value)
	x.id = id
	x.hasNode = true
	return id
}

// binary applies a real binary opcode, appending a node only if recording
// is active. The passive value is always computed with eager.
func binary(op graph.Opcode, a, b fdouble, eager func(x, y float64) float64) fdouble {
	result := fdouble{value: eager(a.value, b.value), id: noNode}
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
		// Passive subgraph: no IR append, matches "passive values may
		// short-circuit" (GLOSSARY).
		return result
	}
	id := r.Graph().AddNode(graph.Node{
		Op: op, A: aID, B: bID, C: noOp(),
		IsActive: result.isActive, NeedsGradient: result.needsGrad,
	})
	result.id = id
	result.hasNode = true
	return result
}

func unary(op graph.Opcode, a fdouble, eager func(x float64) float64) fdouble {
	result := fdouble{value: eager(a.value), id: noNode}
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
	id := r.Graph().AddNode(graph.Node{
		Op: op, A: aID, B: noOp(), C: noOp(),
		IsActive: result.isActive, NeedsGradient: result.needsGrad,
	})
	result.id = id
	result.hasNode = true
	return result
}

// noOp returns the "unused operand" sentinel used by graph.Node's A/B/C.
// graph package keeps its own sentinel private, so this mirrors it; values
// returned here are never read for opcodes that don't use the slot.
func noOp() graph.NodeId { return ^graph.NodeId(0) }

func (a fdouble) Add(b fdouble) fdouble { return binary(graph.Add, a, b, func(x, y float64) float64 { return x + y }) }
func (a fdouble) Sub(b fdouble) fdouble { return binary(graph.Sub, a, b, func(x, y float64) float64 { return x - y }) }
func (a fdouble) Mul(b fdouble) fdouble { return binary(graph.Mul, a, b, func(x, y float64) float64 { return x * y }) }
func (a fdouble) Div(b fdouble) fdouble { return binary(graph.Div, a, b, func(x, y float64) float64 { return x / y }) }
func (a fdouble) Mod(b fdouble) fdouble {
	return binary(graph.Mod, a, b, func(x, y float64) float64 { return x - y*math.Trunc(x/y) })
}
func (a fdouble) Min(b fdouble) fdouble { return binary(graph.Min, a, b, math.Min) }
func (a fdouble) Max(b fdouble) fdouble { return binary(graph.Max, a, b, math.Max) }
func (a fdouble) Pow(b fdouble) fdouble { return binary(graph.Pow, a, b, math.Pow) }

func (a fdouble) Neg() fdouble    { return unary(graph.Neg, a, func(x float64) float64 { return -x }) }
func (a fdouble) Abs() fdouble    { return unary(graph.Abs, a, math.Abs) }
func (a fdouble) Square() fdouble { return unary(graph.Square, a, func(x float64) float64 { return x * x }) }
func (a fdouble) Recip() fdouble  { return unary(graph.Recip, a, func(x float64) float64 { return 1 / x }) }
func (a fdouble) Exp() fdouble    { return unary(graph.Exp, a, math.Exp) }
func (a fdouble) Log() fdouble    { return unary(graph.Log, a, math.Log) }
func (a fdouble) Sqrt() fdouble   { return unary(graph.Sqrt, a, math.Sqrt) }
func (a fdouble) Sin() fdouble    { return unary(graph.Sin, a, math.Sin) }
func (a fdouble) Cos() fdouble    { return unary(graph.Cos, a, math.Cos) }
func (a fdouble) Tan() fdouble    { return unary(graph.Tan, a, math.Tan) }

func compare(op graph.Opcode, a, b fdouble, eager func(x, y float64) bool) fbool {
	passive := eager(a.value, b.value)
	result := fbool{value: passive, id: noNode}
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
	id := r.Graph().AddNode(graph.Node{
		Op: op, A: aID, B: bID, C: noOp(),
		IsActive: result.isActive, NeedsGradient: result.needsGrad,
	})
	result.id = id
	result.hasNode = true
	return result
}

func (a fdouble) LT(b fdouble) fbool { return compare(graph.CmpLT, a, b, func(x, y float64) bool { return x < y }) }
func (a fdouble) LE(b fdouble) fbool { return compare(graph.CmpLE, a, b, func(x, y float64) bool { return x <= y }) }
func (a fdouble) GT(b fdouble) fbool { return compare(graph.CmpGT, a, b, func(x, y float64) bool { return x > y }) }
func (a fdouble) GE(b fdouble) fbool { return compare(graph.CmpGE, a, b, func(x, y float64) bool { return x >= y }) }
func (a fdouble) EQ(b fdouble) fbool { return compare(graph.CmpEQ, a, b, func(x, y float64) bool { return x == y }) }
func (a fdouble) NE(b fdouble) fbool { return compare(graph.CmpNE, a, b, func(x, y float64) bool { return x != y }) }

// MarkInput promotes x — typically a passive value built with Const — to a
// recorder Input on the active recorder, preserving its eager value. This
// is spec §4.1's markInput; Input() above is the common shorthand when the
// value has no prior use as a tracing scalar.
func MarkInput(x fdouble) (fdouble, error) {
	r := recorder.Active()
	if r == nil {
		return fdouble{}, graph.ErrRecordingNotActive
	}
	id := r.Graph().AddInput()
	return fdouble{value: x.value, id: id, hasNode: true, isActive: true}, nil
}

// MarkInputAndDiff is the diff-seeding counterpart of MarkInput.
func MarkInputAndDiff(x fdouble) (fdouble, error) {
	r := recorder.Active()
	if r == nil {
		return fdouble{}, graph.ErrRecordingNotActive
	}
	id := r.Graph().AddDiffInput()
	return fdouble{value: x.value, id: id, hasNode: true, isActive: true, needsGrad: true}, nil
}

// MarkOutput records x's node as a Graph output, materialising a constant
// node first if x never touched the IR. Marking a passive value as output
// is allowed (spec §4.1) but yields a zero gradient, since no node depends
// on any Input.
func MarkOutput(x fdouble) error {
	r := recorder.Active()
	if r == nil {
		return graph.ErrRecordingNotActive
	}
	if !x.isActive {
		warn("marking a passive value as output; its gradient will be zero")
	}
	id := x.nodeID(r)
	r.Graph().MarkOutput(id)
	return nil
}

// NodeId exposes the underlying node id, materialising a constant node if
// none exists yet. Used by buffer-facing code (e.g. reading a gradient)
// without re-exporting recorder internals.
func (x *fdouble) NodeId(r *recorder.Recorder) graph.NodeId { return x.nodeID(r) }

// IsActive reports whether x depends transitively on an Input.
func (x fdouble) IsActive() bool { return x.isActive }
