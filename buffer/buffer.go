// Package buffer implements the value buffer from spec §6.2: the flat
// region of value (and, when a reverse pass is present, adjoint) slots a
// compiled Kernel reads and writes directly as native machine code.
package buffer

import (
	"unsafe"

	"forge/graph"
	"forge/jit"
)

// Buffer is a Kernel's backing store: numNodes*vectorWidth float64 value
// slots, followed by an equal-sized adjoint region when the Kernel that
// sized this Buffer carries a reverse pass (spec §6.2). Buffer implements
// jit.ValueSource structurally so package jit never imports package
// buffer — the dependency runs the other way.
type Buffer struct {
	data        []float64
	numNodes    int
	vectorWidth int
	hasGrad     bool
}

var _ jit.ValueSource = (*Buffer)(nil)

// New sizes a Buffer against g (for node count) and k (for vector width
// and whether a reverse pass was emitted), per spec §6.2's "factory that
// inspects the Graph ... and Kernel". The returned Buffer's contents are
// zeroed.
func New(g *graph.Graph, k *jit.Kernel) *Buffer {
	numNodes := g.Size()
	width := k.VectorWidth()
	regions := 1
	if k.HasReverse() {
		regions = 2
	}
	return &Buffer{
		data:        make([]float64, regions*numNodes*width),
		numNodes:    numNodes,
		vectorWidth: width,
		hasGrad:     k.HasReverse(),
	}
}

// NumNodes, VectorWidth and Base satisfy jit.ValueSource.
func (b *Buffer) NumNodes() int    { return b.numNodes }
func (b *Buffer) VectorWidth() int { return b.vectorWidth }
func (b *Buffer) Base() uintptr    { return uintptr(unsafe.Pointer(&b.data[0])) }

func (b *Buffer) valueOffset(id graph.NodeId) int { return int(id) * b.vectorWidth }
func (b *Buffer) adjointOffset(id graph.NodeId) int {
	return (b.numNodes + int(id)) * b.vectorWidth
}

func (b *Buffer) checkNode(id graph.NodeId) error {
	if int(id) < 0 || int(id) >= b.numNodes {
		return ErrNodeOutOfRange
	}
	return nil
}

// SetValue writes v into every lane of id's value slot (a no-op broadcast
// for scalar kernels, and the natural way to feed a uniform value into an
// AVX2 kernel's 4-wide lanes).
func (b *Buffer) SetValue(id graph.NodeId, v float64) error {
	if err := b.checkNode(id); err != nil {
		return err
	}
	off := b.valueOffset(id)
	for i := 0; i < b.vectorWidth; i++ {
		b.data[off+i] = v
	}
	return nil
}

// GetValue reads lane 0 of id's value slot.
func (b *Buffer) GetValue(id graph.NodeId) (float64, error) {
	if err := b.checkNode(id); err != nil {
		return 0, err
	}
	return b.data[b.valueOffset(id)], nil
}

// SetLanes writes lanes individually into id's value slot; len(lanes) must
// equal VectorWidth().
func (b *Buffer) SetLanes(id graph.NodeId, lanes []float64) error {
	if err := b.checkNode(id); err != nil {
		return err
	}
	if len(lanes) != b.vectorWidth {
		return ErrLaneCountMismatch
	}
	copy(b.data[b.valueOffset(id):], lanes)
	return nil
}

// GetLanes copies id's value slot's lanes into out, which must have length
// VectorWidth().
func (b *Buffer) GetLanes(id graph.NodeId, out []float64) error {
	if err := b.checkNode(id); err != nil {
		return err
	}
	if len(out) != b.vectorWidth {
		return ErrLaneCountMismatch
	}
	copy(out, b.data[b.valueOffset(id):b.valueOffset(id)+b.vectorWidth])
	return nil
}

// SetGradient seeds every lane of id's adjoint slot, mirroring SetValue.
// Mostly useful for tests that want a non-standard seed; the reverse
// emitter itself always seeds marked outputs to 1.0.
func (b *Buffer) SetGradient(id graph.NodeId, v float64) error {
	if !b.hasGrad {
		return ErrNoReversePass
	}
	if err := b.checkNode(id); err != nil {
		return err
	}
	off := b.adjointOffset(id)
	for i := 0; i < b.vectorWidth; i++ {
		b.data[off+i] = v
	}
	return nil
}

// GetGradient reads lane 0 of id's adjoint slot: the accumulated
// derivative of the differentiated output(s) with respect to node id.
func (b *Buffer) GetGradient(id graph.NodeId) (float64, error) {
	if !b.hasGrad {
		return 0, ErrNoReversePass
	}
	if err := b.checkNode(id); err != nil {
		return 0, err
	}
	return b.data[b.adjointOffset(id)], nil
}

// GetGradientLanes copies id's adjoint slot's lanes into out.
func (b *Buffer) GetGradientLanes(id graph.NodeId, out []float64) error {
	if !b.hasGrad {
		return ErrNoReversePass
	}
	if err := b.checkNode(id); err != nil {
		return err
	}
	if len(out) != b.vectorWidth {
		return ErrLaneCountMismatch
	}
	off := b.adjointOffset(id)
	copy(out, b.data[off:off+b.vectorWidth])
	return nil
}

// ClearGradients zeros the entire adjoint region, per spec §6.2. Callers
// are expected to call this before every Execute of a kernel carrying a
// reverse pass whose previous run's adjoints should not bleed into the
// next (apart from storing the 1.0 seed into each differentiated output's
// slot, the reverse emitter only ever adds into adjoint slots, it never
// zeroes them).
func (b *Buffer) ClearGradients() error {
	if !b.hasGrad {
		return ErrNoReversePass
	}
	region := b.data[b.numNodes*b.vectorWidth:]
	for i := range region {
		region[i] = 0
	}
	return nil
}
