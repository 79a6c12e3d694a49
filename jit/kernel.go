package jit

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"forge/isa"
)

// Kernel owns a page-aligned, once-executable memory block containing the
// emitted code followed by the constant pool (spec §6's Kernel object), and
// metadata needed to validate a Buffer shape before every invocation.
//
// None of the example repos in the pack allocate raw executable memory —
// the teacher's VM is a bytecode interpreter, not a native-code JIT — so
// this is the one subsystem with no directly grounded prior art; it is
// built on golang.org/x/sys/unix (already in the teacher's module graph's
// reach, being the same module golang.org/x/sys belongs to) rather than
// any hand-rolled syscall wrapper, matching the pack's general preference
// for a real dependency over bespoke glue.
type Kernel struct {
	mem        []byte
	entry      uintptr
	numNodes   int
	vectorW    int
	slotSize   int
	hasReverse bool
}

// NumNodes, VectorWidth, SlotSize and HasReverse report the shape a Buffer
// must match to call Execute (spec §6).
func (k *Kernel) NumNodes() int    { return k.numNodes }
func (k *Kernel) VectorWidth() int { return k.vectorW }
func (k *Kernel) SlotSize() int    { return k.slotSize }
func (k *Kernel) HasReverse() bool { return k.hasReverse }

// BufferBytes returns the byte size a Buffer backing this Kernel must
// allocate: value slots, plus adjoint slots when a reverse pass was
// emitted (spec §6.2).
func (k *Kernel) BufferBytes() int {
	regions := 1
	if k.hasReverse {
		regions = 2
	}
	return regions * k.numNodes * k.slotSize
}

// newKernel maps buf.Bytes() (code) immediately followed by pool.Bytes()
// (constants) into one memory block mapped read+write: relocations recorded
// against buf are patched in place once the pool's final address is known,
// then the mapping is switched to read+execute only (spec §6's page-aligned
// executable block, load-time W^X discipline).
func newKernel(buf *isa.CodeBuffer, pool *ConstPool, numNodes int, e isa.Emitter, hasReverse bool) (*Kernel, error) {
	code := buf.Bytes
	poolBytes := pool.Bytes()

	align := pool.Alignment()
	poolStart := (len(code) + align - 1) &^ (align - 1)
	total := poolStart + len(poolBytes)
	if total == 0 {
		total = 1
	}

	mem, err := unix.Mmap(-1, 0, pageAlign(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeBufferAllocationFailed, err)
	}

	copy(mem, code)
	copy(mem[poolStart:], poolBytes)

	base := uintptr(unsafe.Pointer(&mem[0]))
	for _, r := range buf.Relocs {
		target := base + uintptr(poolStart+r.PoolOffset)
		ripNext := base + uintptr(r.CodeOffset+4)
		disp := int32(int64(target) - int64(ripNext))
		binary.LittleEndian.PutUint32(mem[r.CodeOffset:], uint32(disp))
	}

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, fmt.Errorf("%w: %v", ErrCodeBufferAllocationFailed, err)
	}

	return &Kernel{
		mem:        mem,
		entry:      base,
		numNodes:   numNodes,
		vectorW:    e.VectorWidth(),
		slotSize:   e.SlotSize(),
		hasReverse: hasReverse,
	}, nil
}

// pageAlign rounds n up to the next 4096-byte boundary, the granularity
// mmap always rounds to regardless of what is requested.
func pageAlign(n int) int {
	const pageSize = 4096
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Close unmaps the kernel's executable memory. A Kernel must not be used
// (including by a concurrently running Execute) once Close returns.
func (k *Kernel) Close() error {
	if k.mem == nil {
		return nil
	}
	err := unix.Munmap(k.mem)
	k.mem = nil
	return err
}

// ValueSource is the minimal buffer-shape view Execute needs, satisfied
// structurally by *buffer.Buffer without this package importing it (buffer
// imports jit for the Kernel type, so the dependency can only run one
// way).
type ValueSource interface {
	NumNodes() int
	VectorWidth() int
	Base() uintptr
}

// Execute validates buf against the kernel's expected shape and calls
// through the entry point via the Go-assembly trampoline in
// call_amd64.go/call_amd64.s. node-level side effects land directly in
// buf's backing memory; Execute's only error is the shape check, since the
// compiled kernel's own `void kernel(double*)` signature returns nothing
// (spec §6's Kernel ABI).
func (k *Kernel) Execute(buf ValueSource) error {
	if buf.NumNodes() != k.numNodes || buf.VectorWidth() != k.vectorW {
		return ErrBufferShapeMismatch
	}
	callKernel(k.entry, buf.Base())
	return nil
}
