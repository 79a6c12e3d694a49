package jit

import "errors"

// ErrBufferShapeMismatch is returned by Kernel.Execute when a buffer's node
// count or vector width differs from the kernel it is being run against
// (spec §7).
var ErrBufferShapeMismatch = errors.New("jit: buffer shape does not match kernel")

// ErrCodeBufferAllocationFailed wraps an mmap/mprotect failure while
// allocating or finalising a kernel's executable memory (spec §7).
var ErrCodeBufferAllocationFailed = errors.New("jit: executable memory allocation failed")

// ErrUnsupportedInstructionSet is returned by Compile for an
// isa.Kind this package does not know how to select an Emitter for.
var ErrUnsupportedInstructionSet = errors.New("jit: unsupported instruction set")
