//go:build amd64

package jit

// callKernel invokes the JIT'd machine code at entry, passing bufBase as
// the single SysV argument (rdi) the emitted kernel expects per spec §6's
// `void kernel(double* buffer)` ABI. Implemented in call_amd64.s: Go has no
// cgo-free way to call through a raw function pointer with a non-Go calling
// convention, so this is a small hand-written trampoline rather than
// anything grounded in the example pack (no repo in it calls into
// JIT-generated code).
func callKernel(entry, bufBase uintptr)
