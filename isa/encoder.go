package isa

import "encoding/binary"

// CodeBuffer accumulates raw instruction bytes for one kernel, plus a list
// of RIP-relative relocations to patch once the constant pool's final
// address is known (jit.Kernel does the patching once the code block is
// mapped). This mirrors the teacher's own uint32ToBytes/uint32FromBytes
// byte-plumbing style from vm.go, just building a byte stream forward
// instead of decoding a fixed-width stack-VM instruction.
type CodeBuffer struct {
	Bytes  []byte
	Relocs []Reloc
}

// Reloc records a 4-byte RIP-relative displacement field (at CodeOffset)
// that must be patched to point PoolOffset bytes into the constant pool
// once both the code block and pool have final addresses.
type Reloc struct {
	CodeOffset int
	PoolOffset int
}

// NewCodeBuffer returns an empty CodeBuffer with a little headroom.
func NewCodeBuffer() *CodeBuffer {
	return &CodeBuffer{Bytes: make([]byte, 0, 256)}
}

// Len returns the number of bytes emitted so far.
func (c *CodeBuffer) Len() int { return len(c.Bytes) }

func (c *CodeBuffer) emit(b ...byte) {
	c.Bytes = append(c.Bytes, b...)
}

func (c *CodeBuffer) emitU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	c.Bytes = append(c.Bytes, tmp[:]...)
}

// emitRIPDisp32Placeholder appends a 4-byte zero placeholder for a
// RIP-relative operand and records a Reloc pointing at poolOffset so the
// kernel can patch it once addresses are final.
func (c *CodeBuffer) emitRIPDisp32Placeholder(poolOffset int) {
	off := len(c.Bytes)
	c.emitU32(0)
	c.Relocs = append(c.Relocs, Reloc{CodeOffset: off, PoolOffset: poolOffset})
}

// reg is an abstract SIMD register index 0..15 (XMM0..15 or YMM0..15
// depending on which emitter is in use).
type reg = int

// modRM packs the standard ModRM byte: mod (2 bits), reg (3 bits, low
// bits only — the extension bit lives in REX.R/VEX.R), rm (3 bits).
func modRM(mod, regField, rm byte) byte {
	return (mod << 6) | ((regField & 7) << 3) | (rm & 7)
}

// rexPrefix builds a legacy REX prefix. w selects 64-bit operand size; r,
// x, b are the extension bits for ModRM.reg, SIB.index, and ModRM.rm/SIB.base
// respectively. Needed whenever an operand register is XMM8..XMM15.
func rexPrefix(w, r, x, b bool) byte {
	rex := byte(0x40)
	if w {
		rex |= 0x08
	}
	if r {
		rex |= 0x04
	}
	if x {
		rex |= 0x02
	}
	if b {
		rex |= 0x01
	}
	return rex
}

func extBit(r reg) bool { return r >= 8 }

// vex3 builds a 3-byte VEX prefix (C4 byte1 byte2) per the Intel manual's
// VEX encoding table, used for every AVX2 instruction this package emits.
// mmmmm selects the opcode map (1 = 0F, 2 = 0F38, 3 = 0F3A); pp selects the
// implied mandatory prefix (0 = none, 1 = 66, 2 = F3, 3 = F2); l selects
// 256-bit (YMM) vector length when true, 128-bit (XMM) otherwise.
func vex3(rExt, xExt, bExt bool, mmmmm byte, w bool, vvvv reg, l bool, pp byte) []byte {
	b1 := byte(0)
	if !rExt {
		b1 |= 0x80
	}
	if !xExt {
		b1 |= 0x40
	}
	if !bExt {
		b1 |= 0x20
	}
	b1 |= mmmmm & 0x1F

	b2 := byte(0)
	if w {
		b2 |= 0x80
	}
	b2 |= (byte(^vvvv) & 0x0F) << 3
	if l {
		b2 |= 0x04
	}
	b2 |= pp & 0x03

	return []byte{0xC4, b1, b2}
}

const (
	mmap0F   = 1
	mmap0F38 = 2
	mmap0F3A = 3

	ppNone = 0
	pp66   = 1
	ppF3   = 2
	ppF2   = 3
)

// emitLegacy2 emits a two-byte-opcode (0F xx) legacy SSE instruction with
// an optional mandatory prefix byte (0 to omit), REX if either register
// needs the extension bit, and a register-direct ModRM (mod=11).
func (c *CodeBuffer) emitLegacy2(mandatory byte, opcode byte, dst, src reg) {
	if mandatory != 0 {
		c.emit(mandatory)
	}
	if extBit(dst) || extBit(src) {
		c.emit(rexPrefix(false, extBit(dst), false, extBit(src)))
	}
	c.emit(0x0F, opcode, modRM(3, byte(dst&7), byte(src&7)))
}

// EmitVexRR emits a VEX-prefixed instruction with a register-direct ModRM
// (reg, rm both direct registers) and an optional vvvv second source.
func (c *CodeBuffer) EmitVexRR(mmmmm byte, pp byte, w bool, l bool, opcode byte, dst, vvvvReg, src reg) {
	c.emit(vex3(extBit(dst), false, extBit(src), mmmmm, w, vvvvReg, l, pp)...)
	c.emit(opcode, modRM(3, byte(dst&7), byte(src&7)))
}

// EmitVexRM emits a VEX-prefixed instruction whose rm operand is a
// RIP-relative memory reference into the constant pool (mod=00, rm=101).
func (c *CodeBuffer) EmitVexRM(mmmmm byte, pp byte, w bool, l bool, opcode byte, dst reg, vvvvReg reg, poolOffset int) {
	c.emit(vex3(extBit(dst), false, false, mmmmm, w, vvvvReg, l, pp)...)
	c.emit(opcode, modRM(0, byte(dst&7), 5))
	c.emitRIPDisp32Placeholder(poolOffset)
}

// EmitLegacyRM emits a legacy two-byte-opcode SSE instruction whose rm
// operand is RIP-relative into the constant pool.
func (c *CodeBuffer) EmitLegacyRM(mandatory byte, opcode byte, dst reg, poolOffset int) {
	if mandatory != 0 {
		c.emit(mandatory)
	}
	if extBit(dst) {
		c.emit(rexPrefix(false, extBit(dst), false, false))
	}
	c.emit(0x0F, opcode, modRM(0, byte(dst&7), 5))
	c.emitRIPDisp32Placeholder(poolOffset)
}

// EmitLegacyRR emits a legacy two-byte-opcode SSE instruction, register
// direct.
func (c *CodeBuffer) EmitLegacyRR(mandatory byte, opcode byte, dst, src reg) {
	c.emitLegacy2(mandatory, opcode, dst, src)
}

// EmitLegacyMemDisp emits a legacy two-byte-opcode SSE instruction whose rm
// operand is [baseReg + disp32] — used for buffer loads/stores, where
// baseReg is the kernel's fixed buffer-base GPR (rdi on SysV).
func (c *CodeBuffer) EmitLegacyMemDisp(mandatory byte, opcode byte, xmmReg reg, baseGPR int, disp int32) {
	if mandatory != 0 {
		c.emit(mandatory)
	}
	if extBit(xmmReg) || baseGPR >= 8 {
		c.emit(rexPrefix(false, extBit(xmmReg), false, baseGPR >= 8))
	}
	c.emit(0x0F, opcode)
	if baseGPR&7 == 4 { // RSP/R12 require a SIB byte
		c.emit(modRM(2, byte(xmmReg&7), 4), sib(0, 4, byte(baseGPR&7)))
	} else {
		c.emit(modRM(2, byte(xmmReg&7), byte(baseGPR&7)))
	}
	c.emit(byte(disp), byte(disp>>8), byte(disp>>16), byte(disp>>24))
}

// EmitVexMemDisp is EmitLegacyMemDisp's VEX counterpart for AVX2 loads and
// stores against [baseReg + disp32].
func (c *CodeBuffer) EmitVexMemDisp(mmmmm byte, pp byte, w bool, l bool, opcode byte, ymmReg reg, vvvvReg reg, baseGPR int, disp int32) {
	c.emit(vex3(extBit(ymmReg), false, baseGPR >= 8, mmmmm, w, vvvvReg, l, pp)...)
	if baseGPR&7 == 4 {
		c.emit(opcode, modRM(2, byte(ymmReg&7), 4), sib(0, 4, byte(baseGPR&7)))
	} else {
		c.emit(opcode, modRM(2, byte(ymmReg&7), byte(baseGPR&7)))
	}
	c.emit(byte(disp), byte(disp>>8), byte(disp>>16), byte(disp>>24))
}

func sib(scale, index, base byte) byte {
	return (scale << 6) | ((index & 7) << 3) | (base & 7)
}
