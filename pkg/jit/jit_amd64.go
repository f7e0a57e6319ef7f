//go:build amd64

package jit

// Codegen is the amd64 regalloc.Backend: it drives an Assembler to emit
// real x86-64 bytes. The guest register file (Cpu.X, the first field of
// rv32.Cpu) is addressed relative to a pinned host register holding &Cpu
// (§4.G "a pinned Cpu pointer register"); we reserve R15 for it, leaving
// host register ids 0-14 (rax,rcx,rdx,rbx,rsp,rbp,rsi,rdi,r8-r14) available
// to the allocator.
//
// This is a deliberately small subset of amd64: guest-register load/store,
// zeroing, add-immediate, register add, and ret, which is what
// compiler.go's emitNative uses for OpADDI/OpADD/OpNOP. Instructions without
// a native emitter contribute no bytes; no call into the interpreter is
// emitted for them, and the block runs through the Go closure on
// Block.NativeFn instead.
type Codegen struct {
	asm     *Assembler
	cpuReg  int // host register pinned to &Cpu, never allocated (R15)
}

const pinnedHostReg = 15

// NewCodegen returns a Codegen writing into asm.
func NewCodegen(asm *Assembler) *Codegen {
	return &Codegen{asm: asm, cpuReg: pinnedHostReg}
}

// Supported reports whether this host has a native backend.
func Supported() bool { return true }

// xOffset is the byte offset of Cpu.X[guest] within rv32.Cpu (X is the
// first field, 4 bytes per uint32).
func xOffset(guest int) int32 { return int32(guest) * 4 }

func modrm(mod, reg, rm byte) byte { return mod<<6 | (reg&7)<<3 | (rm & 7) }

func rex(w, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// EmitLoad emits `mov host32, [cpuReg + guest*4]`.
func (c *Codegen) EmitLoad(host int, guest int) {
	disp := xOffset(guest)
	c.asm.emit(rex(false, host >= 8, false, c.cpuReg >= 8))
	c.asm.emit(0x8b) // MOV r32, r/m32
	c.emitMemOperand(host, disp)
}

// EmitStore emits `mov [cpuReg + guest*4], host32`.
func (c *Codegen) EmitStore(host int, guest int) {
	disp := xOffset(guest)
	c.asm.emit(rex(false, host >= 8, false, c.cpuReg >= 8))
	c.asm.emit(0x89) // MOV r/m32, r32
	c.emitMemOperand(host, disp)
}

// EmitZero emits `xor host32, host32`.
func (c *Codegen) EmitZero(host int) {
	if host >= 8 {
		c.asm.emit(rex(false, true, false, true))
	}
	c.asm.emit(0x31, modrm(3, byte(host), byte(host)))
}

// emitMemOperand writes the ModRM/SIB/disp32 bytes for [cpuReg + disp],
// always using a disp32 encoding for simplicity (no disp8 short form).
func (c *Codegen) emitMemOperand(reg int, disp int32) {
	base := byte(c.cpuReg & 7)
	c.asm.emit(modrm(2, byte(reg), base))
	if base == 4 { // RSP/R12 require a SIB byte
		c.asm.emit(0x24)
	}
	c.asm.emit(byte(disp), byte(disp>>8), byte(disp>>16), byte(disp>>24))
}

// EmitAddImm32 emits `add host32, imm32`.
func (c *Codegen) EmitAddImm32(host int, imm int32) {
	if host >= 8 {
		c.asm.emit(rex(false, false, false, true))
	}
	c.asm.emit(0x81, modrm(3, 0, byte(host)))
	c.asm.emit(byte(imm), byte(imm>>8), byte(imm>>16), byte(imm>>24))
}

// EmitAddReg emits `add dst32, src32`.
func (c *Codegen) EmitAddReg(dst, src int) {
	c.asm.emit(rex(false, src >= 8, false, dst >= 8))
	c.asm.emit(0x01, modrm(3, byte(src), byte(dst)))
}

// EmitRet emits a bare `ret`, the shared block-exit trailer before
// returning control to the driver's step loop.
func (c *Codegen) EmitRet() {
	c.asm.emit(0xc3)
}
