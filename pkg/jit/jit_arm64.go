//go:build arm64

package jit

// Codegen is the arm64 regalloc.Backend. X28 is pinned to &Cpu (callee-saved,
// left alone by the Go runtime's use of g/R28... note this core never calls
// back into cgo/Go from native code, so there is no register-convention
// conflict to resolve). Host register ids 0-27 (x0-x27, skipping the link
// register and stack pointer) are available to the allocator.
type Codegen struct {
	asm    *Assembler
	cpuReg int
}

const pinnedHostReg = 28

// NewCodegen returns a Codegen writing into asm.
func NewCodegen(asm *Assembler) *Codegen {
	return &Codegen{asm: asm, cpuReg: pinnedHostReg}
}

// Supported reports whether this host has a native backend.
func Supported() bool { return true }

func xOffset(guest int) uint32 { return uint32(guest) * 4 }

func putLE32(asm *Assembler, w uint32) {
	asm.emit(byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
}

// EmitLoad emits `ldr wHost, [xCpu, #guest*4]` (unsigned immediate offset
// form, guest*4 always fits the 12-bit scaled-immediate range for the 32
// guest registers we address).
func (c *Codegen) EmitLoad(host int, guest int) {
	imm12 := xOffset(guest) / 4
	w := uint32(0xB9400000) | (imm12 << 10) | (uint32(c.cpuReg) << 5) | uint32(host)
	putLE32(c.asm, w)
}

// EmitStore emits `str wHost, [xCpu, #guest*4]`.
func (c *Codegen) EmitStore(host int, guest int) {
	imm12 := xOffset(guest) / 4
	w := uint32(0xB9000000) | (imm12 << 10) | (uint32(c.cpuReg) << 5) | uint32(host)
	putLE32(c.asm, w)
}

// EmitZero emits `movz wHost, #0`.
func (c *Codegen) EmitZero(host int) {
	w := uint32(0x52800000) | uint32(host)
	putLE32(c.asm, w)
}

// EmitAddImm32 emits `add wDst, wDst, #imm` for a non-negative 12-bit imm;
// for any other imm it emits nothing.
func (c *Codegen) EmitAddImm32(host int, imm int32) {
	if imm >= 0 && imm < (1<<12) {
		w := uint32(0x11000000) | (uint32(imm) << 10) | (uint32(host) << 5) | uint32(host)
		putLE32(c.asm, w)
		return
	}
	// Other immediates are not materialized and no bytes are emitted;
	// compiler.go has no slow-path call either, so the Go closure on
	// Block.NativeFn is what executes such an ADDI.
}

// EmitAddReg emits `add wDst, wDst, wSrc`.
func (c *Codegen) EmitAddReg(dst, src int) {
	w := uint32(0x0B000000) | (uint32(src) << 16) | (uint32(dst) << 5) | uint32(dst)
	putLE32(c.asm, w)
}

// EmitRet emits `ret` (branches to LR, x30).
func (c *Codegen) EmitRet() {
	putLE32(c.asm, 0xD65F03C0)
}
