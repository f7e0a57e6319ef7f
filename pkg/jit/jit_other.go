//go:build !amd64 && !arm64

package jit

// Codegen is a no-op Backend on hosts without a native backend. Supported
// stands for "can actually emit machine code"; Compiler.Compile checks it
// and skips native emission when false, still installing the Go closure
// that replays the block through the interpreter (§4.G "falls back to the
// interpreter on unsupported hosts").
type Codegen struct {
	asm *Assembler
}

// NewCodegen returns a Codegen that records no bytes; callers must check
// Supported() before attempting to compile a block.
func NewCodegen(asm *Assembler) *Codegen { return &Codegen{asm: asm} }

// Supported reports whether this host has a native backend.
func Supported() bool { return false }

func (c *Codegen) EmitLoad(host int, guest int)    {}
func (c *Codegen) EmitStore(host int, guest int)   {}
func (c *Codegen) EmitZero(host int)               {}
func (c *Codegen) EmitAddImm32(host int, imm int32) {}
func (c *Codegen) EmitAddReg(dst, src int)          {}
func (c *Codegen) EmitRet()                         {}
