package jit2

import (
	"testing"

	"github.com/vex32/rv32core/pkg/rv32"
)

type noopMemory struct{}

func (noopMemory) Ifetch(addr uint32) (uint32, error) { return 0, nil }
func (noopMemory) ReadB(addr uint32) (uint8, error)   { return 0, nil }
func (noopMemory) ReadS(addr uint32) (uint16, error)  { return 0, nil }
func (noopMemory) ReadW(addr uint32) (uint32, error)  { return 0, nil }
func (noopMemory) WriteB(addr uint32, v uint8) error  { return nil }
func (noopMemory) WriteS(addr uint32, v uint16) error { return nil }
func (noopMemory) WriteW(addr uint32, v uint32) error { return nil }
func (noopMemory) OnEcall(cpu *rv32.Cpu)              {}
func (noopMemory) OnEbreak(cpu *rv32.Cpu)             {}
func (noopMemory) AllowMisalign() bool                { return false }

// wordMemory is a flat byte-addressed memory that actually stores writes,
// for tests that need to observe a store's side effect rather than just a
// register value.
type wordMemory struct {
	bytes [64]byte
}

func (m *wordMemory) Ifetch(addr uint32) (uint32, error) { return 0, nil }
func (m *wordMemory) ReadB(addr uint32) (uint8, error)   { return m.bytes[addr], nil }
func (m *wordMemory) ReadS(addr uint32) (uint16, error) {
	return uint16(m.bytes[addr]) | uint16(m.bytes[addr+1])<<8, nil
}
func (m *wordMemory) ReadW(addr uint32) (uint32, error) {
	return uint32(m.bytes[addr]) | uint32(m.bytes[addr+1])<<8 |
		uint32(m.bytes[addr+2])<<16 | uint32(m.bytes[addr+3])<<24, nil
}
func (m *wordMemory) WriteB(addr uint32, v uint8) error { m.bytes[addr] = v; return nil }
func (m *wordMemory) WriteS(addr uint32, v uint16) error {
	m.bytes[addr], m.bytes[addr+1] = byte(v), byte(v>>8)
	return nil
}
func (m *wordMemory) WriteW(addr uint32, v uint32) error {
	m.bytes[addr] = byte(v)
	m.bytes[addr+1] = byte(v >> 8)
	m.bytes[addr+2] = byte(v >> 16)
	m.bytes[addr+3] = byte(v >> 24)
	return nil
}
func (m *wordMemory) OnEcall(cpu *rv32.Cpu)  {}
func (m *wordMemory) OnEbreak(cpu *rv32.Cpu) {}
func (m *wordMemory) AllowMisalign() bool    { return false }

// TestCompileMergedWideStoreWritesBothWords exercises the memcopyOpt path
// end-to-end: two adjacent SW stores to the same base register at offsets
// (0, 4) get merged into a single wide pseudoOp by optimize(), and
// runOptimized must still perform both stores rather than dropping the
// second one now that it no longer appears as its own live pseudoOp.
func TestCompileMergedWideStoreWritesBothWords(t *testing.T) {
	i1 := &rv32.Insn{Op: rv32.OpADDI, Rd: 1, Rs1: 0, Imm: 0xAA, PC: 0, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	i2 := &rv32.Insn{Op: rv32.OpADDI, Rd: 2, Rs1: 0, Imm: 0xBB, PC: 4, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	i3 := &rv32.Insn{Op: rv32.OpSW, Rs1: 3, Rs2: 1, Imm: 0, PC: 8, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	i4 := &rv32.Insn{Op: rv32.OpSW, Rs1: 3, Rs2: 2, Imm: 4, PC: 12, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	i1.Next, i2.Next, i3.Next = i2, i3, i4
	blk := &rv32.Block{PCStart: 0, PCEnd: 16, Insns: []*rv32.Insn{i1, i2, i3, i4}, Key: 1}

	fn, err := Compile(blk)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	mem := &wordMemory{}
	cpu := rv32.NewCpu(mem)
	cpu.X[3] = 16 // base register, well clear of the instruction stream above
	fn(cpu)

	lo, _ := mem.ReadW(16)
	hi, _ := mem.ReadW(20)
	if lo != 0xAA {
		t.Fatalf("mem[base+0] = %#x, want 0xaa (first store must not be dropped)", lo)
	}
	if hi != 0xBB {
		t.Fatalf("mem[base+4] = %#x, want 0xbb (second, merged store must not be dropped)", hi)
	}
}

func chainedBlock() *rv32.Block {
	i1 := &rv32.Insn{Op: rv32.OpADDI, Rd: 1, Rs1: 0, Imm: 5, PC: 0, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	i2 := &rv32.Insn{Op: rv32.OpADDI, Rd: 1, Rs1: 1, Imm: 7, PC: 4, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	i3 := &rv32.Insn{Op: rv32.OpADD, Rd: 2, Rs1: 1, Rs2: 1, PC: 8, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	i1.Next = i2
	i2.Next = i3
	return &rv32.Block{PCStart: 0, PCEnd: 12, Insns: []*rv32.Insn{i1, i2, i3}, Key: 1}
}

func TestCompileExecutesOptimizedBinOps(t *testing.T) {
	fn, err := Compile(chainedBlock())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	cpu := rv32.NewCpu(noopMemory{})
	fn(cpu)
	if cpu.X[1] != 12 {
		t.Fatalf("x1 = %d, want 12 (5+7)", cpu.X[1])
	}
	if cpu.X[2] != 24 {
		t.Fatalf("x2 = %d, want 24 (12+12 via the replayed add)", cpu.X[2])
	}
}

func TestCompileRedundantBinOpBecomesMove(t *testing.T) {
	// x1 = x0 + 5; x2 = x0 + 5 (same key as the first, CSE should turn
	// the second into a move); x3 = x2 (a plain move, unaffected by CSE).
	i1 := &rv32.Insn{Op: rv32.OpADDI, Rd: 1, Rs1: 0, Imm: 5, PC: 0, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	i2 := &rv32.Insn{Op: rv32.OpADDI, Rd: 2, Rs1: 0, Imm: 5, PC: 4, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	i1.Next = i2
	blk := &rv32.Block{PCStart: 0, PCEnd: 8, Insns: []*rv32.Insn{i1, i2}, Key: 1}

	fn, err := Compile(blk)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	cpu := rv32.NewCpu(noopMemory{})
	fn(cpu)
	if cpu.X[1] != 5 || cpu.X[2] != 5 {
		t.Fatalf("x1=%d x2=%d, want both 5", cpu.X[1], cpu.X[2])
	}
}

func TestCompileLoadImmDirectPath(t *testing.T) {
	i1 := &rv32.Insn{Op: rv32.OpLUI, Rd: 4, Imm: 0x1000, PC: 0, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	blk := &rv32.Block{PCStart: 0, PCEnd: 4, Insns: []*rv32.Insn{i1}, Key: 1}

	fn, err := Compile(blk)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	cpu := rv32.NewCpu(noopMemory{})
	fn(cpu)
	if cpu.X[4] != 0x1000 {
		t.Fatalf("x4 = %#x, want 0x1000", cpu.X[4])
	}
}

func TestCompileX0StaysZeroThroughDirectPaths(t *testing.T) {
	i1 := &rv32.Insn{Op: rv32.OpLUI, Rd: 0, Imm: 0x1000, PC: 0, Len: 4, BranchTaken: -1, BranchUntaken: -1}
	blk := &rv32.Block{PCStart: 0, PCEnd: 4, Insns: []*rv32.Insn{i1}, Key: 1}

	fn, err := Compile(blk)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	cpu := rv32.NewCpu(noopMemory{})
	fn(cpu)
	if cpu.X[0] != 0 {
		t.Fatalf("x0 = %d, want 0 (ForceZero must clamp it even on the direct loadImm path)", cpu.X[0])
	}
}
