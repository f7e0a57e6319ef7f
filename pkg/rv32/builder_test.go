package rv32

import "testing"

func TestBuilderStopsAtTerminator(t *testing.T) {
	mem := newTestMemory(64)
	mem.putWord(0, encodeI(0x04<<2|0x3, 1, 0x0, 0, 5))       // addi x1, x0, 5
	mem.putWord(4, encodeB(0x0, 1, 0, 0))                    // beq x1, x0, . (terminator)
	mem.putWord(8, encodeI(0x04<<2|0x3, 2, 0x0, 0, 9))       // addi x2, x0, 9 (should not be reached)

	bd := NewBuilder()
	blk, err := bd.Build(0, mem)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(blk.Insns) != 2 {
		t.Fatalf("expected block to stop at the terminator, got %d insns", len(blk.Insns))
	}
	if blk.PCEnd != 8 {
		t.Fatalf("PCEnd = %#x, want 8", blk.PCEnd)
	}
}

func TestBuilderCapacityLimit(t *testing.T) {
	mem := newTestMemory(4096)
	for i := uint32(0); i < 16; i++ {
		mem.putWord(i*4, encodeI(0x04<<2|0x3, 1, 0x0, 0, 1)) // addi x1, x0, 1 (never terminates)
	}
	bd := &Builder{Capacity: 8}
	blk, err := bd.Build(0, mem)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(blk.Insns) != 8 {
		t.Fatalf("expected capacity-bounded block of 8 insns, got %d", len(blk.Insns))
	}
}

func TestBuilderPageTermination(t *testing.T) {
	mem := newTestMemory(PageSize * 2)
	for i := uint32(0); i < 8; i++ {
		addr := uint32(PageSize-8) + i*4
		mem.putWord(addr, encodeI(0x04<<2|0x3, 1, 0x0, 0, 1))
	}
	bd := &Builder{Capacity: DefaultBlockCapacity, SystemMode: true}
	blk, err := bd.Build(PageSize-8, mem)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !blk.PageTerminated {
		t.Fatalf("expected the block to stop at the page boundary")
	}
	for _, in := range blk.Insns {
		if in.PC>>12 != (PageSize-8)>>12 {
			t.Fatalf("insn at %#x crossed into the next page", in.PC)
		}
	}
}

func TestBuilderIllegalInsnSynthesizesTrap(t *testing.T) {
	mem := newTestMemory(64)
	mem.putWord(0, 0) // all-zero word: illegal in both compressed and 32-bit form
	bd := NewBuilder()
	blk, err := bd.Build(0, mem)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	last := blk.Last()
	if last.Op != OpInvalid {
		t.Fatalf("expected a synthetic OpInvalid trap instruction, got %v", last.Op)
	}
}

func TestBuilderIfetchErrorPropagates(t *testing.T) {
	mem := newTestMemory(4) // too small for any fetch
	bd := NewBuilder()
	if _, err := bd.Build(100, mem); err == nil {
		t.Fatalf("expected an ifetch error for an out-of-range pc")
	}
}
