package regalloc

import (
	"testing"

	"github.com/vex32/rv32core/pkg/rv32"
)

func TestComputeLastUse(t *testing.T) {
	insns := []*rv32.Insn{
		{Op: rv32.OpADDI, Rd: 1, Rs1: 2, Imm: 1},
		{Op: rv32.OpADD, Rd: 3, Rs1: 1, Rs2: 2},
		{Op: rv32.OpADDI, Rd: 4, Rs1: 1, Imm: 1},
	}
	l := Compute(insns)
	if l.LastUse[2] != 1 {
		t.Fatalf("x2 last read at index 1, got %d", l.LastUse[2])
	}
	if l.LastUse[1] != 2 {
		t.Fatalf("x1 last read at index 2, got %d", l.LastUse[1])
	}
	if l.LastUse[3] != -1 {
		t.Fatalf("x3 is never read, want -1, got %d", l.LastUse[3])
	}
}

func TestComputeIgnoresX0Reads(t *testing.T) {
	insns := []*rv32.Insn{
		{Op: rv32.OpADD, Rd: 1, Rs1: 0, Rs2: 0},
	}
	l := Compute(insns)
	if l.LastUse[0] != -1 {
		t.Fatalf("x0 reads must not populate LastUse, got %d", l.LastUse[0])
	}
}

func TestComputeFusedOpUsesSubInstructionReads(t *testing.T) {
	fused := &rv32.Insn{
		Op: rv32.OpFusedLUIAdd,
		Fuse: []rv32.FuseEntry{
			{Op: rv32.OpLUI, Rd: 5},
			{Op: rv32.OpADD, Rd: 6, Rs1: 5, Rs2: 7},
		},
	}
	l := Compute([]*rv32.Insn{fused})
	if l.LastUse[5] != 0 || l.LastUse[7] != 0 {
		t.Fatalf("fused op's sub-instruction reads not accounted for: %+v", l.LastUse)
	}
}

func TestCandidateQueueOrdersFarthestUseFirst(t *testing.T) {
	insns := []*rv32.Insn{
		{Op: rv32.OpADD, Rd: 10, Rs1: 1, Rs2: 2}, // x1,x2 read at idx 0
		{Op: rv32.OpADD, Rd: 11, Rs1: 2, Rs2: 3}, // x2,x3 read at idx 1
	}
	l := Compute(insns)
	// x3's last use (1) is farther than x1's (0), so x3 must appear before
	// x1 in the farthest-use-first queue.
	posOf := func(reg int) int {
		for i, r := range l.CandidateQueue {
			if r == reg {
				return i
			}
		}
		return -1
	}
	if posOf(3) >= posOf(1) {
		t.Fatalf("expected x3 (farther next use) to precede x1 in the candidate queue")
	}
}
