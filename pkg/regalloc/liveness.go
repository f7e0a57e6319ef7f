// Package regalloc implements the tier-1 JIT's pre-compile liveness pass and
// host-register allocator (§4.F).
package regalloc

import (
	"sort"

	"github.com/vex32/rv32core/pkg/rv32"
)

// NRegs is the number of guest general-purpose registers.
const NRegs = 32

// Liveness holds, for each guest register r, the largest IR index at which r
// is read (§4.F "walk the IR in reverse per-op dataflow"). -1 means r is
// never read in this block.
type Liveness struct {
	LastUse       [NRegs]int
	CandidateQueue []int // register indices sorted by LastUse descending
}

// Compute walks insns once and builds a Liveness record for the block. It is
// run once per compilation, not per instruction (§4.F, §9).
func Compute(insns []*rv32.Insn) *Liveness {
	l := &Liveness{}
	for i := range l.LastUse {
		l.LastUse[i] = -1
	}

	for idx, in := range insns {
		for _, r := range readsOf(in) {
			if int(r) > 0 && idx > l.LastUse[r] {
				l.LastUse[r] = idx
			}
		}
	}

	l.CandidateQueue = make([]int, NRegs)
	for i := range l.CandidateQueue {
		l.CandidateQueue[i] = i
	}
	sort.SliceStable(l.CandidateQueue, func(a, b int) bool {
		ra, rb := l.CandidateQueue[a], l.CandidateQueue[b]
		return l.LastUse[ra] > l.LastUse[rb]
	})
	return l
}

// readsOf returns the guest registers read by in, including every
// sub-instruction's reads when in is a fused op (so liveness accounts for
// the original, unfused dataflow).
func readsOf(in *rv32.Insn) []uint8 {
	if isFusedOp(in) {
		var out []uint8
		for _, fe := range in.Fuse {
			out = append(out, regReads(fe.Op, fe.Rs1, fe.Rs2, 0)...)
		}
		return out
	}
	return regReads(in.Op, in.Rs1, in.Rs2, in.Rs3)
}

func isFusedOp(in *rv32.Insn) bool { return len(in.Fuse) > 0 }

func regReads(op rv32.Op, rs1, rs2, rs3 uint8) []uint8 {
	switch op {
	case rv32.OpLUI, rv32.OpAUIPC, rv32.OpJAL, rv32.OpECALL, rv32.OpEBREAK, rv32.OpNOP,
		rv32.OpFENCE, rv32.OpFENCEI, rv32.OpMRET:
		return nil
	case rv32.OpFMADDS, rv32.OpFMSUBS, rv32.OpFNMSUBS, rv32.OpFNMADDS:
		return []uint8{rs1, rs2, rs3}
	default:
		// Every other op reads at most rs1/rs2 (stores read rs2 as the
		// value operand, branches read both, loads/ALU read rs1 [+rs2]).
		return []uint8{rs1, rs2}
	}
}
