package jit2

import "github.com/vex32/rv32core/pkg/rv32"

// pseudoOp is one tier-2 pseudo-instruction: a higher-level op than
// rv32.Insn, closer to what an optimizing backend expects (§4.H "each
// opcode emits equivalent high-level pseudo-instructions").
type pseudoOp struct {
	kind pseudoKind
	dst  uint8
	a, b uint8
	imm  int32
	insn *rv32.Insn // original instruction, for stores-back/fallback
	dead bool // marked by the DCE pass
	wide bool // merged into a double-word store by memcopyOpt
	pair *rv32.Insn // the second store folded into this one when wide is set
}

type pseudoKind int

const (
	pseudoLoadImm pseudoKind = iota
	pseudoMove
	pseudoBinOp  // a OP b -> dst, concrete ALU op carried in insn.Op
	pseudoLoad   // memory load, address = a + imm
	pseudoStore  // memory store, value = b, address = a + imm
	pseudoBranch
	pseudoCall // ecall/ebreak/CSR/anything requiring the slow path
)

// lower translates a block's instructions into the pseudo-IR (§4.H).
func lower(insns []*rv32.Insn) []pseudoOp {
	out := make([]pseudoOp, 0, len(insns))
	for _, in := range insns {
		switch in.Op {
		case rv32.OpADDI, rv32.OpANDI, rv32.OpORI, rv32.OpXORI, rv32.OpSLTI, rv32.OpSLTIU:
			out = append(out, pseudoOp{kind: pseudoBinOp, dst: in.Rd, a: in.Rs1, imm: in.Imm, insn: in})
		case rv32.OpADD, rv32.OpSUB, rv32.OpAND, rv32.OpOR, rv32.OpXOR,
			rv32.OpSLL, rv32.OpSRL, rv32.OpSRA, rv32.OpSLT, rv32.OpSLTU:
			out = append(out, pseudoOp{kind: pseudoBinOp, dst: in.Rd, a: in.Rs1, b: in.Rs2, insn: in})
		case rv32.OpLW, rv32.OpLH, rv32.OpLHU, rv32.OpLB, rv32.OpLBU:
			out = append(out, pseudoOp{kind: pseudoLoad, dst: in.Rd, a: in.Rs1, imm: in.Imm, insn: in})
		case rv32.OpSW, rv32.OpSH, rv32.OpSB:
			out = append(out, pseudoOp{kind: pseudoStore, a: in.Rs1, b: in.Rs2, imm: in.Imm, insn: in})
		case rv32.OpBEQ, rv32.OpBNE, rv32.OpBLT, rv32.OpBGE, rv32.OpBLTU, rv32.OpBGEU,
			rv32.OpJAL, rv32.OpJALR:
			out = append(out, pseudoOp{kind: pseudoBranch, a: in.Rs1, b: in.Rs2, dst: in.Rd, imm: in.Imm, insn: in})
		case rv32.OpLUI:
			out = append(out, pseudoOp{kind: pseudoLoadImm, dst: in.Rd, imm: in.Imm, insn: in})
		case rv32.OpNOP:
			// contributes nothing
		default:
			out = append(out, pseudoOp{kind: pseudoCall, insn: in})
		}
	}
	return out
}

// deadStoreElim marks a binOp/loadImm/move dead if its destination register
// is fully overwritten before being read again within the block, with no
// intervening branch/call (a conservative, block-local DCE pass — §4.H
// "dead-code elimination").
func deadStoreElim(ops []pseudoOp) {
	lastWriter := make(map[uint8]int)
	for i, op := range ops {
		if op.kind == pseudoBranch || op.kind == pseudoCall {
			lastWriter = make(map[uint8]int) // control flow: conservative reset
			continue
		}
		if op.a != 0 {
			delete(lastWriter, op.a)
		}
		if op.b != 0 {
			delete(lastWriter, op.b)
		}
		if op.dst != 0 {
			if prev, ok := lastWriter[op.dst]; ok {
				ops[prev].dead = true
			}
			if op.kind == pseudoLoad {
				delete(lastWriter, op.dst) // a load may trap, so it is never removed
			} else {
				lastWriter[op.dst] = i
			}
		}
	}
}

// commonSubexprElim collapses a binOp that recomputes the exact same
// (kind, op, a, b, imm) as an earlier live one still holding a register,
// rewriting the later one into a move (§4.H "common-subexpression
// elimination"). Conservative: invalidated at any branch/call/store.
func commonSubexprElim(ops []pseudoOp) {
	type key struct {
		op   rv32.Op
		a, b uint8
		imm  int32
	}
	seen := make(map[key]uint8)
	// clobber forgets every entry that reads r or whose value lives in r.
	clobber := func(r uint8) {
		for k, v := range seen {
			if v == r || k.a == r || k.b == r {
				delete(seen, k)
			}
		}
	}
	for i := range ops {
		op := &ops[i]
		if op.dead {
			continue
		}
		switch op.kind {
		case pseudoBranch, pseudoCall, pseudoStore:
			seen = make(map[key]uint8)
			continue
		case pseudoBinOp:
			k := key{op.insn.Op, op.a, op.b, op.imm}
			if src, ok := seen[k]; ok {
				op.kind = pseudoMove
				op.a = src
				clobber(op.dst)
			} else if op.dst != 0 {
				clobber(op.dst)
				if op.dst != op.a && op.dst != op.b {
					seen[k] = op.dst
				}
			}
		default:
			clobber(op.dst)
		}
	}
}

// instructionCombine folds an add-immediate-zero (ADDI rd,rs,0, a register
// copy) into a move (§4.H "instruction combining"); no other binOp is
// rewritten.
func instructionCombine(ops []pseudoOp) {
	for i := range ops {
		op := &ops[i]
		if op.dead || op.kind != pseudoBinOp {
			continue
		}
		if op.insn.Op == rv32.OpADDI && op.imm == 0 {
			op.kind = pseudoMove
		}
	}
}

// memcopyOpt merges a pair of consecutive word stores to the same base
// register at adjacent offsets (off, off+4) into a single double-word
// store, marking the first wide and folding the second into it as pair
// (§4.H "mem-copy opts"); a real backend would emit one 8-byte store
// instead of two 4-byte ones; runOptimized replays both original stores
// for op.wide so the second store's side effect is never lost.
func memcopyOpt(ops []pseudoOp) {
	for i := 0; i+1 < len(ops); i++ {
		a, b := &ops[i], &ops[i+1]
		if a.dead || b.dead {
			continue
		}
		if a.kind != pseudoStore || b.kind != pseudoStore {
			continue
		}
		if a.a == b.a && b.imm == a.imm+4 && a.insn.Op == rv32.OpSW && b.insn.Op == rv32.OpSW {
			a.wide = true
			a.pair = b.insn
			b.dead = true
		}
	}
}

// optimize runs the tier-2 scalar pass pipeline over a lowered block.
func optimize(ops []pseudoOp) []pseudoOp {
	deadStoreElim(ops)
	commonSubexprElim(ops)
	instructionCombine(ops)
	memcopyOpt(ops)

	live := ops[:0]
	for _, op := range ops {
		if !op.dead {
			live = append(live, op)
		}
	}
	return live
}
