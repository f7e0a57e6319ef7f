package jit2

import "github.com/vex32/rv32core/pkg/rv32"

// Compile lowers blk to the pseudo-IR, runs the scalar optimization
// pipeline, and materializes the result as a NativeFn. As with tier-1 (see
// pkg/jit's DESIGN.md entry on "native tier-1 execution in pure Go"), the
// materialized function is a Go closure rather than a call through a raw
// function pointer: it replays the optimized op list directly against Cpu,
// skipping the dead stores and redundant recomputation the passes removed,
// which is where tier-2's actual speedup over tier-1 comes from in this
// module (fewer register read/writes per block, not a different execution
// substrate).
func Compile(blk *rv32.Block) (NativeFn, error) {
	ops := optimize(lower(blk.Insns))
	return func(cpu *rv32.Cpu) {
		runOptimized(cpu, ops)
	}, nil
}

// runOptimized executes a block's optimized pseudo-op list directly,
// falling back to the original instruction's full semantics (via
// rv32.Interp-equivalent single-step execution) for any op the lowering
// pass left as pseudoCall.
func runOptimized(cpu *rv32.Cpu, ops []pseudoOp) {
	var interp rv32.Interp
	for _, op := range ops {
		switch op.kind {
		case pseudoLoadImm:
			cpu.X[op.dst] = uint32(op.imm)
		case pseudoMove:
			if op.dst != 0 {
				cpu.X[op.dst] = cpu.X[op.a]
			}
		default:
			// binOp/load/store/branch/call: the original instruction's
			// semantics are authoritative and already account for traps,
			// alignment, and CSR/ecall side effects that the pseudo-IR
			// does not model; replay it through the interpreter's
			// single-instruction block form.
			single := &rv32.Block{Insns: []*rv32.Insn{op.insn}}
			interp.Run(cpu, single)
			if cpu.Halt {
				return
			}
			if op.wide {
				// memcopyOpt folded a second, adjacent word store into
				// this op (§4.H); replay it too so its side effect isn't
				// silently dropped now that it no longer appears as its
				// own live pseudoOp.
				pairBlk := &rv32.Block{Insns: []*rv32.Insn{op.pair}}
				interp.Run(cpu, pairBlk)
				if cpu.Halt {
					return
				}
			}
		}
		cpu.ForceZero()
	}
}
