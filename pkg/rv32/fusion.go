package rv32

// Fuse runs the macro-op fusion pass once per block, immediately after
// construction (§4.D). It scans a small peephole window over the block's
// instructions and rewrites recognized runs into a single synthetic Insn
// whose Fuse slice carries the original operands, so a trap mid-run can
// always fall back to per-instruction semantics.
//
// Fusion never crosses the block's terminator: a terminator at the scan
// position is copied through unchanged, and the run patterns stop before
// one (see runLen). Only two patterns include a terminator: pattern 6 folds
// the ECALL after `li a7,imm`, and pattern 12 folds the BNE after an ADDI;
// both resulting fused ops are terminators themselves.
func Fuse(b *Block) {
	insns := b.Insns
	n := len(insns)
	if n < 2 {
		return
	}

	out := make([]*Insn, 0, n)
	i := 0
	for i < n {
		cur := insns[i]
		if IsTerminator(cur.Op) {
			out = append(out, cur)
			i++
			continue
		}

		if fused, consumed := tryFuse(insns, i); fused != nil {
			out = append(out, fused)
			i += consumed
			continue
		}

		out = append(out, cur)
		i++
	}

	relink(out)
	b.Insns = out
}

func relink(insns []*Insn) {
	for idx, in := range insns {
		if idx+1 < len(insns) {
			in.Next = insns[idx+1]
		} else {
			in.Next = nil
		}
	}
}

// tryFuse attempts every pattern at position i and returns the fused Insn
// and how many original instructions it consumed, or (nil, 0) if nothing
// matched. Patterns are tried in the priority order listed in §4.D's table.
func tryFuse(insns []*Insn, i int) (*Insn, int) {
	n := len(insns)
	rest := insns[i:]

	// Pattern 8: LUI rd,imm ; ADDI rd,rd,imm2 -> 32-bit constant load.
	// Checked before pattern 2 (LUI+ADD) and pattern 1 (LUI run) since it is
	// the more specific two-instruction match.
	if i+1 < n && rest[0].Op == OpLUI && rest[1].Op == OpADDI &&
		rest[1].Rd == rest[0].Rd && rest[1].Rs1 == rest[0].Rd {
		return fuseTwo(OpFusedConst32, rest[0], rest[1]), 2
	}

	// Pattern 2: LUI rd,imm ; ADD rs2,rs1,rd -> precompute+add.
	if i+1 < n && rest[0].Op == OpLUI && rest[1].Op == OpADD &&
		(rest[1].Rs1 == rest[0].Rd || rest[1].Rs2 == rest[0].Rd) {
		return fuseTwo(OpFusedLUIAdd, rest[0], rest[1]), 2
	}

	// Pattern 9: LUI ; LW absolute-address load.
	if i+1 < n && rest[0].Op == OpLUI && rest[1].Op == OpLW && rest[1].Rs1 == rest[0].Rd {
		return fuseTwo(OpFusedAbsLoad, rest[0], rest[1]), 2
	}

	// Pattern 10: LUI ; SW absolute-address store.
	if i+1 < n && rest[0].Op == OpLUI && rest[1].Op == OpSW && rest[1].Rs1 == rest[0].Rd {
		return fuseTwo(OpFusedAbsStore, rest[0], rest[1]), 2
	}

	// Pattern 11: LW rd,off(rs1) ; ADDI rs1,rs1,k -> post-increment load.
	if i+1 < n && rest[0].Op == OpLW && rest[1].Op == OpADDI &&
		rest[1].Rd == rest[0].Rs1 && rest[1].Rs1 == rest[0].Rs1 && rest[0].Rd != rest[0].Rs1 {
		return fuseTwo(OpFusedPostIncLoad, rest[0], rest[1]), 2
	}

	// Pattern 12: ADDI rd,rs1,k ; BNE rd,x0,target -> decrement-and-branch.
	if i+1 < n && rest[0].Op == OpADDI && rest[1].Op == OpBNE &&
		rest[1].Rs1 == rest[0].Rd && rest[1].Rs2 == 0 {
		return fuseTwo(OpFusedDecBranch, rest[0], rest[1]), 2
	}

	// Pattern 6: li a7,imm ; ecall -> syscall fast path.
	if i+1 < n && rest[0].Op == OpADDI && rest[0].Rs1 == 0 && rest[0].Rd == 17 && rest[1].Op == OpECALL {
		return fuseTwo(OpFusedSyscall, rest[0], rest[1]), 2
	}

	// Pattern 1: >= 2 LUI in a row.
	if run := runLen(rest, func(in *Insn) bool { return in.Op == OpLUI }); run >= 2 {
		return fuseRun(OpFusedLUIRun, rest[:run]), run
	}

	// Pattern 7: >= 2 consecutive ADDI.
	if run := runLen(rest, func(in *Insn) bool { return in.Op == OpADDI }); run >= 2 {
		return fuseRun(OpFusedADDIRun, rest[:run]), run
	}

	// Pattern 5: >= 2 consecutive shifts.
	if run := runLen(rest, func(in *Insn) bool {
		return in.Op == OpSLLI || in.Op == OpSRLI || in.Op == OpSRAI
	}); run >= 2 {
		return fuseRun(OpFusedShiftRun, rest[:run]), run
	}

	// Pattern 3: >= 2 consecutive SW with same base register.
	if rest[0].Op == OpSW {
		run := runLen(rest, func(in *Insn) bool { return in.Op == OpSW && in.Rs1 == rest[0].Rs1 })
		if run >= 2 {
			return fuseRun(OpFusedSWRun, rest[:run]), run
		}
	}

	// Pattern 4: >= 2 consecutive LW with same base register.
	if rest[0].Op == OpLW {
		run := runLen(rest, func(in *Insn) bool { return in.Op == OpLW && in.Rs1 == rest[0].Rs1 })
		if run >= 2 {
			return fuseRun(OpFusedLWRun, rest[:run]), run
		}
	}

	return nil, 0
}

func runLen(insns []*Insn, match func(*Insn) bool) int {
	n := 0
	for n < len(insns) && n < MaxFuseEntries && match(insns[n]) {
		if IsTerminator(insns[n].Op) {
			break
		}
		n++
	}
	return n
}

func fuseTwo(op Op, a, b *Insn) *Insn {
	return &Insn{
		Op:            op,
		PC:            a.PC,
		Len:           a.Len + b.Len,
		Rd:            a.Rd,
		Rs1:           a.Rs1,
		Rs2:           a.Rs2,
		Imm:           a.Imm,
		Imm2:          b.Imm,
		BranchTaken:   b.BranchTaken,
		BranchUntaken: b.BranchUntaken,
		Fuse: []FuseEntry{
			{Op: a.Op, Rd: a.Rd, Rs1: a.Rs1, Rs2: a.Rs2, Imm: a.Imm, PC: a.PC, Len: a.Len},
			{Op: b.Op, Rd: b.Rd, Rs1: b.Rs1, Rs2: b.Rs2, Imm: b.Imm, PC: b.PC, Len: b.Len},
		},
	}
}

func fuseRun(op Op, insns []*Insn) *Insn {
	var totalLen uint8
	fuse := make([]FuseEntry, 0, len(insns))
	for _, in := range insns {
		totalLen += in.Len
		fuse = append(fuse, FuseEntry{Op: in.Op, Rd: in.Rd, Rs1: in.Rs1, Rs2: in.Rs2, Imm: in.Imm, PC: in.PC, Len: in.Len})
	}
	first := insns[0]
	return &Insn{
		Op:            op,
		PC:            first.PC,
		Len:           totalLen,
		Rd:            first.Rd,
		Rs1:           first.Rs1,
		BranchTaken:   -1,
		BranchUntaken: -1,
		Fuse:          fuse,
	}
}
