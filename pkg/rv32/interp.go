package rv32

import "math/bits"

// StepResult tells the driver what happened after Interp.Run executed one
// block (§4.E, §4.J).
type StepResult int

const (
	// StepContinue means the block ran to its terminator with no trap; the
	// terminator itself (branch/jump) already updated cpu.PC.
	StepContinue StepResult = iota
	// StepTrap means a trap was raised and vectored (§4.I); cpu.PC already
	// points at the trap handler (or the post-trap fallthrough address).
	StepTrap
	// StepHalt means cpu.Halt was set (ecall exit, illegal-instruction
	// policy, or host interrupt).
	StepHalt
)

// Interp is the threaded interpreter: it walks a Block's Insn list and
// passes each instruction to execInsn/execOne, whose Go switch on Op
// selects the semantics (§4.E, §9 "Dynamic dispatch").
type Interp struct{}

// Run executes blk against cpu, advancing cpu.Cycle once per instruction
// (including each original instruction folded into a fused op, so cycle
// accounting matches the non-fused per-instruction trace exactly).
func (Interp) Run(cpu *Cpu, blk *Block) StepResult {
	for _, in := range blk.Insns {
		res := execInsn(cpu, in)
		if res != StepContinue {
			return res
		}
		if cpu.Halt {
			return StepHalt
		}
	}
	return StepContinue
}

// execInsn executes a single Insn (fused or not). Step semantics (§4.E):
//  1. Force x[0] = 0.
//  2. Execute semantics; on misaligned access, trap via Trap().
//  3. Increment cpu.Cycle.
//  4. Advance pc by len, except for taken branches/jumps which already set pc.
func execInsn(cpu *Cpu, in *Insn) StepResult {
	if in.Op == OpInvalid {
		cpu.ForceZero()
		cpu.Cycle++
		cpu.Trap(CauseIllegalInsn, 0, in.PC, in.Len == 2)
		return StepTrap
	}

	if isFused(in.Op) {
		return execFused(cpu, in)
	}

	nextPC := in.PC + uint32(in.Len)
	branched := false

	trap, tval := execOne(cpu, in, &nextPC, &branched)
	cpu.ForceZero()
	cpu.Cycle++

	if trap != noTrap {
		cpu.Trap(trap, tval, in.PC, in.Len == 2)
		return StepTrap
	}

	cpu.PC = nextPC

	if cpu.Halt {
		return StepHalt
	}
	return StepContinue
}

// isFused reports whether op is one of the synthetic fused tags.
func isFused(op Op) bool {
	return op >= OpFusedLUIRun && op < opCount
}

// execFused replays a fused op's original instructions one at a time
// against a throwaway Insn, preserving exact per-instruction semantics; on
// trap mid-run it falls back cleanly since each sub-instruction is executed
// through the same execOne path as the unfused case (§4.D: "on trap they
// MUST fall back to per-instruction semantics").
func execFused(cpu *Cpu, fused *Insn) StepResult {
	for _, fe := range fused.Fuse {
		sub := Insn{Op: fe.Op, Rd: fe.Rd, Rs1: fe.Rs1, Rs2: fe.Rs2, Imm: fe.Imm, PC: fe.PC, Len: fe.Len, BranchTaken: -1, BranchUntaken: -1}
		res := execInsn(cpu, &sub)
		if res != StepContinue {
			return res
		}
	}
	return StepContinue
}

const noTrap uint32 = 0xffffffff

// execOne executes the semantics of one non-fused, non-invalid Insn. It
// returns (noTrap, 0) on success, or (cause, tval) when a trap must be
// raised. *nextPC and *branched are updated for control-flow ops.
func execOne(cpu *Cpu, in *Insn, nextPC *uint32, branched *bool) (uint32, uint32) {
	x := &cpu.X
	switch in.Op {
	case OpNOP, OpFENCE:
		// no-op

	case OpLUI:
		x[in.Rd] = uint32(in.Imm)
	case OpAUIPC:
		x[in.Rd] = in.PC + uint32(in.Imm)

	case OpJAL:
		x[in.Rd] = in.PC + uint32(in.Len)
		*nextPC = uint32(int32(in.PC) + in.Imm)
		*branched = true
	case OpJALR:
		target := (x[in.Rs1] + uint32(in.Imm)) &^ 1
		x[in.Rd] = in.PC + uint32(in.Len)
		*nextPC = target
		*branched = true

	case OpBEQ:
		if x[in.Rs1] == x[in.Rs2] {
			*nextPC, *branched = uint32(int32(in.PC)+in.Imm), true
		}
	case OpBNE:
		if x[in.Rs1] != x[in.Rs2] {
			*nextPC, *branched = uint32(int32(in.PC)+in.Imm), true
		}
	case OpBLT:
		if int32(x[in.Rs1]) < int32(x[in.Rs2]) {
			*nextPC, *branched = uint32(int32(in.PC)+in.Imm), true
		}
	case OpBGE:
		if int32(x[in.Rs1]) >= int32(x[in.Rs2]) {
			*nextPC, *branched = uint32(int32(in.PC)+in.Imm), true
		}
	case OpBLTU:
		if x[in.Rs1] < x[in.Rs2] {
			*nextPC, *branched = uint32(int32(in.PC)+in.Imm), true
		}
	case OpBGEU:
		if x[in.Rs1] >= x[in.Rs2] {
			*nextPC, *branched = uint32(int32(in.PC)+in.Imm), true
		}

	case OpLB, OpLH, OpLW, OpLBU, OpLHU:
		addr := x[in.Rs1] + uint32(in.Imm)
		return execLoad(cpu, in, addr)
	case OpSB, OpSH, OpSW:
		addr := x[in.Rs1] + uint32(in.Imm)
		return execStore(cpu, in, addr)

	case OpADDI:
		x[in.Rd] = x[in.Rs1] + uint32(in.Imm)
	case OpSLTI:
		x[in.Rd] = b2u(int32(x[in.Rs1]) < in.Imm)
	case OpSLTIU:
		x[in.Rd] = b2u(x[in.Rs1] < uint32(in.Imm))
	case OpXORI:
		x[in.Rd] = x[in.Rs1] ^ uint32(in.Imm)
	case OpORI:
		x[in.Rd] = x[in.Rs1] | uint32(in.Imm)
	case OpANDI:
		x[in.Rd] = x[in.Rs1] & uint32(in.Imm)
	case OpSLLI:
		x[in.Rd] = x[in.Rs1] << in.Shamt
	case OpSRLI:
		x[in.Rd] = x[in.Rs1] >> in.Shamt
	case OpSRAI:
		x[in.Rd] = uint32(int32(x[in.Rs1]) >> in.Shamt)

	case OpADD:
		x[in.Rd] = x[in.Rs1] + x[in.Rs2]
	case OpSUB:
		x[in.Rd] = x[in.Rs1] - x[in.Rs2]
	case OpSLL:
		x[in.Rd] = x[in.Rs1] << (x[in.Rs2] & 0x1f)
	case OpSLT:
		x[in.Rd] = b2u(int32(x[in.Rs1]) < int32(x[in.Rs2]))
	case OpSLTU:
		x[in.Rd] = b2u(x[in.Rs1] < x[in.Rs2])
	case OpXOR:
		x[in.Rd] = x[in.Rs1] ^ x[in.Rs2]
	case OpSRL:
		x[in.Rd] = x[in.Rs1] >> (x[in.Rs2] & 0x1f)
	case OpSRA:
		x[in.Rd] = uint32(int32(x[in.Rs1]) >> (x[in.Rs2] & 0x1f))
	case OpOR:
		x[in.Rd] = x[in.Rs1] | x[in.Rs2]
	case OpAND:
		x[in.Rd] = x[in.Rs1] & x[in.Rs2]

	case OpFENCEI, OpSFENCEVMA:
		// Handled by the driver/JIT as a block-cache invalidation signal;
		// no architectural register effect here.
	case OpMRET:
		cpu.PC = cpu.ReadCSR(CsrMepc)
		*nextPC = cpu.PC
		*branched = true

	case OpECALL:
		cpu.IO.OnEcall(cpu)
		if !cpu.Halt {
			return CauseEcallM, 0
		}
	case OpEBREAK:
		cpu.IO.OnEbreak(cpu)
		if !cpu.Halt {
			return CauseBreakpoint, 0
		}

	case OpCSRRW, OpCSRRS, OpCSRRC, OpCSRRWI, OpCSRRSI, OpCSRRCI:
		execCSR(cpu, in)

	case OpMUL:
		x[in.Rd] = x[in.Rs1] * x[in.Rs2]
	case OpMULH:
		x[in.Rd] = uint32((int64(int32(x[in.Rs1])) * int64(int32(x[in.Rs2]))) >> 32)
	case OpMULHSU:
		x[in.Rd] = uint32((int64(int32(x[in.Rs1])) * int64(x[in.Rs2])) >> 32)
	case OpMULHU:
		hi, _ := bits.Mul32(x[in.Rs1], x[in.Rs2])
		x[in.Rd] = hi
	case OpDIV:
		a, b := int32(x[in.Rs1]), int32(x[in.Rs2])
		switch {
		case b == 0:
			x[in.Rd] = 0xffffffff
		case a == -0x80000000 && b == -1:
			x[in.Rd] = uint32(a)
		default:
			x[in.Rd] = uint32(a / b)
		}
	case OpDIVU:
		if x[in.Rs2] == 0 {
			x[in.Rd] = 0xffffffff
		} else {
			x[in.Rd] = x[in.Rs1] / x[in.Rs2]
		}
	case OpREM:
		a, b := int32(x[in.Rs1]), int32(x[in.Rs2])
		switch {
		case b == 0:
			x[in.Rd] = uint32(a)
		case a == -0x80000000 && b == -1:
			x[in.Rd] = 0
		default:
			x[in.Rd] = uint32(a % b)
		}
	case OpREMU:
		if x[in.Rs2] == 0 {
			x[in.Rd] = x[in.Rs1]
		} else {
			x[in.Rd] = x[in.Rs1] % x[in.Rs2]
		}

	case OpLRW:
		addr := x[in.Rs1]
		cause, tval := execLoad(cpu, &Insn{Op: OpLW, Rd: in.Rd, Rs1: in.Rs1, Imm: 0}, addr)
		return cause, tval
	case OpSCW:
		addr := x[in.Rs1]
		if cause, tval := execStore(cpu, &Insn{Op: OpSW, Rs1: in.Rs1, Rs2: in.Rs2, Imm: 0}, addr); cause != noTrap {
			return cause, tval
		}
		x[in.Rd] = 0 // always succeeds: no reservation tracking (single-hart core)
	case OpAMOSWAPW, OpAMOADDW, OpAMOANDW, OpAMOORW, OpAMOXORW, OpAMOMINW, OpAMOMAXW, OpAMOMINUW, OpAMOMAXUW:
		return execAMO(cpu, in)

	case OpFLW, OpFSW, OpFADDS, OpFSUBS, OpFMULS, OpFDIVS, OpFSQRTS,
		OpFSGNJS, OpFSGNJNS, OpFSGNJXS, OpFMINS, OpFMAXS,
		OpFCVTWS, OpFCVTWUS, OpFCVTSW, OpFCVTSWU, OpFMVXW, OpFMVWX,
		OpFEQS, OpFLTS, OpFLES, OpFCLASSS, OpFMADDS, OpFMSUBS, OpFNMSUBS, OpFNMADDS:
		return execF(cpu, in)
	}
	return noTrap, 0
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func execLoad(cpu *Cpu, in *Insn, addr uint32) (uint32, uint32) {
	align := alignOf(in.Op)
	if align > 1 && addr%align != 0 && !cpu.IO.AllowMisalign() {
		return CauseLoadMisaligned, addr
	}
	switch in.Op {
	case OpLB:
		v, err := cpu.IO.ReadB(addr)
		if err != nil {
			return CauseLoadMisaligned, addr
		}
		cpu.X[in.Rd] = uint32(int32(int8(v)))
	case OpLBU:
		v, err := cpu.IO.ReadB(addr)
		if err != nil {
			return CauseLoadMisaligned, addr
		}
		cpu.X[in.Rd] = uint32(v)
	case OpLH:
		v, err := loadHalfMisaligned(cpu, addr)
		if err != nil {
			return CauseLoadMisaligned, addr
		}
		cpu.X[in.Rd] = uint32(int32(int16(v)))
	case OpLHU:
		v, err := loadHalfMisaligned(cpu, addr)
		if err != nil {
			return CauseLoadMisaligned, addr
		}
		cpu.X[in.Rd] = uint32(v)
	case OpLW:
		v, err := loadWordMisaligned(cpu, addr)
		if err != nil {
			return CauseLoadMisaligned, addr
		}
		cpu.X[in.Rd] = v
	}
	return noTrap, 0
}

func execStore(cpu *Cpu, in *Insn, addr uint32) (uint32, uint32) {
	align := alignOf(in.Op)
	if align > 1 && addr%align != 0 && !cpu.IO.AllowMisalign() {
		return CauseStoreMisaligned, addr
	}
	switch in.Op {
	case OpSB:
		if err := cpu.IO.WriteB(addr, uint8(cpu.X[in.Rs2])); err != nil {
			return CauseStoreMisaligned, addr
		}
	case OpSH:
		if err := storeHalfMisaligned(cpu, addr, uint16(cpu.X[in.Rs2])); err != nil {
			return CauseStoreMisaligned, addr
		}
	case OpSW:
		if err := storeWordMisaligned(cpu, addr, cpu.X[in.Rs2]); err != nil {
			return CauseStoreMisaligned, addr
		}
	}
	return noTrap, 0
}

func alignOf(op Op) uint32 {
	switch op {
	case OpLH, OpLHU, OpSH:
		return 2
	case OpLW, OpSW, OpFLW, OpFSW:
		return 4
	default:
		return 1
	}
}

// loadHalfMisaligned/storeHalfMisaligned/loadWordMisaligned/storeWordMisaligned
// perform a byte-wise access when the misaligned-access policy allows it
// (§7: "If policy allows misaligned access, load/store traps are instead
// dispatched to a helper that performs the access byte-wise and continues").
func loadHalfMisaligned(cpu *Cpu, addr uint32) (uint16, error) {
	if addr%2 == 0 {
		return cpu.IO.ReadS(addr)
	}
	lo, err := cpu.IO.ReadB(addr)
	if err != nil {
		return 0, err
	}
	hi, err := cpu.IO.ReadB(addr + 1)
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func loadWordMisaligned(cpu *Cpu, addr uint32) (uint32, error) {
	if addr%4 == 0 {
		return cpu.IO.ReadW(addr)
	}
	var v uint32
	for i := uint32(0); i < 4; i++ {
		b, err := cpu.IO.ReadB(addr + i)
		if err != nil {
			return 0, err
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

func storeHalfMisaligned(cpu *Cpu, addr uint32, v uint16) error {
	if addr%2 == 0 {
		return cpu.IO.WriteS(addr, v)
	}
	if err := cpu.IO.WriteB(addr, uint8(v)); err != nil {
		return err
	}
	return cpu.IO.WriteB(addr+1, uint8(v>>8))
}

func storeWordMisaligned(cpu *Cpu, addr uint32, v uint32) error {
	if addr%4 == 0 {
		return cpu.IO.WriteW(addr, v)
	}
	for i := uint32(0); i < 4; i++ {
		if err := cpu.IO.WriteB(addr+i, uint8(v>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

func execAMO(cpu *Cpu, in *Insn) (uint32, uint32) {
	addr := cpu.X[in.Rs1]
	if addr%4 != 0 && !cpu.IO.AllowMisalign() {
		return CauseStoreMisaligned, addr
	}
	old, err := cpu.IO.ReadW(addr)
	if err != nil {
		return CauseLoadMisaligned, addr
	}
	rs2 := cpu.X[in.Rs2]
	var nv uint32
	switch in.Op {
	case OpAMOSWAPW:
		nv = rs2
	case OpAMOADDW:
		nv = old + rs2
	case OpAMOANDW:
		nv = old & rs2
	case OpAMOORW:
		nv = old | rs2
	case OpAMOXORW:
		nv = old ^ rs2
	case OpAMOMINW:
		if int32(old) < int32(rs2) {
			nv = old
		} else {
			nv = rs2
		}
	case OpAMOMAXW:
		if int32(old) > int32(rs2) {
			nv = old
		} else {
			nv = rs2
		}
	case OpAMOMINUW:
		if old < rs2 {
			nv = old
		} else {
			nv = rs2
		}
	case OpAMOMAXUW:
		if old > rs2 {
			nv = old
		} else {
			nv = rs2
		}
	}
	if err := cpu.IO.WriteW(addr, nv); err != nil {
		return CauseStoreMisaligned, addr
	}
	cpu.X[in.Rd] = old
	return noTrap, 0
}

func execCSR(cpu *Cpu, in *Insn) {
	var rs1val uint32
	switch in.Op {
	case OpCSRRWI, OpCSRRSI, OpCSRRCI:
		rs1val = uint32(in.Rs1)
	default:
		rs1val = cpu.X[in.Rs1]
	}

	// §4.A: "CSRRW with rd=x0 still proceeds but the CSR read side effect
	// must be suppressed" — applied to CSRRW only: every other CSR* op
	// (CSRRWI included) still reads the CSR when rd == x0, and CSRRS/CSRRC
	// need the old value to compute what they write.
	suppressRead := in.Rd == 0 && in.Op == OpCSRRW

	var old uint32
	if !suppressRead {
		old = cpu.ReadCSR(in.Csr)
	}

	switch in.Op {
	case OpCSRRW, OpCSRRWI:
		cpu.WriteCSR(in.Csr, rs1val)
	case OpCSRRS, OpCSRRSI:
		if rs1val != 0 {
			cpu.WriteCSR(in.Csr, old|rs1val)
		}
	case OpCSRRC, OpCSRRCI:
		if rs1val != 0 {
			cpu.WriteCSR(in.Csr, old&^rs1val)
		}
	}

	if in.Rd != 0 {
		cpu.X[in.Rd] = old
	}
}
