// Package rv32 implements the RV32 decode/execute core: the IR instruction
// record, the basic-block builder, macro-op fusion, the CSR/trap unit, and
// the threaded interpreter.
//
// The architecture mirrors a classic two-level RISC-V decoder: bits 6:2 of an
// uncompressed word select a format handler, and funct3/funct7 sub-dispatch
// within it, exactly as RiSC-32's opcode/format split does for its own (much
// smaller) instruction set.
package rv32

// Op is the tag over every instruction the decoder can produce: the RV32I
// base, the M/A/F/C extensions, Zicsr/Zifencei, and the synthetic fused
// opcodes produced by the fusion pass (see fusion.go).
type Op int

const (
	OpInvalid Op = iota

	// RV32I
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK
	OpNOP

	// Zicsr
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	// M extension
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU

	// A extension (subset: LR/SC + common AMOs)
	OpLRW
	OpSCW
	OpAMOSWAPW
	OpAMOADDW
	OpAMOANDW
	OpAMOORW
	OpAMOXORW
	OpAMOMINW
	OpAMOMAXW
	OpAMOMINUW
	OpAMOMAXUW

	// F extension (single precision, representative subset)
	OpFLW
	OpFSW
	OpFADDS
	OpFSUBS
	OpFMULS
	OpFDIVS
	OpFSQRTS
	OpFSGNJS
	OpFSGNJNS
	OpFSGNJXS
	OpFMINS
	OpFMAXS
	OpFCVTWS
	OpFCVTWUS
	OpFCVTSW
	OpFCVTSWU
	OpFMVXW
	OpFMVWX
	OpFEQS
	OpFLTS
	OpFLES
	OpFCLASSS
	OpFMADDS
	OpFMSUBS
	OpFNMSUBS
	OpFNMADDS

	// SYSTEM / privileged (M-mode subset relevant to a user-mode core)
	OpMRET
	OpSFENCEVMA

	// Synthetic fused opcodes (see fusion.go for the patterns)
	OpFusedLUIRun
	OpFusedLUIAdd
	OpFusedSWRun
	OpFusedLWRun
	OpFusedShiftRun
	OpFusedSyscall
	OpFusedADDIRun
	OpFusedConst32
	OpFusedAbsLoad
	OpFusedAbsStore
	OpFusedPostIncLoad
	OpFusedDecBranch

	opCount
)

// FuseEntry is one of the original, pre-fusion instructions folded into a
// fused Insn's Fuse slice. At most 16 entries per fused op (see fusion.go).
type FuseEntry struct {
	Op   Op
	Rd   uint8
	Rs1  uint8
	Rs2  uint8
	Imm  int32
	PC   uint32
	Len  uint8
}

// MaxFuseEntries bounds Insn.Fuse. A matching run longer than this is not
// left unfused: runLen stops counting at MaxFuseEntries, so the first
// MaxFuseEntries instructions become one fused op and the scan continues
// with the rest of the run.
const MaxFuseEntries = 16

// Insn is one decoded RV32 instruction, or a synthetic fused run of them.
//
// BranchTaken/BranchUntaken are weak, non-owning references into the
// enclosing Block: they hold an index into Block.Insns's successor edges and
// are resolved lazily against the block cache by the driver, never owned by
// the Insn itself.
type Insn struct {
	Op   Op
	Imm  int32 // primary immediate
	Imm2 int32 // second immediate, used only by fused ops (e.g. FusedConst32)
	Rd   uint8
	Rs1  uint8
	Rs2  uint8
	Rs3  uint8 // F4-type (fused multiply-add) only
	Csr  uint16
	Shamt uint8
	Len  uint8 // 2 (compressed) or 4
	PC   uint32

	// Fuse is owned exclusively by this Insn and is non-nil only when Op is
	// one of the OpFused* tags.
	Fuse []FuseEntry

	// BranchTaken/BranchUntaken are resolved at first execution of that
	// control-flow edge; -1 means "unresolved". They index into the owning
	// Block's Succs slice, not into Insns, so eviction/relinking never has
	// to rewrite Insn records, only the Succs table.
	BranchTaken   int
	BranchUntaken int

	// Next is the following Insn within the block, in decode order; nil at
	// the last instruction of the block.
	Next *Insn
}

// IsTerminator reports whether op ends a basic block.
func IsTerminator(op Op) bool {
	switch op {
	case OpJAL, OpJALR,
		OpBEQ, OpBNE, OpBLT, OpBGE, OpBLTU, OpBGEU,
		OpECALL, OpEBREAK, OpFENCEI, OpSFENCEVMA, OpMRET,
		OpFusedSyscall, OpFusedDecBranch:
		return true
	default:
		return false
	}
}
