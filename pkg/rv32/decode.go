package rv32

// Decode decodes one 32-bit uncompressed instruction word at PC pc. It
// returns (insn, true) on success or (zero, false) if the encoding is
// illegal; the block builder (see builder.go) converts a false return into
// an illegal_instruction trap at pc (§4.A, §7).
//
// Bits 6:2 of the word select a format handler exactly as they do in
// LMMilewski's decode.go (baseOpcode lookup); funct3/funct7 sub-dispatch
// within each format the same way.
func Decode(pc uint32, w uint32) (Insn, bool) {
	in := Insn{PC: pc, Len: 4, BranchTaken: -1, BranchUntaken: -1}

	if w&0x3 != 0x3 {
		return Insn{}, false // not a 32-bit encoding
	}

	opcode := (w >> 2) & 0x1f
	funct3 := (w >> 12) & 0x7
	funct7 := (w >> 25) & 0x7f
	rd := uint8((w >> 7) & 0x1f)
	rs1 := uint8((w >> 15) & 0x1f)
	rs2 := uint8((w >> 20) & 0x1f)

	switch opcode {
	case 0x0d: // LUI
		in.Op, in.Rd, in.Imm = OpLUI, rd, int32(w&0xfffff000)
	case 0x05: // AUIPC
		in.Op, in.Rd, in.Imm = OpAUIPC, rd, int32(w&0xfffff000)
	case 0x1b: // JAL
		in.Op, in.Rd, in.Imm = OpJAL, rd, immJ(w)
	case 0x19: // JALR (I-type)
		if funct3 != 0 {
			return Insn{}, false
		}
		in.Op, in.Rd, in.Rs1, in.Imm = OpJALR, rd, rs1, immI(w)
	case 0x18: // branches (B-type)
		in.Rs1, in.Rs2, in.Imm = rs1, rs2, immB(w)
		switch funct3 {
		case 0x0:
			in.Op = OpBEQ
		case 0x1:
			in.Op = OpBNE
		case 0x4:
			in.Op = OpBLT
		case 0x5:
			in.Op = OpBGE
		case 0x6:
			in.Op = OpBLTU
		case 0x7:
			in.Op = OpBGEU
		default:
			return Insn{}, false
		}
	case 0x00: // loads (I-type)
		in.Rd, in.Rs1, in.Imm = rd, rs1, immI(w)
		switch funct3 {
		case 0x0:
			in.Op = OpLB
		case 0x1:
			in.Op = OpLH
		case 0x2:
			in.Op = OpLW
		case 0x4:
			in.Op = OpLBU
		case 0x5:
			in.Op = OpLHU
		default:
			return Insn{}, false
		}
	case 0x08: // stores (S-type)
		in.Rs1, in.Rs2, in.Imm = rs1, rs2, immS(w)
		switch funct3 {
		case 0x0:
			in.Op = OpSB
		case 0x1:
			in.Op = OpSH
		case 0x2:
			in.Op = OpSW
		default:
			return Insn{}, false
		}
	case 0x04: // I-type ALU
		in.Rd, in.Rs1 = rd, rs1
		switch funct3 {
		case 0x0:
			in.Op, in.Imm = OpADDI, immI(w)
		case 0x2:
			in.Op, in.Imm = OpSLTI, immI(w)
		case 0x3:
			in.Op, in.Imm = OpSLTIU, immI(w)
		case 0x4:
			in.Op, in.Imm = OpXORI, immI(w)
		case 0x6:
			in.Op, in.Imm = OpORI, immI(w)
		case 0x7:
			in.Op, in.Imm = OpANDI, immI(w)
		case 0x1: // SLLI
			if funct7 != 0 { // shamt[5]=1 illegal in RV32 (§4.A canonicalization)
				return Insn{}, false
			}
			in.Op, in.Shamt = OpSLLI, uint8((w>>20)&0x1f)
		case 0x5: // SRLI/SRAI
			if funct7&^0x20 != 0 {
				return Insn{}, false
			}
			in.Shamt = uint8((w >> 20) & 0x1f)
			if funct7 == 0x20 {
				in.Op = OpSRAI
			} else {
				in.Op = OpSRLI
			}
		default:
			return Insn{}, false
		}
	case 0x0c: // R-type ALU / M extension
		in.Rd, in.Rs1, in.Rs2 = rd, rs1, rs2
		key := funct7<<3 | funct3
		switch key {
		case 0x000:
			in.Op = OpADD
		case 0x100:
			in.Op = OpSUB
		case 0x001:
			in.Op = OpSLL
		case 0x002:
			in.Op = OpSLT
		case 0x003:
			in.Op = OpSLTU
		case 0x004:
			in.Op = OpXOR
		case 0x005:
			in.Op = OpSRL
		case 0x105:
			in.Op = OpSRA
		case 0x006:
			in.Op = OpOR
		case 0x007:
			in.Op = OpAND
		case 0x008: // MUL (funct7=1)
			in.Op = OpMUL
		case 0x009:
			in.Op = OpMULH
		case 0x00a:
			in.Op = OpMULHSU
		case 0x00b:
			in.Op = OpMULHU
		case 0x00c:
			in.Op = OpDIV
		case 0x00d:
			in.Op = OpDIVU
		case 0x00e:
			in.Op = OpREM
		case 0x00f:
			in.Op = OpREMU
		default:
			return Insn{}, false
		}
	case 0x03: // MISC-MEM: FENCE / FENCE.I
		switch funct3 {
		case 0x0:
			in.Op = OpFENCE
		case 0x1:
			in.Op = OpFENCEI
		default:
			return Insn{}, false
		}
	case 0x1c: // SYSTEM: ECALL/EBREAK/CSR*/MRET
		switch funct3 {
		case 0x0:
			switch w >> 20 {
			case 0x0:
				in.Op = OpECALL
			case 0x1:
				in.Op = OpEBREAK
			case 0x302:
				in.Op = OpMRET
			case 0x105: // WFI, treated as NOP by this core
				in.Op = OpNOP
			default:
				if (w>>25)&0x7f == 0x09 { // SFENCE.VMA
					in.Op, in.Rs1, in.Rs2 = OpSFENCEVMA, rs1, rs2
				} else {
					return Insn{}, false
				}
			}
		case 0x1, 0x2, 0x3, 0x5, 0x6, 0x7:
			in.Rd, in.Rs1, in.Csr = rd, rs1, uint16(w>>20)
			switch funct3 {
			case 0x1:
				in.Op = OpCSRRW
			case 0x2:
				in.Op = OpCSRRS
			case 0x3:
				in.Op = OpCSRRC
			case 0x5:
				in.Op = OpCSRRWI
			case 0x6:
				in.Op = OpCSRRSI
			case 0x7:
				in.Op = OpCSRRCI
			}
		default:
			return Insn{}, false
		}
	case 0x0b: // AMO (A extension)
		if funct3 != 0x2 {
			return Insn{}, false
		}
		funct5 := funct7 >> 2
		in.Rd, in.Rs1, in.Rs2 = rd, rs1, rs2
		switch funct5 {
		case 0x02:
			in.Op = OpLRW
		case 0x03:
			in.Op = OpSCW
		case 0x01:
			in.Op = OpAMOSWAPW
		case 0x00:
			in.Op = OpAMOADDW
		case 0x0c:
			in.Op = OpAMOANDW
		case 0x08:
			in.Op = OpAMOORW
		case 0x04:
			in.Op = OpAMOXORW
		case 0x10:
			in.Op = OpAMOMINW
		case 0x14:
			in.Op = OpAMOMAXW
		case 0x18:
			in.Op = OpAMOMINUW
		case 0x1c:
			in.Op = OpAMOMAXUW
		default:
			return Insn{}, false
		}
	case 0x01: // LOAD-FP: FLW
		if funct3 != 0x2 {
			return Insn{}, false
		}
		in.Op, in.Rd, in.Rs1, in.Imm = OpFLW, rd, rs1, immI(w)
	case 0x09: // STORE-FP: FSW
		if funct3 != 0x2 {
			return Insn{}, false
		}
		in.Op, in.Rs1, in.Rs2, in.Imm = OpFSW, rs1, rs2, immS(w)
	case 0x14: // OP-FP
		if !decodeOpFP(w, uint8(funct7), rs2, rd, rs1, funct3, &in) {
			return Insn{}, false
		}
	case 0x10, 0x11, 0x12, 0x13: // F4-type fused multiply-add family
		rs3 := uint8((w >> 27) & 0x1f)
		in.Rd, in.Rs1, in.Rs2, in.Rs3 = rd, rs1, rs2, rs3
		switch opcode {
		case 0x10:
			in.Op = OpFMADDS
		case 0x11:
			in.Op = OpFMSUBS
		case 0x12:
			in.Op = OpFNMSUBS
		case 0x13:
			in.Op = OpFNMADDS
		}
	default:
		return Insn{}, false
	}

	// Canonicalization: any op writing x0 becomes NOP (§4.A), except when
	// the write is side-effect bearing (CSR reads, loads that may fault,
	// AMOs) — the RV32 spec still defines x0 as hardwired zero for those,
	// so the canonicalization applies uniformly: the op still executes for
	// its side effects but its register write target is suppressed by the
	// interpreter/JIT always re-zeroing x0 afterwards (§3, §8). We only
	// collapse to a bare NOP for pure-ALU ops with rd=0, matching "Any
	// RV32I op writing x0 is rewritten to NOP".
	if isPureALU(in.Op) && in.Rd == 0 {
		in.Op = OpNOP
	}

	return in, true
}

func isPureALU(op Op) bool {
	switch op {
	case OpLUI, OpAUIPC, OpADDI, OpSLTI, OpSLTIU, OpXORI, OpORI, OpANDI,
		OpSLLI, OpSRLI, OpSRAI, OpADD, OpSUB, OpSLL, OpSLT, OpSLTU,
		OpXOR, OpSRL, OpSRA, OpOR, OpAND:
		return true
	default:
		return false
	}
}

func decodeOpFP(w uint32, funct7, rs2, rd, rs1 uint8, funct3 uint32, in *Insn) bool {
	in.Rd, in.Rs1, in.Rs2 = rd, rs1, rs2
	switch funct7 {
	case 0x00:
		in.Op = OpFADDS
	case 0x04:
		in.Op = OpFSUBS
	case 0x08:
		in.Op = OpFMULS
	case 0x0c:
		in.Op = OpFDIVS
	case 0x2c:
		if rs2 != 0 {
			return false
		}
		in.Op = OpFSQRTS
	case 0x10:
		switch funct3 {
		case 0:
			in.Op = OpFSGNJS
		case 1:
			in.Op = OpFSGNJNS
		case 2:
			in.Op = OpFSGNJXS
		default:
			return false
		}
	case 0x14:
		switch funct3 {
		case 0:
			in.Op = OpFMINS
		case 1:
			in.Op = OpFMAXS
		default:
			return false
		}
	case 0x60:
		switch rs2 {
		case 0:
			in.Op = OpFCVTWS
		case 1:
			in.Op = OpFCVTWUS
		default:
			return false
		}
	case 0x68:
		switch rs2 {
		case 0:
			in.Op = OpFCVTSW
		case 1:
			in.Op = OpFCVTSWU
		default:
			return false
		}
	case 0x70:
		switch funct3 {
		case 0:
			in.Op = OpFMVXW
		case 1:
			in.Op = OpFCLASSS
		default:
			return false
		}
	case 0x78:
		if funct3 != 0 {
			return false
		}
		in.Op = OpFMVWX
	case 0x50:
		switch funct3 {
		case 0:
			in.Op = OpFLES
		case 1:
			in.Op = OpFLTS
		case 2:
			in.Op = OpFEQS
		default:
			return false
		}
	default:
		return false
	}
	return true
}

// Immediate reconstruction, bit-exact per the RV spec formats (§4.A).
func immI(w uint32) int32 { return int32(w) >> 20 }

func immS(w uint32) int32 {
	v := ((w >> 7) & 0x1f) | ((w >> 20) & 0xfe0)
	return signExtend(v, 12)
}

func immB(w uint32) int32 {
	v := ((w >> 7) & 0x1e) | ((w >> 20) & 0x7e0) | ((w << 4) & 0x800) | ((w >> 19) & 0x1000)
	return signExtend(v, 13)
}

func immJ(w uint32) int32 {
	v := ((w >> 20) & 0x7fe) | ((w >> 9) & 0x800) | (w & 0xff000) | ((w >> 11) & 0x100000)
	return signExtend(v, 21)
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
