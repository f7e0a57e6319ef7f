package rv32

// DecodeC decodes one 16-bit compressed (C extension) instruction. It
// returns (insn, true) on success, (zero, false) if illegal. Dispatch is by
// (funct3<<2)|op over the low two bits and bits 15:13, following the same
// table shape as LMMilewski's rvc.go (adapted from that file's switch over
// `in>>11&0x1c | in&0x3` into our Insn/Op representation).
func DecodeC(pc uint32, w uint16) (Insn, bool) {
	in := Insn{PC: pc, Len: 2, BranchTaken: -1, BranchUntaken: -1}

	if w == 0 {
		return Insn{}, false // illegal: all-zero 16-bit word
	}

	switch w>>11&0x1c | w&0x3 {
	case 0x00: // C.ADDI4SPN
		imm, rd := decodeCIW(w)
		imm = imm&0xc0>>2 | imm&0x3c<<4 | imm&0x2<<1 | imm&0x1<<3
		if imm == 0 {
			return Insn{}, false // RES, nzuimm=0 is illegal (§4.A)
		}
		in.Op, in.Rd, in.Rs1, in.Imm = OpADDI, rd, 2, int32(imm)
	case 0x08: // C.LW
		imm, r1, r2 := decodeCL(w)
		imm = (imm<<5 | imm) & 0x3e << 1
		in.Op, in.Rd, in.Rs1, in.Imm = OpLW, r2, r1, int32(imm)
	case 0x18: // C.SW
		imm, r1, r2 := decodeCS(w)
		imm = (imm<<5 | imm) << 1 & 0x7c
		in.Op, in.Rs1, in.Rs2, in.Imm = OpSW, r1, r2, int32(imm)
	case 0x01: // C.NOP / C.ADDI (hint when rd=0)
		imm, rd := decodeCI(w)
		in.Op, in.Rd, in.Rs1, in.Imm = OpADDI, rd, rd, signExtend16(imm, 5)
		if rd == 0 {
			in.Op = OpNOP // reserved hint code-point canonicalized to NOP (§4.A)
		}
	case 0x05: // C.JAL
		imm := decodeCJImm(w)
		in.Op, in.Rd, in.Imm = OpJAL, 1, imm
	case 0x09: // C.LI (hint when rd=0, still canonicalized below)
		imm, rd := decodeCI(w)
		in.Op, in.Rd, in.Rs1, in.Imm = OpADDI, rd, 0, signExtend16(imm, 5)
		if rd == 0 {
			in.Op = OpNOP
		}
	case 0x0d: // C.ADDI16SP / C.LUI
		imm, rd := decodeCI(w)
		if rd == 2 {
			v := imm&0x20<<4 | imm&0x10 | imm&0x8<<3 | imm&0x6<<6 | imm&0x1<<5
			if v == 0 {
				return Insn{}, false // RES, nzimm=0
			}
			in.Op, in.Rd, in.Rs1, in.Imm = OpADDI, 2, 2, signExtend16(v, 10)
			return in, true
		}
		if imm == 0 {
			return Insn{}, false // RES, nzimm=0
		}
		if rd == 0 {
			in.Op = OpNOP // HINT, rd=0
			return in, true
		}
		in.Op, in.Rd, in.Imm = OpLUI, rd, signExtend16(imm<<12, 18)
	case 0x11:
		switch w >> 10 & 0x3 {
		case 0x00: // C.SRLI
			imm, r := decodeShiftCB(w)
			in.Op, in.Rd, in.Rs1, in.Shamt = OpSRLI, r, r, uint8(imm)
			return in, true
		case 0x01: // C.SRAI
			imm, r := decodeShiftCB(w)
			in.Op, in.Rd, in.Rs1, in.Shamt = OpSRAI, r, r, uint8(imm)
			return in, true
		case 0x02: // C.ANDI
			imm, r := decodeShiftCB(w)
			in.Op, in.Rd, in.Rs1, in.Imm = OpANDI, r, r, signExtend16(imm, 6)
			return in, true
		}
		_, r1, r2 := decodeCS(w)
		switch w>>8&0x1c | w>>5&0x3 {
		case 0xc:
			in.Op, in.Rd, in.Rs1, in.Rs2 = OpSUB, r1, r1, r2
		case 0xd:
			in.Op, in.Rd, in.Rs1, in.Rs2 = OpXOR, r1, r1, r2
		case 0xe:
			in.Op, in.Rd, in.Rs1, in.Rs2 = OpOR, r1, r1, r2
		case 0xf:
			in.Op, in.Rd, in.Rs1, in.Rs2 = OpAND, r1, r1, r2
		default:
			return Insn{}, false
		}
	case 0x15: // C.J
		imm := decodeCJImm(w)
		in.Op, in.Rd, in.Imm = OpJAL, 0, imm
	case 0x19: // C.BEQZ
		imm, r := decodeCBBranch(w)
		in.Op, in.Rs1, in.Rs2, in.Imm = OpBEQ, r, 0, imm
	case 0x1d: // C.BNEZ
		imm, r := decodeCBBranch(w)
		in.Op, in.Rs1, in.Rs2, in.Imm = OpBNE, r, 0, imm
	case 0x02: // C.SLLI (HINT when rd=0)
		imm, rd := decodeCI(w)
		if imm&0x20 != 0 {
			return Insn{}, false // shamt[5]=1 illegal in RV32
		}
		if rd == 0 {
			in.Op = OpNOP
			return in, true
		}
		in.Op, in.Rd, in.Rs1, in.Shamt = OpSLLI, rd, rd, uint8(imm)
	case 0x0a: // C.LWSP (RES, rd=0)
		imm, rd := decodeCI(w)
		if rd == 0 {
			return Insn{}, false
		}
		imm = (imm<<6 | imm) & 0xfc
		in.Op, in.Rd, in.Rs1, in.Imm = OpLW, rd, 2, int32(imm)
	case 0x12:
		r1, r2 := decodeCR(w)
		b := w & 0x1000
		switch {
		case b == 0 && r2 == 0: // C.JR (RES, rs1=0)
			if r1 == 0 {
				return Insn{}, false
			}
			in.Op, in.Rd, in.Rs1 = OpJALR, 0, r1
		case b == 0: // C.MV
			in.Op, in.Rd, in.Rs1, in.Rs2 = OpADD, r1, 0, r2
		case b != 0 && r1 == 0 && r2 == 0: // C.EBREAK
			in.Op = OpEBREAK
		case b != 0 && r2 == 0: // C.JALR
			in.Op, in.Rd, in.Rs1 = OpJALR, 1, r1
		default: // C.ADD (HINT when rd=0)
			if r1 == 0 {
				in.Op = OpNOP
				return in, true
			}
			in.Op, in.Rd, in.Rs1, in.Rs2 = OpADD, r1, r1, r2
		}
	case 0x1a: // C.SWSP
		imm, r := decodeCSS(w)
		imm = (imm<<6 | imm) & 0xfc
		in.Op, in.Rs1, in.Rs2, in.Imm = OpSW, 2, r, int32(imm)
	default:
		return Insn{}, false
	}

	return in, true
}

func decodeCR(w uint16) (r1, r2 uint8)   { return uint8(w >> 7 & 0x1f), uint8(w >> 2 & 0x1f) }
func decodeCI(w uint16) (imm uint32, r uint8) {
	return uint32(w>>7&0x20 | w>>2&0x1f), uint8(w >> 7 & 0x1f)
}
func decodeCSS(w uint16) (imm uint32, r uint8) {
	return uint32(w >> 7 & 0x3f), uint8(w >> 2 & 0x1f)
}

const rvcRegOffset = 8

func decodeCIW(w uint16) (imm uint32, r uint8) {
	return uint32(w >> 5 & 0xff), uint8(w>>2&0x7) + rvcRegOffset
}
func decodeCL(w uint16) (imm uint32, r1, r2 uint8) {
	return uint32(w>>8&0x1c | w>>5&0x3), uint8(w>>7&0x7) + rvcRegOffset, uint8(w>>2&0x7) + rvcRegOffset
}
func decodeCS(w uint16) (imm uint32, r1, r2 uint8) {
	return uint32(w>>8&0x1c | w>>5&0x3), uint8(w>>7&0x7) + rvcRegOffset, uint8(w>>2&0x7) + rvcRegOffset
}
func decodeCB(w uint16) (imm uint32, r uint8) {
	return uint32(w>>5&0xe0 | w>>2&0x1f), uint8(w>>7&0x7) + rvcRegOffset
}
func decodeShiftCB(w uint16) (shamt uint32, r uint8) {
	return uint32(w&0x1000>>7 | w>>2&0x1f), uint8(w>>7&0x7) + rvcRegOffset
}
func decodeCJRaw(w uint16) uint32 { return uint32(w>>2) & 0x7ff }

func decodeCJImm(w uint16) int32 {
	imm := decodeCJRaw(w)
	v := imm&0x200>>5 | imm&0x40<<4 | imm&0x5a0<<1 | imm&0x10<<3 | imm&0xe | imm&1<<5
	return signExtend16(v, 12)
}

func decodeCBBranch(w uint16) (imm int32, r uint8) {
	raw, rr := decodeCB(w)
	v := raw&0x80<<1 | raw&0x60>>2 | raw&0x18<<3 | raw&0x6 | raw&0x1<<5
	return signExtend16(v, 9), rr
}

func signExtend16(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
