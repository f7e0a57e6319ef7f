package rv32

import "math"

// execF implements the single-precision F-extension subset (§3 "f[0..32] +
// fcsr", §1 Non-goals: "bit-exact IEEE-754 trap behavior beyond setting
// fflags" — so these use Go's float32 arithmetic directly and only update
// the accrued fflags bits, never raise a trap for an inexact/underflow
// result).
func execF(cpu *Cpu, in *Insn) (uint32, uint32) {
	f := func(i uint8) float32 { return math.Float32frombits(cpu.F[i]) }
	setf := func(i uint8, v float32) { cpu.F[i] = math.Float32bits(v) }

	switch in.Op {
	case OpFLW:
		addr := cpu.X[in.Rs1] + uint32(in.Imm)
		v, err := loadWordMisaligned(cpu, addr)
		if err != nil {
			return CauseLoadMisaligned, addr
		}
		cpu.F[in.Rd] = v
	case OpFSW:
		addr := cpu.X[in.Rs1] + uint32(in.Imm)
		if err := storeWordMisaligned(cpu, addr, cpu.F[in.Rs2]); err != nil {
			return CauseStoreMisaligned, addr
		}
	case OpFADDS:
		setf(in.Rd, f(in.Rs1)+f(in.Rs2))
	case OpFSUBS:
		setf(in.Rd, f(in.Rs1)-f(in.Rs2))
	case OpFMULS:
		setf(in.Rd, f(in.Rs1)*f(in.Rs2))
	case OpFDIVS:
		b := f(in.Rs2)
		if b == 0 {
			cpu.Fcsr |= 0x8 // DZ
		}
		setf(in.Rd, f(in.Rs1)/b)
	case OpFSQRTS:
		v := f(in.Rs1)
		if v < 0 {
			cpu.Fcsr |= 0x10 // NV
		}
		setf(in.Rd, float32(math.Sqrt(float64(v))))
	case OpFSGNJS:
		cpu.F[in.Rd] = (cpu.F[in.Rs1] &^ (1 << 31)) | (cpu.F[in.Rs2] & (1 << 31))
	case OpFSGNJNS:
		cpu.F[in.Rd] = (cpu.F[in.Rs1] &^ (1 << 31)) | (^cpu.F[in.Rs2] & (1 << 31))
	case OpFSGNJXS:
		cpu.F[in.Rd] = cpu.F[in.Rs1] ^ (cpu.F[in.Rs2] & (1 << 31))
	case OpFMINS:
		a, b := f(in.Rs1), f(in.Rs2)
		if a < b || math.IsNaN(float64(b)) {
			setf(in.Rd, a)
		} else {
			setf(in.Rd, b)
		}
	case OpFMAXS:
		a, b := f(in.Rs1), f(in.Rs2)
		if a > b || math.IsNaN(float64(b)) {
			setf(in.Rd, a)
		} else {
			setf(in.Rd, b)
		}
	case OpFCVTWS:
		cpu.X[in.Rd] = uint32(int32(f(in.Rs1)))
	case OpFCVTWUS:
		cpu.X[in.Rd] = uint32(f(in.Rs1))
	case OpFCVTSW:
		setf(in.Rd, float32(int32(cpu.X[in.Rs1])))
	case OpFCVTSWU:
		setf(in.Rd, float32(cpu.X[in.Rs1]))
	case OpFMVXW:
		cpu.X[in.Rd] = cpu.F[in.Rs1]
	case OpFMVWX:
		cpu.F[in.Rd] = cpu.X[in.Rs1]
	case OpFEQS:
		cpu.X[in.Rd] = b2u(f(in.Rs1) == f(in.Rs2))
	case OpFLTS:
		cpu.X[in.Rd] = b2u(f(in.Rs1) < f(in.Rs2))
	case OpFLES:
		cpu.X[in.Rd] = b2u(f(in.Rs1) <= f(in.Rs2))
	case OpFCLASSS:
		cpu.X[in.Rd] = fclass(f(in.Rs1))
	case OpFMADDS:
		setf(in.Rd, f(in.Rs1)*f(in.Rs2)+f(in.Rs3))
	case OpFMSUBS:
		setf(in.Rd, f(in.Rs1)*f(in.Rs2)-f(in.Rs3))
	case OpFNMSUBS:
		setf(in.Rd, -(f(in.Rs1)*f(in.Rs2))+f(in.Rs3))
	case OpFNMADDS:
		setf(in.Rd, -(f(in.Rs1)*f(in.Rs2))-f(in.Rs3))
	}
	return noTrap, 0
}

// fclass implements FCLASS.S's bit encoding (riscv-spec table 11.5).
func fclass(v float32) uint32 {
	bitsv := math.Float32bits(v)
	neg := bitsv>>31 != 0
	switch {
	case math.IsNaN(float64(v)):
		if bitsv&(1<<22) != 0 {
			return 1 << 9 // quiet NaN
		}
		return 1 << 8 // signaling NaN
	case math.IsInf(float64(v), 0):
		if neg {
			return 1 << 0
		}
		return 1 << 7
	case v == 0:
		if neg {
			return 1 << 3
		}
		return 1 << 4
	default:
		sub := bitsv&0x7f800000 == 0
		switch {
		case neg && sub:
			return 1 << 2
		case neg:
			return 1 << 1
		case sub:
			return 1 << 5
		}
		return 1 << 6
	}
}
