package rv32

import "time"

// CSR addresses the core recognizes. Indices below 0xc00 are writable;
// 0xc00 and above are read-only (§4.I), matching the CSR numbering used by
// tinyrange-cc's rv64 core (CSRCycle/CSRTime/...) scaled down to the RV32
// M-mode subset this spec calls for.
const (
	CsrFflags   uint16 = 0x001
	CsrFrm      uint16 = 0x002
	CsrFcsr     uint16 = 0x003
	CsrMstatus  uint16 = 0x300
	CsrMisa     uint16 = 0x301
	CsrMie      uint16 = 0x304
	CsrMtvec    uint16 = 0x305
	CsrMscratch uint16 = 0x340
	CsrMepc     uint16 = 0x341
	CsrMcause   uint16 = 0x342
	CsrMtval    uint16 = 0x343
	CsrMip      uint16 = 0x344
	CsrCycle    uint16 = 0xc00
	CsrTime     uint16 = 0xc01
	CsrInstret  uint16 = 0xc02
	CsrMhartid  uint16 = 0xf14
)

// MisaRV32IMAFC is the misa value advertised by this core: RV32 (MXL=1) with
// extensions I, M, A, F, C set.
const MisaRV32IMAFC = (1 << 8) | (1 << 12) | (1 << 0) | (1 << 5) | (1 << 2)

// Exception causes, matching mcause encoding (§4.I, §7).
const (
	CauseInsnMisaligned  uint32 = 0
	CauseIllegalInsn     uint32 = 2
	CauseBreakpoint      uint32 = 3
	CauseLoadMisaligned  uint32 = 4
	CauseStoreMisaligned uint32 = 6
	CauseEcallM          uint32 = 11
)

// Cpu is the guest architectural state (§3).
type Cpu struct {
	X  [32]uint32
	PC uint32

	HasF  bool
	F     [32]uint32 // single-precision values stored bit-for-bit in uint32
	Fcsr  uint32      // fflags[4:0] | frm[7:5]

	csr map[uint16]uint32

	Cycle       uint64
	timeOffset  time.Time

	Halt bool

	// Satp is consulted only when address translation is active; the block
	// cache mixes it into its key (§3 "Block cache").
	Satp uint32

	// Breakpoints is a sorted list of guest PCs with a software breakpoint
	// set, independent of the EBREAK instruction trap (supplemented from
	// rv32emu's breakpoint.c — see SPEC_FULL.md). AtBreakpoint looks a PC
	// up; the driver's dispatch loop does not consult the list.
	Breakpoints []uint32

	IO Memory
}

// NewCpu returns a Cpu with x0 zeroed, misa populated, and the wall clock
// offset anchored to the current time so the `time` CSR reads a monotonic
// RISC-V-style cycle-derived clock (§3 "Hart state").
func NewCpu(io Memory) *Cpu {
	c := &Cpu{
		csr:        make(map[uint16]uint32),
		timeOffset: time.Now(),
		IO:         io,
	}
	c.csr[CsrMisa] = MisaRV32IMAFC
	c.csr[CsrMhartid] = 0
	return c
}

// ForceZero re-zeroes x0; every writer of X[0] MUST call this (or equivalent)
// before the next instruction observes it (§3, §8).
func (c *Cpu) ForceZero() {
	c.X[0] = 0
}

// ReadCSR reads a CSR. Access to an undefined CSR silently returns 0 (§7).
func (c *Cpu) ReadCSR(csr uint16) uint32 {
	switch csr {
	case CsrCycle:
		return uint32(c.Cycle)
	case CsrInstret:
		return uint32(c.Cycle)
	case CsrTime:
		return uint32(time.Since(c.timeOffset).Nanoseconds() / 1000)
	case CsrFflags:
		return c.Fcsr & 0x1f
	case CsrFrm:
		return (c.Fcsr >> 5) & 0x7
	case CsrFcsr:
		return c.Fcsr & 0xff
	default:
		return c.csr[csr]
	}
}

// WriteCSR writes a CSR. Writes to read-only (>= 0xc00) CSRs are ignored
// (§4.I, §7): "CSR access to undefined: Return 0 read; ignore write".
func (c *Cpu) WriteCSR(csr uint16, v uint32) {
	if csr >= 0xc00 {
		return
	}
	switch csr {
	case CsrFflags:
		c.Fcsr = (c.Fcsr &^ 0x1f) | (v & 0x1f)
	case CsrFrm:
		c.Fcsr = (c.Fcsr &^ (0x7 << 5)) | ((v & 0x7) << 5)
	case CsrFcsr:
		c.Fcsr = v & 0xff
	default:
		c.csr[csr] = v
	}
}

// Writable reports whether csr is in the writable range (§4.I: csr < 0xc00).
func Writable(csr uint16) bool {
	return csr < 0xc00
}
