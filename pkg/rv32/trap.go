package rv32

import "sort"

// Trap vectors a guest exception, following §4.I exactly:
//
//  1. mepc <- PC of faulting instruction
//  2. mtval <- offending value (address or instruction bits)
//  3. mcause <- exception code
//  4. pc <- mtvec in direct mode, or mtvec + 4*cause in vectored mode
//
// If mtvec is zero (no handler installed), the default handler advances pc
// past the faulting instruction instead, so instruction-set test harnesses
// that never install a trap handler can still make forward progress.
func (c *Cpu) Trap(cause uint32, tval uint32, faultPC uint32, compressed bool) {
	c.WriteCSR(CsrMepc, faultPC)
	c.WriteCSR(CsrMtval, tval)
	c.WriteCSR(CsrMcause, cause)

	mtvec := c.ReadCSR(CsrMtvec)
	if mtvec == 0 {
		step := uint32(4)
		if compressed {
			step = 2
		}
		c.PC = faultPC + step
		return
	}
	if mtvec&0x3 == 1 { // vectored mode: low 2 bits of mtvec select mode
		c.PC = (mtvec &^ 0x3) + 4*cause
	} else {
		c.PC = mtvec &^ 0x3
	}
}

// AddBreakpoint inserts pc into the sorted software-breakpoint list,
// supplemented from rv32emu's breakpoint.c (see SPEC_FULL.md). The list is
// independent of the EBREAK instruction trap; the driver does not consult it.
func (c *Cpu) AddBreakpoint(pc uint32) {
	i := sort.Search(len(c.Breakpoints), func(i int) bool { return c.Breakpoints[i] >= pc })
	if i < len(c.Breakpoints) && c.Breakpoints[i] == pc {
		return
	}
	c.Breakpoints = append(c.Breakpoints, 0)
	copy(c.Breakpoints[i+1:], c.Breakpoints[i:])
	c.Breakpoints[i] = pc
}

// RemoveBreakpoint removes pc from the software-breakpoint list, if present.
func (c *Cpu) RemoveBreakpoint(pc uint32) {
	i := sort.Search(len(c.Breakpoints), func(i int) bool { return c.Breakpoints[i] >= pc })
	if i < len(c.Breakpoints) && c.Breakpoints[i] == pc {
		c.Breakpoints = append(c.Breakpoints[:i], c.Breakpoints[i+1:]...)
	}
}

// AtBreakpoint reports whether pc has a software breakpoint set.
func (c *Cpu) AtBreakpoint(pc uint32) bool {
	i := sort.Search(len(c.Breakpoints), func(i int) bool { return c.Breakpoints[i] >= pc })
	return i < len(c.Breakpoints) && c.Breakpoints[i] == pc
}
