package guestmem

import (
	"fmt"
	"io"
	"time"

	"github.com/vex32/rv32core/pkg/rv32"
)

// newlib syscall numbers, matching the subset rv32emu's syscall.c supports
// for a bare userland target (original_source/src/syscall.c
// __SYSCALL_LIST_BASE).
const (
	sysClose        = 57
	sysLseek        = 62
	sysRead         = 63
	sysWrite        = 64
	sysFstat        = 80
	sysExit         = 93
	sysGettimeofday = 169
	sysBrk          = 214
)

// a0-a7 are the argument/syscall-number register indices in the RISC-V
// calling convention (x10-x17).
const (
	regA0 = 10
	regA1 = 11
	regA2 = 12
	regA7 = 17
)

// NewlibSyscalls implements Syscalls against a host io.Writer for fd 1/2
// and a fixed brk heap pointer, covering the small subset of newlib
// syscalls a bare-metal RISC-V test binary actually issues (§6 CLI surface
// "exit code reflects the guest's exit syscall argument").
type NewlibSyscalls struct {
	Stdout   io.Writer
	Stderr   io.Writer
	ExitCode int
	Exited   bool
	brk      uint32
}

// NewNewlibSyscalls returns a NewlibSyscalls with the heap break initially
// set to heapStart.
func NewNewlibSyscalls(stdout, stderr io.Writer, heapStart uint32) *NewlibSyscalls {
	return &NewlibSyscalls{Stdout: stdout, Stderr: stderr, brk: heapStart}
}

// Ecall implements Syscalls.
func (s *NewlibSyscalls) Ecall(cpu *rv32.Cpu) {
	switch cpu.X[regA7] {
	case sysExit:
		s.Exited = true
		s.ExitCode = int(int32(cpu.X[regA0]))
		cpu.Halt = true
	case sysWrite:
		fd, addr, n := cpu.X[regA0], cpu.X[regA1], cpu.X[regA2]
		w := s.writerFor(fd)
		if w == nil {
			cpu.X[regA0] = ^uint32(0)
			return
		}
		written, err := s.write(cpu, w, addr, n)
		if err != nil {
			cpu.X[regA0] = ^uint32(0)
			return
		}
		cpu.X[regA0] = uint32(written)
	case sysBrk:
		if inc := cpu.X[regA0]; inc != 0 {
			s.brk = inc
		}
		cpu.X[regA0] = s.brk
	case sysClose, sysLseek, sysFstat:
		cpu.X[regA0] = 0
	case sysGettimeofday:
		// No guest-visible struct timeval write target is modeled; report
		// success with a zeroed result, matching a headless test harness
		// that doesn't inspect wall-clock time.
		_ = time.Now()
		cpu.X[regA0] = 0
	case sysRead:
		cpu.X[regA0] = 0
	default:
		cpu.X[regA0] = ^uint32(0)
	}
}

// Ebreak implements Syscalls: EBREAK has no newlib-level meaning here, the
// CSR/trap unit's own breakpoint handling (software breakpoint list) is
// where debugger integration lives.
func (s *NewlibSyscalls) Ebreak(cpu *rv32.Cpu) {}

func (s *NewlibSyscalls) writerFor(fd uint32) io.Writer {
	switch fd {
	case 1:
		return s.Stdout
	case 2:
		return s.Stderr
	default:
		return nil
	}
}

func (s *NewlibSyscalls) write(cpu *rv32.Cpu, w io.Writer, addr, n uint32) (int, error) {
	mem, ok := cpu.IO.(*Memory)
	if !ok {
		return 0, fmt.Errorf("guestmem: write syscall requires *Memory backing")
	}
	if err := mem.bounds(addr, n); err != nil {
		return 0, err
	}
	return w.Write(mem.bytes[addr : addr+n])
}
