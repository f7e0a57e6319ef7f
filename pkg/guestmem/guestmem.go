// Package guestmem implements a flat-array rv32.Memory: the guest's
// physical address space as one contiguous Go byte slice, little-endian,
// with the ecall/ebreak notification hooks and misalignment policy wired
// to a syscall table the driver binary installs (§6 "Memory I/O callback
// table").
//
// Grounded on bassosimone-risc32/pkg/vm.VM's flat-memory model and its
// sentinel-error style (ErrSIGSEGV/ErrHalted), generalized from RiSC-32's
// word-only access to the byte/half/word access the core's Memory
// interface requires.
package guestmem

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vex32/rv32core/pkg/rv32"
)

// ErrSIGSEGV indicates an out-of-bounds guest physical address.
var ErrSIGSEGV = errors.New("guestmem: segmentation fault")

// Syscalls is the collaborator the driver binary installs to answer
// ecall/ebreak (§6 "on_ecall(cpu), on_ebreak(cpu)"). A nil Syscalls makes
// OnEcall/OnEbreak no-ops, useful for pure ISA-level tests.
type Syscalls interface {
	Ecall(cpu *rv32.Cpu)
	Ebreak(cpu *rv32.Cpu)
}

// Memory is a flat guest physical address space backed by one []byte.
type Memory struct {
	bytes    []byte
	misalign bool
	syscalls Syscalls
}

// New returns a Memory of the given size, zero-filled.
func New(size int, misalign bool, sys Syscalls) *Memory {
	return &Memory{bytes: make([]byte, size), misalign: misalign, syscalls: sys}
}

// Bytes exposes the backing slice for the loader to copy PT_LOAD segments
// into directly.
func (m *Memory) Bytes() []byte { return m.bytes }

func (m *Memory) bounds(addr uint32, n uint32) error {
	if uint64(addr)+uint64(n) > uint64(len(m.bytes)) {
		return fmt.Errorf("%w: address %#x+%d out of range", ErrSIGSEGV, addr, n)
	}
	return nil
}

// Ifetch implements rv32.Memory.
func (m *Memory) Ifetch(addr uint32) (uint32, error) {
	return m.ReadW(addr)
}

// ReadB implements rv32.Memory.
func (m *Memory) ReadB(addr uint32) (uint8, error) {
	if err := m.bounds(addr, 1); err != nil {
		return 0, err
	}
	return m.bytes[addr], nil
}

// ReadS implements rv32.Memory.
func (m *Memory) ReadS(addr uint32) (uint16, error) {
	if err := m.bounds(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.bytes[addr:]), nil
}

// ReadW implements rv32.Memory.
func (m *Memory) ReadW(addr uint32) (uint32, error) {
	if err := m.bounds(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.bytes[addr:]), nil
}

// WriteB implements rv32.Memory.
func (m *Memory) WriteB(addr uint32, v uint8) error {
	if err := m.bounds(addr, 1); err != nil {
		return err
	}
	m.bytes[addr] = v
	return nil
}

// WriteS implements rv32.Memory.
func (m *Memory) WriteS(addr uint32, v uint16) error {
	if err := m.bounds(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.bytes[addr:], v)
	return nil
}

// WriteW implements rv32.Memory.
func (m *Memory) WriteW(addr uint32, v uint32) error {
	if err := m.bounds(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.bytes[addr:], v)
	return nil
}

// OnEcall implements rv32.Memory.
func (m *Memory) OnEcall(cpu *rv32.Cpu) {
	if m.syscalls != nil {
		m.syscalls.Ecall(cpu)
	}
}

// OnEbreak implements rv32.Memory.
func (m *Memory) OnEbreak(cpu *rv32.Cpu) {
	if m.syscalls != nil {
		m.syscalls.Ebreak(cpu)
	}
}

// AllowMisalign implements rv32.Memory.
func (m *Memory) AllowMisalign() bool { return m.misalign }
