package rv32

import (
	"encoding/binary"
	"fmt"
)

// testMemory is a minimal flat-array Memory fake shared by this package's
// tests (builder, interp, trap) so each test file doesn't redeclare one.
type testMemory struct {
	bytes      []byte
	misalign   bool
	ecallHits  int
	ebreakHits int
	onEcall    func(cpu *Cpu)
	onEbreak   func(cpu *Cpu)
}

func newTestMemory(size int) *testMemory {
	return &testMemory{bytes: make([]byte, size)}
}

func (m *testMemory) Ifetch(addr uint32) (uint32, error) { return m.ReadW(addr) }

func (m *testMemory) ReadB(addr uint32) (uint8, error) {
	if int(addr) >= len(m.bytes) {
		return 0, fmt.Errorf("testMemory: read out of range at %#x", addr)
	}
	return m.bytes[addr], nil
}
func (m *testMemory) ReadS(addr uint32) (uint16, error) {
	if int(addr)+2 > len(m.bytes) {
		return 0, fmt.Errorf("testMemory: read out of range at %#x", addr)
	}
	return binary.LittleEndian.Uint16(m.bytes[addr:]), nil
}
func (m *testMemory) ReadW(addr uint32) (uint32, error) {
	if int(addr)+4 > len(m.bytes) {
		return 0, fmt.Errorf("testMemory: read out of range at %#x", addr)
	}
	return binary.LittleEndian.Uint32(m.bytes[addr:]), nil
}
func (m *testMemory) WriteB(addr uint32, v uint8) error {
	if int(addr) >= len(m.bytes) {
		return fmt.Errorf("testMemory: write out of range at %#x", addr)
	}
	m.bytes[addr] = v
	return nil
}
func (m *testMemory) WriteS(addr uint32, v uint16) error {
	if int(addr)+2 > len(m.bytes) {
		return fmt.Errorf("testMemory: write out of range at %#x", addr)
	}
	binary.LittleEndian.PutUint16(m.bytes[addr:], v)
	return nil
}
func (m *testMemory) WriteW(addr uint32, v uint32) error {
	if int(addr)+4 > len(m.bytes) {
		return fmt.Errorf("testMemory: write out of range at %#x", addr)
	}
	binary.LittleEndian.PutUint32(m.bytes[addr:], v)
	return nil
}

func (m *testMemory) OnEcall(cpu *Cpu) {
	m.ecallHits++
	if m.onEcall != nil {
		m.onEcall(cpu)
	}
}
func (m *testMemory) OnEbreak(cpu *Cpu) {
	m.ebreakHits++
	if m.onEbreak != nil {
		m.onEbreak(cpu)
	}
}
func (m *testMemory) AllowMisalign() bool { return m.misalign }

func (m *testMemory) putWord(addr uint32, w uint32) { binary.LittleEndian.PutUint32(m.bytes[addr:], w) }
func (m *testMemory) putHalf(addr uint32, w uint16) { binary.LittleEndian.PutUint16(m.bytes[addr:], w) }
