package loader

import (
	"encoding/binary"
	"testing"
)

const (
	ehdrSize = 52
	phdrSize = 32
	shdrSize = 40
)

// putELFHeader writes a minimal ELF32-LE header into buf[0:52].
func putELFHeader(buf []byte, entry, phoff, shoff uint32, phnum, shnum uint16) {
	le := binary.LittleEndian
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = elfClass32
	buf[5] = elfDataLSB
	buf[6] = 1 // EI_VERSION
	le.PutUint16(buf[18:20], emRISCV)
	le.PutUint32(buf[24:28], entry)
	le.PutUint32(buf[28:32], phoff)
	le.PutUint32(buf[32:36], shoff)
	le.PutUint16(buf[42:44], phentsize())
	le.PutUint16(buf[44:46], phnum)
	le.PutUint16(buf[46:48], shentsize())
	le.PutUint16(buf[48:50], shnum)
}

func phentsize() uint16 { return phdrSize }
func shentsize() uint16 { return shdrSize }

func putPhdr(buf []byte, off int, pType, offset, vaddr, filesz, memsz, flags uint32) {
	le := binary.LittleEndian
	p := buf[off:]
	le.PutUint32(p[0:4], pType)
	le.PutUint32(p[4:8], offset)
	le.PutUint32(p[8:12], vaddr)
	le.PutUint32(p[12:16], vaddr) // paddr, unused
	le.PutUint32(p[16:20], filesz)
	le.PutUint32(p[20:24], memsz)
	le.PutUint32(p[24:28], flags)
}

// buildMinimalELF lays out header + one PT_LOAD phdr + payload, with no
// section headers (shoff=0, shnum=0) — sufficient for Parse/CopyInto tests.
func buildMinimalELF(payload []byte, vaddr, memsz, entry uint32) []byte {
	dataOff := ehdrSize + phdrSize
	buf := make([]byte, dataOff+len(payload))
	putELFHeader(buf, entry, ehdrSize, 0, 1, 0)
	putPhdr(buf, ehdrSize, ptLoad, uint32(dataOff), vaddr, uint32(len(payload)), memsz, 0x5)
	copy(buf[dataOff:], payload)
	return buf
}

func TestParseRejectsNonELFMagic(t *testing.T) {
	_, err := Parse([]byte("not an elf at all, just junk bytes here"))
	if err != ErrNotELF {
		t.Fatalf("err = %v, want ErrNotELF", err)
	}
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	_, err := Parse([]byte{0x7f, 'E', 'L', 'F'})
	if err != ErrNotELF {
		t.Fatalf("err = %v, want ErrNotELF for a too-short buffer", err)
	}
}

func TestParseRejectsWrongClass(t *testing.T) {
	buf := buildMinimalELF([]byte{1, 2, 3, 4}, 0x1000, 4, 0x1000)
	buf[4] = 2 // ELFCLASS64
	_, err := Parse(buf)
	if err == nil {
		t.Fatalf("expected an error for ELFCLASS64")
	}
}

func TestParseRejectsWrongMachine(t *testing.T) {
	buf := buildMinimalELF([]byte{1, 2, 3, 4}, 0x1000, 4, 0x1000)
	binary.LittleEndian.PutUint16(buf[18:20], 0x3e) // EM_X86_64
	_, err := Parse(buf)
	if err == nil {
		t.Fatalf("expected an error for a non-RISCV e_machine")
	}
}

func TestParseExtractsEntryAndSegment(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	buf := buildMinimalELF(payload, 0x10000, 16, 0x10000)
	img, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if img.Entry != 0x10000 {
		t.Fatalf("Entry = %#x, want 0x10000", img.Entry)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(img.Segments))
	}
	seg := img.Segments[0]
	if seg.VAddr != 0x10000 || seg.FileSize != 4 || seg.MemSize != 16 {
		t.Fatalf("unexpected segment: %+v", seg)
	}
	if string(seg.Data) != string(payload) {
		t.Fatalf("segment data mismatch: %v", seg.Data)
	}
}

func TestParseSkipsNonLoadSegments(t *testing.T) {
	dataOff := ehdrSize + 2*phdrSize
	payload := []byte{7, 7, 7, 7}
	buf := make([]byte, dataOff+len(payload))
	putELFHeader(buf, 0x1000, ehdrSize, 0, 2, 0)
	putPhdr(buf, ehdrSize, 2 /* PT_DYNAMIC */, uint32(dataOff), 0, 0, 0, 0)
	putPhdr(buf, ehdrSize+phdrSize, ptLoad, uint32(dataOff), 0x1000, uint32(len(payload)), uint32(len(payload)), 0x5)
	copy(buf[dataOff:], payload)

	img, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(img.Segments) != 1 {
		t.Fatalf("expected the PT_DYNAMIC header to be skipped, leaving 1 segment, got %d", len(img.Segments))
	}
}

func TestParseRejectsNoLoadSegments(t *testing.T) {
	buf := make([]byte, ehdrSize)
	putELFHeader(buf, 0x1000, 0, 0, 0, 0)
	_, err := Parse(buf)
	if err == nil {
		t.Fatalf("expected an error when no PT_LOAD segments are present")
	}
}

func TestParseRejectsSegmentExceedingFileSize(t *testing.T) {
	buf := make([]byte, ehdrSize+phdrSize)
	putELFHeader(buf, 0x1000, ehdrSize, 0, 1, 0)
	putPhdr(buf, ehdrSize, ptLoad, uint32(len(buf)), 0x1000, 4096, 4096, 0x5) // offset+filesz way past len(buf)... filesz=4096 but no data
	_, err := Parse(buf)
	if err == nil {
		t.Fatalf("expected an error when a segment's file bytes exceed the buffer")
	}
}

func TestCopyIntoZeroFillsBSS(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	img := &Image{Segments: []Segment{{VAddr: 0x100, FileSize: 4, MemSize: 8, Data: payload}}}
	mem := make([]byte, 4096)
	for i := range mem {
		mem[i] = 0xff // poison, so zero-fill is observable
	}
	if err := img.CopyInto(mem); err != nil {
		t.Fatalf("CopyInto failed: %v", err)
	}
	if string(mem[0x100:0x104]) != string(payload) {
		t.Fatalf("file bytes not copied correctly")
	}
	for i := 0x104; i < 0x108; i++ {
		if mem[i] != 0 {
			t.Fatalf("expected BSS byte at %#x to be zero-filled, got %#x", i, mem[i])
		}
	}
}

func TestCopyIntoRejectsSegmentBeyondMemory(t *testing.T) {
	img := &Image{Segments: []Segment{{VAddr: 0xfffff000, FileSize: 4, MemSize: 4096, Data: []byte{1, 2, 3, 4}}}}
	mem := make([]byte, 4096)
	if err := img.CopyInto(mem); err == nil {
		t.Fatalf("expected an error when a segment's MemSize extends past guest memory")
	}
}
