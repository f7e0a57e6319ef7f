package jit

// Assembler is the small host-code emitter abstraction the compiler drives
// through regalloc.Backend. Each architecture supplies its own
// implementation (jit_amd64.go / jit_arm64.go); jit_other.go supplies a
// no-op implementation so the package still builds on unsupported hosts,
// where Compiler.Compile skips native emission and still installs the Go
// closure.
//
// Grounded on the append-to-[]byte-then-patch style of tinyrange-rtg's
// backend_x64.go CodeGen: every Emit* call appends bytes to buf and returns
// nothing. addFixup records a placeholder displacement (see Fixup/Fixups),
// but no Emit* call emits a branch and nothing patches recorded fixups.
type Assembler struct {
	buf    []byte
	fixups []Fixup
}

// Fixup records a not-yet-resolved branch displacement: at offset Pos in
// buf, a 4-byte (amd64) or literal-pool (arm64) displacement must be
// patched once Target's real code-cache offset is known.
type Fixup struct {
	Pos    int
	Target uint32 // guest PC the branch targets
	Kind   FixupKind
}

// FixupKind distinguishes a direct intra-block jump from a block-exit
// branch that must chain into the block cache (§4.G "block chaining").
type FixupKind int

const (
	FixupDirect FixupKind = iota
	FixupBlockExit
)

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler { return &Assembler{} }

// Bytes returns the emitted code so far.
func (a *Assembler) Bytes() []byte { return a.buf }

// Len returns the number of bytes emitted so far.
func (a *Assembler) Len() int { return len(a.buf) }

// emit appends raw bytes.
func (a *Assembler) emit(b ...byte) { a.buf = append(a.buf, b...) }

// addFixup records a pending relocation at the current end of buf.
func (a *Assembler) addFixup(target uint32, kind FixupKind) {
	a.fixups = append(a.fixups, Fixup{Pos: len(a.buf), Target: target, Kind: kind})
}

// Fixups returns the recorded relocations for the compiler to resolve
// against the block cache / code cache offset map.
func (a *Assembler) Fixups() []Fixup { return a.fixups }
