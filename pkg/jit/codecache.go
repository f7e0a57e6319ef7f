// Package jit implements the tier-1 JIT (§4.G): liveness-driven native code
// generation into an mmap'd, executable code cache, relocation bookkeeping,
// and an indirect-branch history table. No chaining jumps are emitted, the
// relocation list is never resolved, and the compiler never calls Dominant,
// so no target is inlined; see compiler.go for what Block.NativeFn runs.
//
// The executable-memory management is grounded on golang.org/x/sys/unix's
// Mmap/Mprotect, the only mmap-capable dependency anywhere in the retrieval
// pack (pulled in via hanwen-go-fuse's go.mod — see SPEC_FULL.md's DOMAIN
// STACK section); the byte-emission style (append to a []byte, patch fixups
// in a second pass) is grounded on tinyrange-rtg's backend_x64.go CodeGen.
package jit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// stubSize is the fixed size reserved for the shared prologue/epilogue at
// the start of the code cache; Flush resets the cursor to just past it
// (§4.G "flushing resets the cursor to the prologue/epilogue stubs").
const stubSize = 64

// CodeCache is one mmap'd executable region with an offset cursor and a
// size limit (§3 "JIT state").
type CodeCache struct {
	mem    []byte
	offset uint32
	size   uint32

	// ExitLoc is the fixed offset of the shared epilogue every unresolved
	// relocation falls back to (§4.G "exit_loc").
	ExitLoc uint32
}

// NewCodeCache mmaps size bytes RWX (RW+X on platforms without a
// write-xor-execute requirement; see ToggleWrite for the Apple-Silicon
// write/execute split) and reserves the first stubSize bytes for the shared
// stub, of which only a one-byte placeholder return is written at offset 0;
// no prologue is emitted.
func NewCodeCache(size int) (*CodeCache, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap code cache: %w", err)
	}
	c := &CodeCache{mem: mem, size: uint32(size), ExitLoc: 0}
	emitExitStub(c.mem[:stubSize])
	c.offset = stubSize
	return c, nil
}

// Close unmaps the code cache.
func (c *CodeCache) Close() error {
	return unix.Munmap(c.mem)
}

// Reserve reserves n bytes at the current cursor and returns the offset to
// write at, or ok=false if the cache is full and should_flush must be
// raised (§4.G "Code cache management").
func (c *CodeCache) Reserve(n int) (offset uint32, ok bool) {
	if c.offset+uint32(n) > c.size {
		return 0, false
	}
	offset = c.offset
	c.offset += uint32(n)
	return offset, true
}

// Write copies p into the cache at offset.
func (c *CodeCache) Write(offset uint32, p []byte) {
	copy(c.mem[offset:], p)
}

// Bytes exposes the raw backing slice. A block's code starts at
// &c.mem[0] + offset, but Go cannot take an executable function pointer
// into a []byte portably, and this package has no trampoline that calls
// into the cache: the emitted bytes are never executed.
func (c *CodeCache) Bytes() []byte { return c.mem }

// ShouldFlush reports whether the cache has no room for the next reservation
// of n bytes (§4.G "When the cache is full... should_flush is raised").
func (c *CodeCache) ShouldFlush(n int) bool {
	return c.offset+uint32(n) > c.size
}

// Flush resets the cursor to just past the shared stub (§4.G). Callers are
// responsible for clearing offset_map/set and the block cache's hot/hot2
// bits atomically with this call (§3 "Lifecycle").
func (c *CodeCache) Flush() {
	c.offset = stubSize
}

// Offset returns the current cursor position.
func (c *CodeCache) Offset() uint32 { return c.offset }

// emitExitStub writes a placeholder return byte; nothing overwrites it
// later, and no prologue is written on any architecture.
func emitExitStub(buf []byte) {
	buf[0] = 0xc3 // ret in the amd64 encoding, written on every architecture
}
