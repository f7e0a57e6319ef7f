package rv32

// Block is a straight-line IR segment (§3 "Basic block").
//
// Insns is always non-empty; Last is either a control-flow terminator or
// PageTerminated is set (MMU builds only, §4.B). Succs holds the resolved
// successor blocks for BranchTaken/BranchUntaken edges, indexed by the small
// integers stored in the terminating Insn's BranchTaken/BranchUntaken
// fields; this indirection is what lets the driver re-resolve a stale edge
// after a cache eviction without rewriting the Insn (§9 "Cyclic block
// references").
type Block struct {
	PCStart, PCEnd uint32
	Insns          []*Insn
	PageTerminated bool
	CycleCost      uint32

	// Succs[i] is the successor block for edge i (0 = taken, 1 = untaken),
	// or nil if unresolved. Re-resolved lazily by the driver against the
	// block cache the first time that edge executes (§4.B, §4.E).
	Succs [2]*Block

	// Tier-1 fields (§3 "Lifecycle").
	Hot           bool
	Invocations   uint32
	NativeOffset  uint32
	Predict       *Block

	// Tier-2 fields.
	Hot2     bool
	Compiled bool
	NativeFn func(*Cpu)

	// Satp ties this block to an address-translation context; zero when
	// translation is inactive.
	Satp uint32

	// Key is the block-cache key this block is stored under.
	Key uint64
}

// Last returns the terminating instruction of the block, or nil for an
// (invalid) empty block.
func (b *Block) Last() *Insn {
	if len(b.Insns) == 0 {
		return nil
	}
	return b.Insns[len(b.Insns)-1]
}
