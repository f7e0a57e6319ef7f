// Package driver implements the CPU driver step loop (§4.J): tiered
// dispatch between the threaded interpreter, tier-1 native code, and
// tier-2 native code, block-chaining via a per-block predicted successor,
// and invocation-threshold-triggered JIT compilation.
package driver

import (
	"sync/atomic"

	"github.com/vex32/rv32core/pkg/blockcache"
	"github.com/vex32/rv32core/pkg/jit"
	"github.com/vex32/rv32core/pkg/jit2"
	"github.com/vex32/rv32core/pkg/rv32"
)

// Tier1Threshold is the interpreter invocation count at which a block is
// handed to the tier-1 JIT (§4.J "jit.compile(blk)").
const Tier1Threshold = 16

// Driver owns the block cache and both JIT tiers and runs the step loop.
type Driver struct {
	Cpu     *rv32.Cpu
	Cache   *blockcache.Cache
	Builder *rv32.Builder

	Tier1 *jit.Compiler
	Tier2 *jit2.Queue

	// JITEnabled gates both tiers; false forces pure interpretation,
	// matching an instruction-set-test harness that wants byte-exact
	// reproducibility with no native-code variance (§4.J "jit_enabled").
	JITEnabled bool

	// Interrupted is polled at block boundaries only (§5 "a single atomic
	// 'interrupted' flag polled by the driver and acted on at block
	// boundaries only").
	Interrupted atomic.Bool

	prev   *rv32.Block
	interp rv32.Interp
}

// New returns a Driver wired to the given Cpu, with the block cache sized
// 2^cacheSizeBits (§4.C "cache_create(size_bits)").
func New(cpu *rv32.Cpu, cacheSizeBits uint) *Driver {
	return &Driver{
		Cpu:     cpu,
		Cache:   blockcache.New(cacheSizeBits),
		Builder: rv32.NewBuilder(),
	}
}

// EnableJIT wires up both JIT tiers; until this is called the driver always
// interprets (§4.J "jit_enabled").
func (d *Driver) EnableJIT(tier1CacheSize int, tier2Workers int) error {
	t1, err := jit.NewCompiler(tier1CacheSize)
	if err != nil {
		return err
	}
	d.Tier1 = t1
	d.Tier2 = jit2.NewQueue(tier2Workers)
	d.JITEnabled = true
	return nil
}

// Close releases JIT resources, if any were allocated.
func (d *Driver) Close() {
	if d.Tier1 != nil {
		_ = d.Tier1.Close()
	}
	if d.Tier2 != nil {
		d.Tier2.Close()
	}
}

// Run executes the step loop until halt, the cycle budget is exhausted, or
// Interrupted is observed at a block boundary, implementing §4.J's
// pseudocode exactly.
func (d *Driver) Run(budget uint64) {
	for !d.Cpu.Halt && d.Cpu.Cycle < budget && !d.Interrupted.Load() {
		blk := d.fetchBlock()

		switch {
		case d.JITEnabled && blk.Hot && blk.NativeFn != nil:
			// The tier-2 inline cache is checked here, before the tier-1
			// closure runs, and a hit is called instead of the closure
			// (§4.H); the emitted tier-1 bytes contain no such check.
			if fn, ok := d.Tier2.Lookup(blk.PCStart); ok {
				blk.Hot2 = true
				fn(d.Cpu)
			} else {
				blk.NativeFn(d.Cpu)
			}
			blk.Invocations++
			if blk.Invocations == jit2.Threshold {
				d.Tier2.Submit(blk, jit2.Compile)
			}
		default:
			d.interp.Run(d.Cpu, blk)
			blk.Invocations++
			if d.JITEnabled && blk.Invocations == Tier1Threshold {
				d.compileTier1(blk)
			}
		}

		d.prev = blk
	}
}

// fetchBlock implements §4.J's fast path: reuse prev's predicted successor
// if its cached start PC still matches, else fall back to the block cache.
func (d *Driver) fetchBlock() *rv32.Block {
	pc := d.Cpu.PC
	if d.prev != nil && d.prev.Predict != nil && d.prev.Predict.PCStart == pc {
		return d.prev.Predict
	}

	key := rv32.Hash64(pc, d.Cpu.Satp)
	if blk, ok := d.Cache.Get(key, true); ok {
		if d.prev != nil {
			d.prev.Predict = blk
		}
		return blk
	}

	blk, err := d.Builder.Build(pc, d.Cpu.IO)
	if err != nil {
		// An unbuildable block (ifetch fault) traps through the normal
		// CSR/trap unit rather than panicking the driver.
		d.Cpu.Trap(rv32.CauseInsnMisaligned, pc, pc, false)
		return &rv32.Block{PCStart: pc}
	}
	rv32.Fuse(blk)
	blk.Key = key
	blk.Satp = d.Cpu.Satp
	d.Cache.Put(key, blk)
	if d.prev != nil {
		d.prev.Predict = blk
	}
	return blk
}

func (d *Driver) compileTier1(blk *rv32.Block) {
	if err := d.Tier1.Compile(blk, d.Cache); err != nil {
		// Cache exhaustion: flush and let every block re-qualify from
		// scratch on its next THRESHOLDth invocation (§4.G "should_flush").
		// The code cache's bytes are about to be overwritten, so every
		// offset and hot/hot2 bit referring to them must be cleared in the
		// same breath (§3 "Lifecycle" — flush and the block cache's hot
		// bits are cleared atomically) rather than left dangling.
		d.Tier1.Cache.Flush()
		d.Tier1.ResetOffsets()
		d.Cache.Clear(func(b *rv32.Block) {
			b.Hot = false
			b.Hot2 = false
			b.Compiled = false
			b.NativeFn = nil
			b.Invocations = 0
		})
		return
	}
	blk.Hot = true
}
