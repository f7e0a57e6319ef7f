package rv32

import "fmt"

// DefaultBlockCapacity bounds the number of instructions per block (§4.B).
const DefaultBlockCapacity = 1024

// PageSize is the guest page size used to decide page-crossing termination
// when MMU/SYSTEM mode is active (§4.B, §3 "SATP").
const PageSize = 4096

// Builder stitches decoded Insns into a Block starting at a given PC,
// fetching through a Memory collaborator (§4.B). Build does not mutate Cpu
// state; it only reads instruction bytes.
type Builder struct {
	Capacity    int
	SystemMode  bool // when true, blocks terminate at a 4 KiB page boundary
}

// NewBuilder returns a Builder with the spec's default capacity.
func NewBuilder() *Builder {
	return &Builder{Capacity: DefaultBlockCapacity}
}

// Build fetches-decodes-appends from pc until a terminator, the capacity
// limit, or (SystemMode only) a page boundary is reached (§4.B).
func (bd *Builder) Build(pc uint32, mem Memory) (*Block, error) {
	blk := &Block{PCStart: pc}
	cur := pc
	cap := bd.Capacity
	if cap <= 0 {
		cap = DefaultBlockCapacity
	}

	for len(blk.Insns) < cap {
		if bd.SystemMode && len(blk.Insns) > 0 && (cur>>12) != (pc>>12) {
			blk.PageTerminated = true
			break
		}

		w, err := mem.Ifetch(cur)
		if err != nil {
			return nil, fmt.Errorf("rv32: ifetch at %#x: %w", cur, err)
		}

		var in Insn
		var ok bool
		if w&0x3 == 0x3 {
			in, ok = Decode(cur, w)
		} else {
			in, ok = DecodeC(cur, uint16(w))
		}
		if !ok {
			// Illegal instruction: the block ends here with a synthetic
			// trap instruction so the interpreter/JIT can raise the trap
			// at execution time (§4.A, §7).
			trap := &Insn{Op: OpInvalid, PC: cur, Len: 4, BranchTaken: -1, BranchUntaken: -1}
			if w&0x3 != 0x3 {
				trap.Len = 2
			}
			if len(blk.Insns) > 0 {
				blk.Insns[len(blk.Insns)-1].Next = trap
			}
			blk.Insns = append(blk.Insns, trap)
			blk.CycleCost++
			cur += uint32(trap.Len)
			break
		}

		insnPtr := new(Insn)
		*insnPtr = in
		if len(blk.Insns) > 0 {
			blk.Insns[len(blk.Insns)-1].Next = insnPtr
		}
		blk.Insns = append(blk.Insns, insnPtr)
		blk.CycleCost++
		cur += uint32(in.Len)

		if IsTerminator(in.Op) {
			break
		}
	}

	if len(blk.Insns) == 0 {
		return nil, fmt.Errorf("rv32: built an empty block at %#x", pc)
	}
	blk.PCEnd = cur
	return blk, nil
}
