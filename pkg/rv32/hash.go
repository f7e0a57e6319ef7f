package rv32

// Hash64 is the block-cache key hash: PC mixed with SATP when address
// translation is active, matching rv32emu's cache.c multiplicative hash
// (supplemented from utils.c's rv_hash — see SPEC_FULL.md) rather than a
// bespoke scheme.
func Hash64(pc uint32, satp uint32) uint64 {
	h := uint64(pc) * 2654435761
	if satp != 0 {
		h ^= uint64(satp) * 0x9e3779b97f4a7c15
	}
	return h
}
