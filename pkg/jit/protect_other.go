//go:build !darwin

package jit

import "golang.org/x/sys/unix"

// ToggleWrite re-mprotects the code cache between RW and RX. Linux (and
// most other unix targets) happily keep a PRIVATE|ANON mapping both
// writable and executable at once, but some hardened kernels enforce
// W^X; calling this around each block's code emission keeps the cache
// compatible with either policy (§4.G "platform-specific write-protection
// handling").
func (c *CodeCache) ToggleWrite(writable bool) {
	prot := unix.PROT_READ | unix.PROT_EXEC
	if writable {
		prot |= unix.PROT_WRITE
	}
	_ = unix.Mprotect(c.mem, prot)
}
