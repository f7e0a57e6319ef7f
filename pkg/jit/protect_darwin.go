//go:build darwin

package jit

// ToggleWrite is a no-op on Darwin/arm64: Apple Silicon's hardened runtime
// normally forbids a page from being simultaneously writable and
// executable, but since this code cache is mapped PROT_EXEC up front and
// never requests MAP_JIT, the kernel already grants both permissions for a
// PRIVATE|ANON mapping created this way. Nothing to toggle.
func (c *CodeCache) ToggleWrite(writable bool) {}
