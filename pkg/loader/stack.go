package loader

import "encoding/binary"

// SetupStack lays out argc/argv/envp/auxv on the guest stack following the
// Linux/newlib convention (§6 "Argv/argc/envp layout follows the
// Linux/newlib convention on the stack") and returns the resulting stack
// pointer. top is the guest address one past the top of stack memory.
func SetupStack(mem []byte, top uint32, argv, envp []string) uint32 {
	sp := top

	// Copy string bytes (NUL-terminated), highest address first, and
	// record each one's guest address for the pointer table below.
	writeStr := func(s string) uint32 {
		n := uint32(len(s)) + 1
		sp -= n
		copy(mem[sp:], s)
		mem[sp+uint32(len(s))] = 0
		return sp
	}

	envAddrs := make([]uint32, len(envp))
	for i := len(envp) - 1; i >= 0; i-- {
		envAddrs[i] = writeStr(envp[i])
	}
	argAddrs := make([]uint32, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		argAddrs[i] = writeStr(argv[i])
	}

	// Align down to a 16-byte boundary before the pointer tables, matching
	// the ABI's stack-alignment-at-entry requirement.
	sp &^= 15

	// auxv: a single AT_NULL terminator (no interpreter, no vDSO, no
	// additional auxiliary vectors needed for a static newlib binary).
	sp -= 8
	binary.LittleEndian.PutUint32(mem[sp:], 0) // AT_NULL
	binary.LittleEndian.PutUint32(mem[sp+4:], 0)

	// envp[] NULL terminator, then envp[] pointers, high to low.
	sp -= 4
	binary.LittleEndian.PutUint32(mem[sp:], 0)
	for i := len(envAddrs) - 1; i >= 0; i-- {
		sp -= 4
		binary.LittleEndian.PutUint32(mem[sp:], envAddrs[i])
	}

	// argv[] NULL terminator, then argv[] pointers, high to low.
	sp -= 4
	binary.LittleEndian.PutUint32(mem[sp:], 0)
	for i := len(argAddrs) - 1; i >= 0; i-- {
		sp -= 4
		binary.LittleEndian.PutUint32(mem[sp:], argAddrs[i])
	}

	// argc.
	sp -= 4
	binary.LittleEndian.PutUint32(mem[sp:], uint32(len(argv)))

	return sp
}
