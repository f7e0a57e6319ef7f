package regalloc

// Binding is one host-register slot's current state (§4.F).
type Binding struct {
	HostReg  int  // fixed physical register id
	GuestReg int  // bound guest register, or -1 if unbound
	Dirty    bool // host copy differs from Cpu.X[guest]
	Alive    bool // guest value still wanted before end of block
}

// Backend is how the Allocator talks to the JIT code emitter: Allocator
// never writes bytes itself, it only decides which guest register is bound
// to which host register and when a spill/reload must be emitted (§4.F,
// §9 "Register allocator state": "a fixed-size array of records keyed by
// host-register id, not a map").
type Backend interface {
	// EmitLoad emits code that materializes Cpu.X[guest] into host.
	EmitLoad(host int, guest int)
	// EmitStore emits code that writes host back to Cpu.X[guest].
	EmitStore(host int, guest int)
	// EmitZero emits code that materializes an immediate 0 into host,
	// without touching memory (used for guest register 0).
	EmitZero(host int)
}

// Allocator is the tier-1 JIT's per-compile host-register allocator. It is
// rebuilt once per block compilation, matching the liveness pass's
// granularity (§9: "rebuilt per block, not per instruction").
type Allocator struct {
	backend  Backend
	bindings []Binding
	live     *Liveness
}

// New returns an Allocator over n host registers, with liveness information
// for the block about to be compiled.
func New(backend Backend, n int, live *Liveness) *Allocator {
	a := &Allocator{backend: backend, live: live}
	a.bindings = make([]Binding, n)
	for i := range a.bindings {
		a.bindings[i] = Binding{HostReg: i, GuestReg: -1}
	}
	return a
}

// Load returns the host register bound to guest r, loading Cpu.X[r] if
// necessary. Guest register 0 always materializes an immediate 0 and is
// never marked dirty (§3 "x[0] is never dirty and never stored back", §4.F).
func (a *Allocator) Load(r int) int {
	if r == 0 {
		return a.mapZero()
	}
	if i := a.find(r); i >= 0 {
		return a.bindings[i].HostReg
	}
	i := a.pickVictim(nil)
	a.spillIfDirty(i)
	a.backend.EmitLoad(a.bindings[i].HostReg, r)
	a.bindings[i] = Binding{HostReg: a.bindings[i].HostReg, GuestReg: r, Alive: true}
	return a.bindings[i].HostReg
}

// Map ensures a host register is bound to r (without necessarily loading
// its value — used for a pure write destination) and marks it dirty,
// spilling the farthest-future-use binding if none is free (§4.F "map(r)").
func (a *Allocator) Map(r int) int {
	return a.mapReserved(r, nil)
}

// MapReserved forbids picking keep as the spill victim — used to
// synthesize three-operand ops where rs1/rs2/rd must all be distinct hosts
// (§4.F "map_reserved").
func (a *Allocator) MapReserved(r int, keep int) int {
	return a.mapReserved(r, []int{keep})
}

// MapReserved2 forbids picking either k1 or k2 as the spill victim
// (§4.F "map_reserved2").
func (a *Allocator) MapReserved2(r int, k1, k2 int) int {
	return a.mapReserved(r, []int{k1, k2})
}

func (a *Allocator) mapReserved(r int, keepHost []int) int {
	if r == 0 {
		return a.mapZero()
	}
	if i := a.find(r); i >= 0 {
		a.bindings[i].Dirty = true
		a.bindings[i].Alive = true
		return a.bindings[i].HostReg
	}
	i := a.pickVictim(keepHost)
	a.spillIfDirty(i)
	a.bindings[i] = Binding{HostReg: a.bindings[i].HostReg, GuestReg: r, Dirty: true, Alive: true}
	return a.bindings[i].HostReg
}

func (a *Allocator) mapZero() int {
	// x0 never occupies a persistent binding slot; materialize into a
	// scratch host register picked the same way a spill victim would be,
	// but never marked dirty or recorded as bound (§4.F invariant).
	i := a.pickVictim(nil)
	a.spillIfDirty(i)
	a.backend.EmitZero(a.bindings[i].HostReg)
	a.bindings[i] = Binding{HostReg: a.bindings[i].HostReg, GuestReg: -1}
	return a.bindings[i].HostReg
}

// StoreBack spills every dirty binding, invoked before any branch, call
// into the host ABI, or trap path, and at block exit (§4.F "store_back").
func (a *Allocator) StoreBack() {
	for i := range a.bindings {
		a.spillIfDirty(i)
	}
}

// RegsRefresh clears Alive for bindings whose liveness is behind idx, run
// after every instruction (§4.F "regs_refresh(idx)").
func (a *Allocator) RegsRefresh(idx int) {
	for i := range a.bindings {
		g := a.bindings[i].GuestReg
		if g < 0 {
			continue
		}
		if a.live.LastUse[g] < idx {
			a.bindings[i].Alive = false
		}
	}
}

func (a *Allocator) find(r int) int {
	for i := range a.bindings {
		if a.bindings[i].GuestReg == r {
			return i
		}
	}
	return -1
}

func (a *Allocator) spillIfDirty(i int) {
	b := &a.bindings[i]
	if b.Dirty && b.GuestReg > 0 {
		a.backend.EmitStore(b.HostReg, b.GuestReg)
	}
	b.Dirty = false
}

// pickVictim returns the index of a free binding, or — if none is free —
// the index whose guest binding has the farthest next use per
// CandidateQueue (farthest-use-first spill selection, §4.F "map(r)").
// excludeHost lists host register ids that must not be chosen (used by
// MapReserved/MapReserved2 to keep rs1/rs2/rd simultaneously distinct,
// §8 "reserve2 guarantees all three are pairwise distinct").
func (a *Allocator) pickVictim(excludeHost []int) int {
	excluded := func(host int) bool {
		for _, h := range excludeHost {
			if h == host {
				return true
			}
		}
		return false
	}

	for i := range a.bindings {
		if a.bindings[i].GuestReg < 0 && !excluded(a.bindings[i].HostReg) {
			return i
		}
	}

	// No free slot: spill the binding whose guest register is farthest in
	// CandidateQueue (i.e. appears earliest in that farthest-use-first
	// ordering) among bindings actually present and not excluded.
	present := make(map[int]int, len(a.bindings))
	for i := range a.bindings {
		if a.bindings[i].GuestReg >= 0 {
			present[a.bindings[i].GuestReg] = i
		}
	}
	for _, g := range a.live.CandidateQueue {
		if i, ok := present[g]; ok && !excluded(a.bindings[i].HostReg) {
			return i
		}
	}
	// Fallback: should not happen with N >= len(excludeHost)+1, but return
	// any non-excluded slot to avoid a panic on a pathological block.
	for i := range a.bindings {
		if !excluded(a.bindings[i].HostReg) {
			return i
		}
	}
	return 0
}
