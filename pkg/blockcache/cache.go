// Package blockcache implements the guest-PC -> Block LRU cache (§4.C).
//
// It is grounded on rv32emu's cache.c/map.c (see original_source/src/cache.h,
// map.c): a fixed-capacity map keyed by a hash of the guest PC (mixed with
// SATP when address translation is active), intrusive LRU eviction, and a
// secondary page index for O(1) invalidation by virtual page.
package blockcache

import (
	"container/list"

	"github.com/vex32/rv32core/pkg/rv32"
)

// entry is the intrusive LRU node. freq tracks invocation count independent
// of LRU-touching reads (supplemented Freq query, see SPEC_FULL.md).
type entry struct {
	key   uint64
	block *rv32.Block
	freq  uint32
}

// Cache is the LRU-managed guest PC -> Block map (§4.C). At most one Block
// exists for a given key: a second Put with the same key replaces the first
// and returns the prior object (§4.C invariant).
type Cache struct {
	capacity int
	m        map[uint64]*list.Element // key -> LRU element
	lru      *list.List               // front = most recently used

	// pageIndex maps a guest page (pc_start >> 12) to the set of keys whose
	// block starts in that page, enabling O(1) invalidate-by-page (§4.C).
	pageIndex map[uint32]map[uint64]struct{}
}

// New returns a Cache whose capacity is 1<<sizeBits, matching
// cache_create(size_bits) in rv32emu's cache.h.
func New(sizeBits uint) *Cache {
	return &Cache{
		capacity:  1 << sizeBits,
		m:         make(map[uint64]*list.Element),
		lru:       list.New(),
		pageIndex: make(map[uint32]map[uint64]struct{}),
	}
}

// Get retrieves the block stored under key. If updateLRU, the entry is
// moved to the front of the LRU list; a read-only frequency probe (Freq)
// should instead be used when LRU order must not be perturbed.
func (c *Cache) Get(key uint64, updateLRU bool) (*rv32.Block, bool) {
	el, ok := c.m[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	e.freq++
	if updateLRU {
		c.lru.MoveToFront(el)
	}
	return e.block, true
}

// Freq returns the invocation frequency recorded for key without touching
// LRU order (supplemented from rv32emu's cache_freq — see SPEC_FULL.md).
func (c *Cache) Freq(key uint64) uint32 {
	el, ok := c.m[key]
	if !ok {
		return 0
	}
	return el.Value.(*entry).freq
}

// Put inserts block under key, evicting the least-recently-used entry if
// the cache is full. It returns the evicted block (if any) so the caller
// can destroy it (drop native code referencing it, etc. — §3 "Lifecycle").
// A second Put with a key already present replaces that entry and returns
// the replaced block instead of evicting anything else.
func (c *Cache) Put(key uint64, block *rv32.Block) (evicted *rv32.Block) {
	if el, ok := c.m[key]; ok {
		e := el.Value.(*entry)
		prior := e.block
		c.unindexPage(e)
		e.block = block
		c.indexPage(key, block)
		c.lru.MoveToFront(el)
		return prior
	}

	if len(c.m) >= c.capacity {
		evicted = c.evictLRU()
	}

	e := &entry{key: key, block: block}
	el := c.lru.PushFront(e)
	c.m[key] = el
	c.indexPage(key, block)
	return evicted
}

func (c *Cache) evictLRU() *rv32.Block {
	back := c.lru.Back()
	if back == nil {
		return nil
	}
	e := back.Value.(*entry)
	c.lru.Remove(back)
	delete(c.m, e.key)
	c.unindexPage(e)
	return e.block
}

func (c *Cache) indexPage(key uint64, block *rv32.Block) {
	page := block.PCStart >> 12
	set, ok := c.pageIndex[page]
	if !ok {
		set = make(map[uint64]struct{})
		c.pageIndex[page] = set
	}
	set[key] = struct{}{}
}

func (c *Cache) unindexPage(e *entry) {
	page := e.block.PCStart >> 12
	if set, ok := c.pageIndex[page]; ok {
		delete(set, e.key)
		if len(set) == 0 {
			delete(c.pageIndex, page)
		}
	}
}

// InvalidateByPage removes every block whose pc_start falls in the page
// containing va, and matching satp (0 matches any Block.Satp), returning
// the number of blocks removed. O(1) via the page index (§4.C, SPEC_FULL.md
// "cache_invalidate_va").
func (c *Cache) InvalidateByPage(va uint32, satp uint32) int {
	page := va >> 12
	set, ok := c.pageIndex[page]
	if !ok {
		return 0
	}
	keys := make([]uint64, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	n := 0
	for _, k := range keys {
		el, ok := c.m[k]
		if !ok {
			continue
		}
		e := el.Value.(*entry)
		if satp != 0 && e.block.Satp != satp {
			continue
		}
		c.lru.Remove(el)
		delete(c.m, k)
		c.unindexPage(e)
		n++
	}
	return n
}

// InvalidateBySatp removes every block tagged with satp, used by a global
// SFENCE.VMA (rs1=0) (§4.C, SPEC_FULL.md "cache_invalidate_satp").
func (c *Cache) InvalidateBySatp(satp uint32) int {
	n := 0
	for k, el := range c.m {
		e := el.Value.(*entry)
		if e.block.Satp != satp {
			continue
		}
		c.lru.Remove(el)
		delete(c.m, k)
		c.unindexPage(e)
		n++
	}
	return n
}

// Clear removes every entry, invoking callback(block) for each one before
// it is dropped, so the caller can release native code referencing it
// (§3 "Lifecycle", §4.G "flush path").
func (c *Cache) Clear(callback func(*rv32.Block)) {
	for el := c.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if callback != nil {
			callback(e.block)
		}
	}
	c.m = make(map[uint64]*list.Element)
	c.lru = list.New()
	c.pageIndex = make(map[uint32]map[uint64]struct{})
}

// Len reports the number of blocks currently cached.
func (c *Cache) Len() int { return len(c.m) }
