// Package jit2 implements the tier-2 optimizing JIT (§4.H): blocks whose
// tier-1 compiled form reaches a high invocation count are re-translated
// asynchronously into an optimizing pseudo-IR, optimized with a small set of
// standard scalar passes, and installed into an inline cache indexed by
// `pc & (N-1)` via an atomic pointer swap.
//
// Grounded on original_source/src/t2c.c ("t2c" — tier-2 compile): the
// original hands a block to a dedicated compiler thread and lets the hot
// path keep running tier-1 until the result is ready; here a
// golang.org/x/sync/errgroup-managed worker pool plays that role.
package jit2

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/vex32/rv32core/pkg/rv32"
)

// Threshold is the tier-1 invocation count that triggers a tier-2 compile
// request (§4.H "~4096").
const Threshold = 4096

// cacheSize is the inline-cache slot count; must be a power of two so the
// index can be computed as `pc & (cacheSize-1)` (§4.H).
const cacheSize = 1024

// NativeFn is the compiled tier-2 entry point for a block.
type NativeFn func(*rv32.Cpu)

// Queue is the asynchronous tier-2 compile pipeline: Submit enqueues a block
// for background compilation; a worker pool drains the queue and installs
// results into the inline cache via atomic pointer stores (§5 "installation
// of a tier-2 pointer is an atomic store into the inline cache").
type Queue struct {
	mu      sync.Mutex
	g       *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	pending map[uint32]bool

	cache [cacheSize]atomic.Pointer[NativeFn]

	// Stats exposes optional, non-authoritative instrumentation (§9's
	// per-op timer telemetry decision: off by default, see DESIGN.md).
	Stats Stats
}

// Stats holds optional tier-2 telemetry. Nothing in this package advances
// OpTimer or reads EnableOpTimer, so OpTimer stays zero; Compiled counts
// installed functions. Block.CycleCost remains the authoritative cost
// accounting (§9, DESIGN.md Open Question decision).
type Stats struct {
	EnableOpTimer bool
	OpTimer       atomic.Uint64
	Compiled      atomic.Uint64
}

// NewQueue returns a Queue backed by a worker pool with at most
// maxWorkers concurrent compiles in flight.
func NewQueue(maxWorkers int) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	return &Queue{
		g:       g,
		ctx:     gctx,
		cancel:  cancel,
		pending: make(map[uint32]bool),
	}
}

// Close cancels any in-flight compiles and waits for workers to return.
func (q *Queue) Close() {
	q.cancel()
	_ = q.g.Wait()
}

// Submit enqueues blk for tier-2 compilation unless a compile for
// blk.PCStart is already pending (the pending set is keyed by PC alone;
// SATP is not part of the key). compile performs the actual translation; Submit
// returns immediately (§5 "Tier-2 compile requests are queued to a worker
// thread").
func (q *Queue) Submit(blk *rv32.Block, compile func(*rv32.Block) (NativeFn, error)) {
	q.mu.Lock()
	if q.pending[blk.PCStart] {
		q.mu.Unlock()
		return
	}
	q.pending[blk.PCStart] = true
	q.mu.Unlock()

	q.g.Go(func() error {
		defer func() {
			q.mu.Lock()
			delete(q.pending, blk.PCStart)
			q.mu.Unlock()
		}()
		select {
		case <-q.ctx.Done():
			return nil
		default:
		}
		fn, err := compile(blk)
		if err != nil {
			return nil // a failed tier-2 compile just leaves tier-1 running
		}
		q.install(blk.PCStart, fn)
		return nil
	})
}

// install stores fn into the inline cache slot for pc. It does not touch
// the block: the driver's dispatch loop (§4.J) finds fn through Lookup and
// sets Block.Hot2 when it calls it.
func (q *Queue) install(pc uint32, fn NativeFn) {
	slot := &q.cache[pc&(cacheSize-1)]
	slot.Store(&fn)
	q.Stats.Compiled.Add(1)
}

// Lookup returns the tier-2 function installed for pc, if any. The reader
// observes either nil or a fully-formed function pointer — both valid per
// §5's atomic-swap guarantee.
func (q *Queue) Lookup(pc uint32) (NativeFn, bool) {
	p := q.cache[pc&(cacheSize-1)].Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}
