package jit2

import (
	"testing"
	"time"

	"github.com/vex32/rv32core/pkg/rv32"
)

func TestSubmitInstallsIntoInlineCache(t *testing.T) {
	q := NewQueue(2)
	defer q.Close()

	done := make(chan struct{})
	blk := &rv32.Block{PCStart: 0x1000}
	called := NativeFn(func(cpu *rv32.Cpu) {})

	q.Submit(blk, func(b *rv32.Block) (NativeFn, error) {
		defer close(done)
		return called, nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("compile callback never ran")
	}

	// installation races the compile goroutine's return against the test
	// goroutine's next scheduling point; give it a moment to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := q.Lookup(0x1000); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tier-2 fn never installed into the inline cache")
		}
		time.Sleep(time.Millisecond)
	}

	if q.Stats.Compiled.Load() != 1 {
		t.Fatalf("expected Compiled stat to be 1, got %d", q.Stats.Compiled.Load())
	}
}

func TestSubmitDedupesInFlightCompiles(t *testing.T) {
	q := NewQueue(2)
	defer q.Close()

	var calls int32
	release := make(chan struct{})
	blk := &rv32.Block{PCStart: 0x2000}

	compile := func(b *rv32.Block) (NativeFn, error) {
		calls++
		<-release
		return NativeFn(func(cpu *rv32.Cpu) {}), nil
	}

	q.Submit(blk, compile)
	q.Submit(blk, compile) // same PCStart while the first is still in flight
	close(release)

	time.Sleep(50 * time.Millisecond) // let both Submit calls' goroutines settle
	if calls != 1 {
		t.Fatalf("expected exactly 1 compile call for a block already pending, got %d", calls)
	}
}

func TestLookupMissReturnsFalse(t *testing.T) {
	q := NewQueue(1)
	defer q.Close()
	if _, ok := q.Lookup(0xdead); ok {
		t.Fatalf("expected a miss for a pc never submitted")
	}
}

func TestFailedCompileLeavesCacheEmpty(t *testing.T) {
	q := NewQueue(1)
	defer q.Close()

	done := make(chan struct{})
	blk := &rv32.Block{PCStart: 0x3000}
	q.Submit(blk, func(b *rv32.Block) (NativeFn, error) {
		defer close(done)
		return nil, errCompileFailed
	})
	<-done
	time.Sleep(10 * time.Millisecond)
	if _, ok := q.Lookup(0x3000); ok {
		t.Fatalf("a failed compile must not install anything")
	}
}

var errCompileFailed = &compileError{"synthetic failure"}

type compileError struct{ msg string }

func (e *compileError) Error() string { return e.msg }
