// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"context"
	"testing"
	"time"
)

// handleLevel2/handleLevel3 give a three-level nested-handle fixture:
// an arena rooted at handleLevel1 reaches 69 via two further handle
// hops (root.Inner -> handleLevel2, handleLevel2.Inner -> handleLevel3
// holding the literal value), rather than one object embedding another
// by value.
type handleLevel3 struct {
	N int
}

type handleLevel2 struct {
	Inner Gc[handleLevel3]
}

func (h *handleLevel2) Trace(tr *Tracer) { TraceHandle(tr, h.Inner) }

type handleLevel1 struct {
	Inner Gc[handleLevel2]
}

func (h *handleLevel1) Trace(tr *Tracer) { TraceHandle(tr, h.Inner) }

func newTestArena(t *testing.T) *Arena[linkedNode] {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MonitorOn = false
	a, err := NewWithConfig(cfg, func(mc *Mutation) (linkedNode, error) {
		return linkedNode{Next: NewGcCellOpt[linkedNode](), N: 0}, nil
	})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestArenaRootSurvivesMajorCollect(t *testing.T) {
	a := newTestArena(t)

	a.Mutate(func(mc *Mutation, root Gc[linkedNode]) {
		child, err := NewObject(mc, linkedNode{Next: NewGcCellOpt[linkedNode](), N: 42})
		if err != nil {
			t.Fatalf("NewObject: %v", err)
		}
		SetCellOpt(mc, root.Get(), root.Get().Next, child)
	})

	if err := a.MajorCollect(context.Background()); err != nil {
		t.Fatalf("MajorCollect: %v", err)
	}

	var got int
	a.View(func(root Gc[linkedNode]) {
		next, ok := root.Get().Next.Get()
		if !ok {
			t.Fatal("expected root's child to survive collection")
		}
		got = next.Get().N
	})
	if got != 42 {
		t.Errorf("surviving child N = %d, want 42", got)
	}
}

func TestArenaLinkedListSurvivesMultipleCycles(t *testing.T) {
	a := newTestArena(t)

	const n = 100
	a.Mutate(func(mc *Mutation, root Gc[linkedNode]) {
		cur := root
		for i := 1; i <= n; i++ {
			next, err := NewObject(mc, linkedNode{Next: NewGcCellOpt[linkedNode](), N: i})
			if err != nil {
				t.Fatalf("NewObject: %v", err)
			}
			SetCellOpt(mc, cur.Get(), cur.Get().Next, next)
			cur = next
		}
	})

	if err := a.MajorCollect(context.Background()); err != nil {
		t.Fatalf("MajorCollect: %v", err)
	}
	if err := a.MinorCollect(context.Background()); err != nil {
		t.Fatalf("MinorCollect: %v", err)
	}

	count := 0
	a.View(func(root Gc[linkedNode]) {
		cur, ok := root.Get().Next.Get()
		for ok {
			count++
			cur, ok = cur.Get().Next.Get()
		}
	})
	if count != n {
		t.Errorf("surviving chain length = %d, want %d", count, n)
	}
}

func TestArenaUnreachableObjectsAreEligibleForReuse(t *testing.T) {
	a := newTestArena(t)

	a.Mutate(func(mc *Mutation, root Gc[linkedNode]) {
		// 2000 56-byte nodes need four blocks, so at least three of them
		// hold nothing but garbage; the first shares the root's block.
		for i := 0; i < 2000; i++ {
			if _, err := NewObject(mc, linkedNode{Next: NewGcCellOpt[linkedNode](), N: i}); err != nil {
				t.Fatalf("NewObject: %v", err)
			}
		}
	})
	beforeSweep := a.heap.Store().LiveBlocks()

	if err := a.MajorCollect(context.Background()); err != nil {
		t.Fatalf("MajorCollect: %v", err)
	}

	bs := a.heap.Store()
	bs.freeMu.Lock()
	freeCount := len(bs.free)
	bs.freeMu.Unlock()
	if freeCount == 0 {
		t.Error("expected at least one block holding only unreachable garbage to be freed")
	}
	if beforeSweep == 0 {
		t.Fatal("test setup didn't allocate any blocks")
	}
}

func TestArenaMetricsRecordsCollections(t *testing.T) {
	a := newTestArena(t)
	if err := a.MajorCollect(context.Background()); err != nil {
		t.Fatalf("MajorCollect: %v", err)
	}
	if err := a.MinorCollect(context.Background()); err != nil {
		t.Fatalf("MinorCollect: %v", err)
	}
	m := a.Metrics()
	if m.MajorCollections != 1 {
		t.Errorf("MajorCollections = %d, want 1", m.MajorCollections)
	}
	if m.MinorCollections != 1 {
		t.Errorf("MinorCollections = %d, want 1", m.MinorCollections)
	}
	if m.State != StateWaiting {
		t.Errorf("State = %v, want StateWaiting", m.State)
	}
}

func TestArenaRootSurvivesGarbageAndRepeatedMajorCollect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitorOn = false
	a, err := NewWithConfig(cfg, func(mc *Mutation) (leafValue, error) {
		return leafValue{N: 69}, nil
	})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(a.Close)

	a.Mutate(func(mc *Mutation, root Gc[leafValue]) {
		for i := 0; i < 10_000; i++ {
			if _, err := NewObject(mc, leafValue{N: 420}); err != nil {
				t.Fatalf("NewObject: %v", err)
			}
			if _, err := NewSlice[byte](mc, 1_000); err != nil {
				t.Fatalf("NewSlice: %v", err)
			}
		}
	})

	for i := 0; i < 2; i++ {
		if err := a.MajorCollect(context.Background()); err != nil {
			t.Fatalf("MajorCollect: %v", err)
		}
	}

	a.View(func(root Gc[leafValue]) {
		if got := root.Get().N; got != 69 {
			t.Errorf("root.N = %d, want 69", got)
		}
	})

	// None of the 20,000 allocations above were ever linked from root,
	// so two full collections should have reclaimed them back down to
	// the handful of blocks the surviving root needs. OldObjectsCount
	// here is block-granular (see DESIGN.md), not a literal per-object
	// tally, but it should still read small, not in the thousands a
	// live backlog would pin.
	if m := a.Metrics(); m.OldObjectsCount > 2 {
		t.Errorf("OldObjectsCount = %d, want <= 2 once garbage is reclaimed", m.OldObjectsCount)
	}
}

func TestArenaNestedHandlesSurviveMajorCollect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitorOn = false
	a, err := NewWithConfig(cfg, func(mc *Mutation) (handleLevel1, error) {
		leaf, err := NewObject(mc, handleLevel3{N: 69})
		if err != nil {
			return handleLevel1{}, err
		}
		mid, err := NewObject(mc, handleLevel2{Inner: leaf})
		if err != nil {
			return handleLevel1{}, err
		}
		return handleLevel1{Inner: mid}, nil
	})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(a.Close)

	if err := a.MajorCollect(context.Background()); err != nil {
		t.Fatalf("MajorCollect: %v", err)
	}

	var got int
	a.View(func(root Gc[handleLevel1]) {
		got = root.Get().Inner.Get().Inner.Get().N
	})
	if got != 69 {
		t.Errorf("value three handle hops deep = %d, want 69", got)
	}

	// Three handle hops deep is three managed objects; a survivor set
	// that small should still fit the single block OldObjectsCount's
	// block-granular approximation (see DESIGN.md) reports it as.
	if m := a.Metrics(); m.OldObjectsCount != 1 {
		t.Errorf("OldObjectsCount = %d, want 1 for a 3-object survivor set", m.OldObjectsCount)
	}
}

func TestArenaMutateBreaksOnYieldRequest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitorOn = false
	a, err := NewWithConfig(cfg, func(mc *Mutation) (leafValue, error) {
		return leafValue{N: 0}, nil
	})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(a.Close)

	collectDone := make(chan error, 1)
	mutateDone := make(chan int, 1)

	go func() {
		n := 0
		a.Mutate(func(mc *Mutation, root Gc[leafValue]) {
			for ; n < 10_000_000; n++ {
				if mc.YieldRequested() {
					return
				}
				if _, err := NewObject(mc, leafValue{N: 420}); err != nil {
					return
				}
			}
		})
		mutateDone <- n
	}()

	go func() {
		collectDone <- a.MajorCollect(context.Background())
	}()

	select {
	case n := <-mutateDone:
		if n >= 10_000_000 {
			t.Error("expected the mutation loop to break via YieldRequested before exhausting its budget")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("mutation loop never returned")
	}
	if err := <-collectDone; err != nil {
		t.Fatalf("MajorCollect: %v", err)
	}
}

func TestArenaConcurrentMutateAndCollect(t *testing.T) {
	a := newTestArena(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			a.Mutate(func(mc *Mutation, root Gc[linkedNode]) {
				if _, err := NewObject(mc, linkedNode{Next: NewGcCellOpt[linkedNode](), N: i}); err != nil {
					t.Errorf("NewObject: %v", err)
				}
			})
		}
	}()

	for i := 0; i < 5; i++ {
		if err := a.MajorCollect(context.Background()); err != nil {
			t.Fatalf("MajorCollect: %v", err)
		}
	}
	<-done
}
