// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"context"
	"testing"
)

func TestCollectorInitialMarkIsRotatable(t *testing.T) {
	c := newCollector(NewHeap(4), DefaultConfig())
	if c.CurrentMark() == MarkNew {
		t.Fatal("a fresh collector must not start at MarkNew, Next() would panic on it")
	}
}

func TestCollectorMajorCollectFlipsMark(t *testing.T) {
	heap := NewHeap(4)
	c := newCollector(heap, DefaultConfig())
	before := c.CurrentMark()

	root := func(mark Mark) []TraceJob { return nil }
	if err := c.MajorCollect(context.Background(), root); err != nil {
		t.Fatalf("MajorCollect: %v", err)
	}
	if c.CurrentMark() == before {
		t.Error("expected the current mark to rotate after a collection")
	}
}

func TestCollectorMinorCollectDoesNotFlipMark(t *testing.T) {
	heap := NewHeap(4)
	c := newCollector(heap, DefaultConfig())
	before := c.CurrentMark()

	root := func(mark Mark) []TraceJob { return nil }
	if err := c.MinorCollect(context.Background(), root); err != nil {
		t.Fatalf("MinorCollect: %v", err)
	}
	if c.CurrentMark() != before {
		t.Errorf("CurrentMark changed to %v after a minor collection, want unchanged %v", c.CurrentMark(), before)
	}

	if err := c.MajorCollect(context.Background(), root); err != nil {
		t.Fatalf("MajorCollect: %v", err)
	}
	if c.CurrentMark() == before {
		t.Error("expected a major collection to still rotate the mark")
	}
}

func TestMutationYieldRequestedDuringCollection(t *testing.T) {
	heap := NewHeap(4)
	coll := newCollector(heap, DefaultConfig())
	mc := newMutation(heap, coll, coll.CurrentMark())
	defer mc.release()

	if mc.YieldRequested() {
		t.Fatal("YieldRequested should be false before any collection starts")
	}

	rootStarted := make(chan struct{})
	proceed := make(chan struct{})
	root := func(Mark) []TraceJob {
		close(rootStarted)
		<-proceed
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- coll.MajorCollect(context.Background(), root) }()

	<-rootStarted
	if !mc.YieldRequested() {
		t.Error("expected YieldRequested to be true while a collection is in progress")
	}
	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("MajorCollect: %v", err)
	}
	if mc.YieldRequested() {
		t.Error("expected YieldRequested to be false once the collection has finished")
	}
}

func TestCollectorTryCollectSkipsWhenBusy(t *testing.T) {
	heap := NewHeap(4)
	c := newCollector(heap, DefaultConfig())
	c.collectMu.Lock()
	defer c.collectMu.Unlock()

	ran := c.TryMajorCollect(context.Background(), func(Mark) []TraceJob { return nil })
	if ran {
		t.Error("TryMajorCollect should not run while collectMu is held")
	}
}

func TestCollectorMetricsState(t *testing.T) {
	heap := NewHeap(4)
	c := newCollector(heap, DefaultConfig())
	if got := c.Metrics().State; got != StateWaiting {
		t.Errorf("initial State = %v, want StateWaiting", got)
	}
	_ = c.MajorCollect(context.Background(), func(Mark) []TraceJob { return nil })
	if got := c.Metrics().State; got != StateWaiting {
		t.Errorf("State after a completed cycle = %v, want StateWaiting", got)
	}
	if c.Metrics().MajorCollections != 1 {
		t.Errorf("MajorCollections = %d, want 1", c.Metrics().MajorCollections)
	}
}
