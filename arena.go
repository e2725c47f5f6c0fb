// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"context"
	"unsafe"
)

// Arena is the public entry point: a managed heap rooted at a single
// value of type R. Construct one with New or NewWithConfig, allocate
// and mutate through Arena.Mutate, and read through Arena.View.
type Arena[R any] struct {
	heap *Heap
	coll *Collector
	mon  *monitor
	root Gc[R]
}

// New creates an Arena rooted at the result of calling makeRoot inside a
// fresh Mutation, using DefaultConfig.
func New[R any](makeRoot func(mc *Mutation) (R, error)) (*Arena[R], error) {
	return NewWithConfig(DefaultConfig(), makeRoot)
}

// NewWithConfig is New with an explicit Config.
func NewWithConfig[R any](cfg Config, makeRoot func(mc *Mutation) (R, error)) (*Arena[R], error) {
	heap := NewHeap(cfg.FreeBlockRetainQuota)
	coll := newCollector(heap, cfg)

	mc := newMutation(heap, coll, coll.CurrentMark())
	v, err := makeRoot(mc)
	if err != nil {
		mc.release()
		return nil, err
	}
	root, err := NewObject(mc, v)
	mc.release()
	if err != nil {
		return nil, err
	}

	a := &Arena[R]{heap: heap, coll: coll, root: root}
	a.mon = startMonitor(cfg, heap, a.tryMinor, a.tryMajor)
	return a, nil
}

// Mutate runs fn under a fresh Mutation holding a read lock against
// concurrent collection root-snapshots. Multiple Mutate calls on the
// same Arena may run concurrently; the Heap and Collector are safe for
// concurrent use from within them.
func (a *Arena[R]) Mutate(fn func(mc *Mutation, root Gc[R])) {
	a.coll.yieldMu.RLock()
	defer a.coll.yieldMu.RUnlock()

	mc := newMutation(a.heap, a.coll, a.coll.CurrentMark())
	defer mc.release()
	fn(mc, a.root)
}

// View runs fn with read-only access to the root. It takes no lock: the
// root is always kept alive across collections (it is every cycle's
// trace starting point), so reading it is safe without coordination.
func (a *Arena[R]) View(fn func(root Gc[R])) {
	fn(a.root)
}

func (a *Arena[R]) rootJobs(mark Mark) []TraceJob {
	return []TraceJob{{ptr: unsafe.Pointer(a.root.Get()), fn: traceFnOf[R]()}}
}

// MajorCollect runs a full collection cycle, blocking until it
// finishes. The tracer workers do not check ctx, so a cycle runs to
// completion even after ctx is done.
func (a *Arena[R]) MajorCollect(ctx context.Context) error {
	return a.coll.MajorCollect(ctx, a.rootJobs)
}

// MinorCollect runs a collection cycle that keeps the current mark (see
// Collector.MinorCollect's doc comment); like MajorCollect it blocks
// until the cycle finishes and does not check ctx while tracing.
func (a *Arena[R]) MinorCollect(ctx context.Context) error {
	return a.coll.MinorCollect(ctx, a.rootJobs)
}

func (a *Arena[R]) tryMinor(ctx context.Context) bool {
	return a.coll.TryMinorCollect(ctx, a.rootJobs)
}

func (a *Arena[R]) tryMajor(ctx context.Context) bool {
	return a.coll.TryMajorCollect(ctx, a.rootJobs)
}

// Metrics returns a snapshot of the arena's collection activity.
func (a *Arena[R]) Metrics() Metrics { return a.coll.Metrics() }

// Close stops the background monitor goroutine, if one is running. It
// does not release the heap's memory; the Arena is unusable afterward.
func (a *Arena[R]) Close() {
	a.mon.Stop()
}
