// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import "unsafe"

// Mutation is the context a caller's function body runs under during
// Arena.Mutate. It owns one AllocHead for the duration of the call and
// stamps every object it allocates with the collector's mark as of the
// moment Mutate began.
type Mutation struct {
	heap *Heap
	ah   *AllocHead
	mark Mark
	coll *Collector
	ops  int
}

func newMutation(heap *Heap, coll *Collector, mark Mark) *Mutation {
	return &Mutation{
		heap: heap,
		ah:   NewAllocHead(heap.Store()),
		mark: mark,
		coll: coll,
	}
}

// release returns this mutation's blocks to the heap and flushes any
// outstanding re-scan jobs queued by write barriers during its run.
func (mc *Mutation) release() {
	mc.ah.Release()
	mc.coll.flushRescan()
}

// NewObject allocates a fresh managed object holding v and returns an
// immutable handle to it. Whether v's type is a leaf is decided once,
// from its method set, by isLeafType.
func NewObject[T any](mc *Mutation, v T) (Gc[T], error) {
	p, err := AllocObject(mc.heap, mc.ah, v, mc.mark, isLeafType[T]())
	if err != nil {
		return Gc[T]{}, err
	}
	mc.checkpoint()
	return Gc[T]{ptr: p}, nil
}

// NewSlice allocates a fresh managed slice object of n zero-valued
// elements and returns an immutable handle to it. See AllocSlice for
// the element-type restriction.
func NewSlice[T any](mc *Mutation, n int) (GcSlice[T], error) {
	s, err := AllocSlice[T](mc.heap, mc.ah, n, mc.mark)
	if err != nil {
		return GcSlice[T]{}, err
	}
	mc.checkpoint()
	return s, nil
}

// checkpoint runs after every successful NewObject/NewSlice and counts
// the allocation in mc.ops. It never blocks and does not release the
// collector's yield lock: a collector waiting for an exclusive phase
// proceeds only once this Mutation's surrounding Arena.Mutate call
// returns.
func (mc *Mutation) checkpoint() {
	mc.ops++
}

// YieldRequested reports whether a collection cycle is currently trying
// to start. A mutation body running a long, allocation-free loop (so
// checkpoint never fires) should poll this and return early when it
// turns true, rather than holding yieldMu for read indefinitely and
// starving the collector.
func (mc *Mutation) YieldRequested() bool {
	return mc.coll.yieldRequestedNow()
}

// SetCell stores v into cell and, if owner's header carries this
// Mutation's mark (it was allocated under that mark or has already been
// traced toward it), enqueues owner for a re-scan so the tracer does
// not miss the new edge. owner must be the object that embeds cell; the
// barrier re-scans the whole object rather than just the written field,
// trading a coarser re-scan for not needing per-field trace closures.
func SetCell[T, O any](mc *Mutation, owner *O, cell *GcCell[T], v Gc[T]) {
	cell.p.Store(v.ptr)
	publishWrite(mc, owner)
}

// SetCellOpt stores v into an optional cell, with the same re-scan
// discipline as SetCell.
func SetCellOpt[T, O any](mc *Mutation, owner *O, cell *GcCellOpt[T], v Gc[T]) {
	cell.p.Store(v.ptr)
	publishWrite(mc, owner)
}

// ClearCellOpt empties an optional cell. Clearing an edge never needs a
// re-scan (it cannot introduce a reference the tracer hasn't seen), but
// it is provided here so callers never reach into GcCellOpt directly.
func ClearCellOpt[T, O any](mc *Mutation, owner *O, cell *GcCellOpt[T]) {
	_ = owner
	cell.p.Store(nil)
}

func publishWrite[O any](mc *Mutation, owner *O) {
	hdr := headerOf(owner)
	if hdr.loadMark() == mc.mark {
		mc.coll.enqueueRescan(TraceJob{ptr: unsafe.Pointer(owner), fn: traceFnOf[O]()})
	}
}
