// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import "unsafe"

// Heap is the thread-safe façade around the block allocator. It is a
// thin, cloneable handle: all of its state lives in the BlockStore it
// wraps, so copying a Heap by value is safe and cheap, the same
// small-struct-of-shared-state shape lldb.Allocator uses around a Filer.
type Heap struct {
	store *BlockStore
}

// NewHeap returns a Heap backed by a fresh BlockStore.
func NewHeap(freeRetainQuota int) *Heap {
	return &Heap{store: NewBlockStore(freeRetainQuota)}
}

// Store returns the underlying BlockStore, for callers (AllocHead,
// Collector) that need direct pool access.
func (h *Heap) Store() *BlockStore { return h.store }

// GetSize returns the heap's current footprint in bytes.
func (h *Heap) GetSize() int64 { return h.store.ArenaSizeBytes() }

// AllocObject allocates a new managed object with payload value v under
// AllocHead ah, stamping its header with currentMark and leaf. It
// implements the generic half of allocation that AllocHead itself
// cannot express without knowing T.
func AllocObject[T any](h *Heap, ah *AllocHead, v T, currentMark Mark, leaf bool) (*T, error) {
	var zero box[T]
	size := int(unsafe.Sizeof(zero))
	align := int(unsafe.Alignof(zero))

	res, err := ah.Alloc(size, align, currentMark)
	if err != nil {
		return nil, err
	}

	if res.Class == classLarge {
		b := new(box[T])
		b.storeMark(currentMark)
		b.class = classLarge
		b.leaf = leaf
		b.Value = v
		b.large = h.store.CreateLarge(&b.Header, size)
		return &b.Value, nil
	}

	ptr := unsafe.Pointer(&res.Block.payload()[res.Offset])
	b := (*box[T])(ptr)
	*b = box[T]{}
	b.storeMark(currentMark)
	b.class = res.Class
	b.leaf = leaf
	b.owner = res.Block
	b.offset = int32(res.Offset)
	b.size = int32(size)
	b.Value = v

	// Allocate black: stamp this object's lines with currentMark
	// immediately rather than waiting for the tracer to reach it, so
	// a concurrent hole search never mistakes a just-allocated,
	// not-yet-traced object for free space, and so a sweep running
	// before this cycle's trace visits it still recognizes it as
	// live.
	res.Block.markLines(res.Offset, size, currentMark)
	return &b.Value, nil
}

// MarkObject applies current to the object payload points at: it reads
// the header mark, stores current if it differs, and propagates the
// mark to the owning block's lines (or to the large-object header,
// which already carries it). The trace function invocation that walks
// T's outgoing handles is the caller's responsibility, since only
// type-specific code knows how to do that. MarkObject reports whether
// the object was already marked so the caller can skip re-enqueuing its
// children.
func MarkObject[T any](payload *T, current Mark) (alreadyMarked bool, leaf bool) {
	hdr := headerOf(payload)
	already := markHeader(hdr, current)
	return already, hdr.leaf
}
