// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"sync/atomic"
	"unsafe"
)

// Header precedes every managed object's payload. Its layout is the same
// for sized and slice objects modulo the length field, which is simply
// left at zero for non-slice objects.
//
// mark is accessed with Acquire/Release so that a tracer observing a
// header's mark as current has a happens-before edge on every write the
// owning mutation context made to the object before publishing it.
type Header struct {
	mark   atomic.Uint32
	class  sizeClass
	leaf   bool
	length uint32 // element count, for slice/Gc[[]T] objects only

	// owner/offset/size locate this object's line marks within its
	// owning Block; large locates it in the BlockStore's large side
	// list instead. Exactly one of owner and large is non-nil. These
	// fields stand in for recovering a containing Block purely from
	// address bits via a block-aligned bitmask, which Go cannot
	// portably do without unsafe assumptions this module avoids.
	owner  *Block
	large  *largeObject
	offset int32
	size   int32
}

func (h *Header) loadMark() Mark {
	m := Mark(h.mark.Load())
	if !m.valid() {
		invariantViolation("decoded mark byte %d is out of range", m)
	}
	return m
}

func (h *Header) storeMark(m Mark) { h.mark.Store(uint32(m)) }

// casMark stores m unconditionally but only after confirming the header
// did not already carry it; it returns false on the call that stores a
// given mark and true on every later call with that mark, which is how
// the tracer's per-object marking algorithm short-circuits cycles and
// shared references. It is "CAS-less": the load and the store are
// separate, so two workers reaching the same object at once can both
// get false and both trace it; that repeats work but marks nothing
// wrongly.
func (h *Header) casMark(current Mark) (wasAlready bool) {
	if Mark(h.mark.Load()) == current {
		return true
	}
	h.mark.Store(uint32(current))
	return false
}

// markHeader applies current to hdr directly and propagates it to the
// owning block's lines (or does nothing further for a large object,
// whose mark lives only in hdr). It has no Collectable dispatch of its
// own: boxed objects layer that on top via MarkObject, while slice
// objects (see slice.go) have nothing further to walk and call this
// directly.
func markHeader(hdr *Header, current Mark) (alreadyMarked bool) {
	already := hdr.casMark(current)
	if !already && hdr.owner != nil {
		hdr.owner.markLines(int(hdr.offset), int(hdr.size), current)
	}
	return already
}

// box is the concrete in-memory representation of a managed object: a
// Header immediately followed by its payload. Because Go does not allow
// placing an unsized payload after a struct field the way a repr(C)
// layout can, box is generic over the payload type and reinterpreted
// via unsafe.Pointer, the bump-arena idiom this module's grounding
// survey documents in DESIGN.md.
type box[T any] struct {
	Header
	Value T
}

// boxOf recovers the owning box for a payload pointer by subtracting the
// Value field's offset, the inverse of &box.Value.
func boxOf[T any](payload *T) *box[T] {
	var zero box[T]
	off := unsafe.Offsetof(zero.Value)
	return (*box[T])(unsafe.Add(unsafe.Pointer(payload), -off))
}

func headerOf[T any](payload *T) *Header {
	return &boxOf(payload).Header
}
