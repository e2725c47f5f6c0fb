// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import "unsafe"

// sliceBox is the header-only prefix of a slice object. Its backing
// elements follow immediately after it in the same allocation; Go has
// no flexible trailing array the way a C struct would declare one, so
// they are addressed by pointer arithmetic (sliceHeaderOf, AllocSlice)
// rather than a struct field, the same unsafe.Pointer reinterpret-cast
// idiom box[T] uses for its Value field.
type sliceBox struct {
	Header
}

func sliceHeaderOf[T any](elem *T) *Header {
	var zero sliceBox
	off := int(unsafe.Sizeof(zero))
	return &(*sliceBox)(unsafe.Add(unsafe.Pointer(elem), -off)).Header
}

// GcSlice is an immutable handle to a managed, runtime-length run of T
// allocated as a single object, the "slice object" header variant: its
// element count lives in the object's Header.length, so the whole
// object is identified and leaf-marked by one header operation
// regardless of how many elements it holds, unlike GcVec's backing
// array of individually traced element handles.
type GcSlice[T any] struct {
	ptr *T
	n   int
}

// Len returns the element count recorded at allocation time.
func (s GcSlice[T]) Len() int { return s.n }

// Slice returns a Go slice view over the managed backing array, valid
// for as long as the handle itself is (see Gc's doc comment on
// escaping Mutate).
func (s GcSlice[T]) Slice() []T {
	if s.ptr == nil {
		return nil
	}
	return unsafe.Slice(s.ptr, s.n)
}

// AllocSlice allocates a managed, zero-valued run of n elements of
// type T as one object. T must not implement Collectable: a slice
// object has no per-element trace step, so an element type that could
// itself hold outgoing handles would leave them unreachable from any
// tracer's root set.
func AllocSlice[T any](h *Heap, ah *AllocHead, n int, currentMark Mark) (GcSlice[T], error) {
	if !isLeafType[T]() {
		invariantViolation("AllocSlice: element type must not implement Collectable")
	}
	if n < 0 {
		invariantViolation("negative slice length %d", n)
	}
	if n > MaxAllocSize {
		return GcSlice[T]{}, &OverflowError{Size: n}
	}

	var zeroElem T
	elemSize := int(unsafe.Sizeof(zeroElem))
	elemAlign := int(unsafe.Alignof(zeroElem))

	var zeroHdr sliceBox
	align := int(unsafe.Alignof(zeroHdr))
	if elemAlign > align {
		align = elemAlign
	}
	headerSize := alignUp(int(unsafe.Sizeof(zeroHdr)), elemAlign)
	size := headerSize + n*elemSize

	res, err := ah.Alloc(size, align, currentMark)
	if err != nil {
		return GcSlice[T]{}, err
	}

	var base unsafe.Pointer
	if res.Class == classLarge {
		buf := make([]byte, size)
		base = unsafe.Pointer(&buf[0])
		sb := (*sliceBox)(base)
		sb.storeMark(currentMark)
		sb.class = classLarge
		sb.leaf = true
		sb.length = uint32(n)
		sb.large = h.store.CreateLarge(&sb.Header, size)
	} else {
		base = unsafe.Pointer(&res.Block.payload()[res.Offset])
		sb := (*sliceBox)(base)
		*sb = sliceBox{}
		sb.storeMark(currentMark)
		sb.class = res.Class
		sb.leaf = true
		sb.length = uint32(n)
		sb.owner = res.Block
		sb.offset = int32(res.Offset)
		sb.size = int32(size)

		// Allocate black, matching AllocObject: stamp the owning
		// block's lines immediately so a concurrent hole search or an
		// earlier-started sweep both already see this object as live.
		res.Block.markLines(res.Offset, size, currentMark)
	}

	elemPtr := (*T)(unsafe.Add(base, headerSize))
	return GcSlice[T]{ptr: elemPtr, n: n}, nil
}

// traceSliceFnOf returns the dynamic trace function for a GcSlice[T]
// element pointer. It only marks the owning header: AllocSlice's leaf
// requirement on T guarantees there is nothing further to walk.
func traceSliceFnOf[T any]() traceFn {
	return func(p unsafe.Pointer, tr *Tracer) {
		markHeader(sliceHeaderOf((*T)(p)), tr.mark)
	}
}

// TraceSlice enqueues the slice object s points at for tracing. Call it
// from a Collectable's Trace method for every GcSlice[T] field.
func TraceSlice[T any](tr *Tracer, s GcSlice[T]) {
	if s.ptr == nil {
		return
	}
	tr.push(unsafe.Pointer(s.ptr), traceSliceFnOf[T]())
}
