// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"sync/atomic"
	"unsafe"
)

// Collectable is the contract a managed object type supplies so the
// tracer can walk its outgoing edges. A type that does not implement
// Collectable is, by construction, a leaf: it cannot hold a managed
// handle, so there is nothing to walk. A plain Go interface
// satisfaction check, performed at allocation time (see NewObject in
// mutation.go, which passes the result to AllocObject), replaces a
// separate leaf predicate: Go's
// type system already proves it at compile time.
type Collectable interface {
	// Trace visits every outgoing managed handle by calling the
	// matching TraceXxx helper on tr.
	Trace(tr *Tracer)
}

// isLeafType reports whether *T implements Collectable. The assertion
// against a nil *T never invokes a method — it only inspects T's method
// set — so this is safe to call before any value of T exists.
func isLeafType[T any]() bool {
	_, ok := any((*T)(nil)).(Collectable)
	return !ok
}

// Tracer accumulates outstanding TraceJobs discovered while marking one
// object's outgoing handles. A user type's Trace method receives one
// per call; it must not retain the Tracer past Trace's return.
type Tracer struct {
	mark  Mark
	jobs  []TraceJob
}

func newTracer(mark Mark) *Tracer { return &Tracer{mark: mark} }

func (tr *Tracer) push(ptr unsafe.Pointer, fn traceFn) {
	if ptr == nil {
		return
	}
	tr.jobs = append(tr.jobs, TraceJob{ptr: ptr, fn: fn})
}

// traceFnOf returns the dynamic trace function for T: mark the object,
// and if it was not already marked and is not a leaf, invoke its Trace
// method. It is produced fresh per call, a generic stand-in for a
// compile-time-synthesized dispatch thunk.
func traceFnOf[T any]() traceFn {
	return func(p unsafe.Pointer, tr *Tracer) {
		payload := (*T)(p)
		already, leaf := MarkObject(payload, tr.mark)
		if already || leaf {
			return
		}
		if obj, ok := any(payload).(Collectable); ok {
			obj.Trace(tr)
		}
	}
}

// TraceHandle enqueues the object h points at for tracing. Call it from
// a Collectable's Trace method for every Gc[T] field.
func TraceHandle[T any](tr *Tracer, h Gc[T]) {
	tr.push(unsafe.Pointer(h.ptr), traceFnOf[T]())
}

// TraceCell enqueues the current target of a mutable handle.
func TraceCell[T any](tr *Tracer, c *GcCell[T]) {
	tr.push(unsafe.Pointer(c.p.Load()), traceFnOf[T]())
}

// TraceCellOpt enqueues the current target of a nullable mutable handle,
// a no-op if it is currently empty.
func TraceCellOpt[T any](tr *Tracer, c *GcCellOpt[T]) {
	if p := c.p.Load(); p != nil {
		tr.push(unsafe.Pointer(p), traceFnOf[T]())
	}
}

// Gc is an immutable handle: non-null, copy-cheap, valid for the
// duration of the mutation context that produced it. Go has no lifetime
// brand to enforce that statically; callers are expected not to let a
// Gc[T] escape the Mutate closure that produced it.
type Gc[T any] struct {
	ptr *T
}

// Get dereferences the handle.
func (g Gc[T]) Get() *T { return g.ptr }

// GcCell is a mutable handle: an atomic pointer cell that can be swapped
// for another pointer of the same pointee type under a write barrier.
// The zero value is not usable; construct with NewGcCell.
type GcCell[T any] struct {
	p atomic.Pointer[T]
}

// NewGcCell returns a GcCell initially pointing at initial.
func NewGcCell[T any](initial Gc[T]) *GcCell[T] {
	c := &GcCell[T]{}
	c.p.Store(initial.ptr)
	return c
}

// Get reads the cell's current target.
func (c *GcCell[T]) Get() Gc[T] { return Gc[T]{ptr: c.p.Load()} }

// GcCellOpt is a mutable handle that may additionally hold no value.
type GcCellOpt[T any] struct {
	p atomic.Pointer[T]
}

// NewGcCellOpt returns an empty GcCellOpt.
func NewGcCellOpt[T any]() *GcCellOpt[T] { return &GcCellOpt[T]{} }

// Get reads the cell's current target; ok is false if it is empty.
func (c *GcCellOpt[T]) Get() (h Gc[T], ok bool) {
	p := c.p.Load()
	return Gc[T]{ptr: p}, p != nil
}

// traceFn is the dynamic trace thunk a TraceJob carries.
type traceFn func(unsafe.Pointer, *Tracer)

// TraceJob pairs a payload pointer with its dynamic trace function.
type TraceJob struct {
	ptr unsafe.Pointer
	fn  traceFn
}

func (j TraceJob) run(tr *Tracer) {
	if j.ptr == nil {
		invariantViolation("trace job with a nil pointer")
	}
	j.fn(j.ptr, tr)
}
