// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package gcarena implements a concurrent, non-moving, mark-and-sweep
managed heap on top of an immix-style block allocator.

An Arena[R] is a heap rooted at a single value of type R. Objects are
allocated with NewObject inside a Mutation, which Arena.Mutate supplies
to a caller-provided function:

	type Node struct {
		Next  *gcarena.GcCellOpt[Node]
		Value int
	}

	func (n *Node) Trace(tr *gcarena.Tracer) {
		gcarena.TraceCellOpt(tr, n.Next)
	}

	arena, err := gcarena.New(func(mc *gcarena.Mutation) (Node, error) {
		return Node{Next: gcarena.NewGcCellOpt[Node](), Value: 0}, nil
	})

	arena.Mutate(func(mc *gcarena.Mutation, root gcarena.Gc[Node]) {
		next, _ := gcarena.NewObject(mc, Node{Next: gcarena.NewGcCellOpt[Node](), Value: 1})
		gcarena.SetCellOpt(mc, root.Get(), root.Get().Next, next)
	})

A collection cycle traces from the root, following every Collectable's
Trace method, concurrently with any number of in-flight Mutate calls.
Mutators are excluded only while the cycle snapshots the root and
flips the mark, and after each trace round while it drains the
re-scan queue (Collector.runCycle); each exclusive step waits for the
Mutate calls already running to return. Types that hold no managed handle need not
implement Collectable at all — isLeafType detects this from the type's
method set and skips tracing it entirely.

A background monitor goroutine can trigger collections automatically
based on heap growth (Config.MonitorOn); set it to false to drive
collection entirely through Arena.MajorCollect and Arena.MinorCollect.
*/
package gcarena
