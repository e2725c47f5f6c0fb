// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Collector drives one heap's collection cycles: it owns the rotating
// mark, the re-scan queue write barriers feed, and the yield lock that
// briefly pauses mutators while a cycle's root snapshot is taken. It
// is not generic over the root type — the root itself is supplied per
// call as an initial-job producer — so it can be shared by Arena[R]
// regardless of R.
type Collector struct {
	heap *Heap
	cfg  Config

	mark atomic.Uint32

	// collectMu serializes whole collection cycles: only one
	// MajorCollect or MinorCollect runs at a time for a given heap.
	collectMu sync.Mutex

	// yieldMu is held for read by every in-flight Mutation and taken
	// for write when a cycle snapshots the root and flips the current
	// mark, and again after each trace round to drain the re-scan
	// queue before deciding whether the trace is finished. A Go RWMutex gives the
	// "mutators pause, one writer proceeds" contract without a manual
	// spin-wait or cooperative polling flag.
	yieldMu sync.RWMutex

	// yieldRequested is set as soon as a cycle wants to start, ahead of
	// taking yieldMu, so a long-running Mutation body can notice via
	// Mutation.YieldRequested and break out of a loop cooperatively
	// instead of running to completion and only then discovering it
	// has to wait on yieldMu.
	yieldRequested atomic.Bool

	rescanMu sync.Mutex
	rescan   []TraceJob
	activeTC *traceController

	metrics metricsState
}

func newCollector(heap *Heap, cfg Config) *Collector {
	c := &Collector{heap: heap, cfg: cfg}
	// MarkNew means "free space, never stamped" and must never be the
	// current collection color (Mark.Next is undefined on it); the
	// first major cycle an Arena runs rotates away from MarkRed, so
	// objects allocated before any collection has happened are
	// already stamped with a legitimate rotating color.
	c.mark.Store(uint32(MarkRed))
	return c
}

// CurrentMark is the mark stamped on every object allocated right now.
func (c *Collector) CurrentMark() Mark { return Mark(c.mark.Load()) }

// yieldRequestedNow reports whether a cycle is currently trying to
// start, for Mutation.YieldRequested to poll.
func (c *Collector) yieldRequestedNow() bool { return c.yieldRequested.Load() }

func (c *Collector) setActiveTC(tc *traceController) {
	c.rescanMu.Lock()
	c.activeTC = tc
	c.rescanMu.Unlock()
}

// enqueueRescan records a write-barrier-triggered re-scan job, flushing
// immediately to the active tracer once the queue reaches
// cfg.MutatorShareMin.
func (c *Collector) enqueueRescan(j TraceJob) {
	c.rescanMu.Lock()
	c.rescan = append(c.rescan, j)
	var flushed []TraceJob
	if len(c.rescan) >= c.cfg.MutatorShareMin {
		flushed, c.rescan = c.rescan, nil
	}
	tc := c.activeTC
	c.rescanMu.Unlock()

	c.handOff(flushed, tc)
}

// flushRescan drains any remaining queued re-scans to the active
// tracer. Called when a Mutation ends, so a cycle never misses an edge
// published just before the mutator that wrote it returned.
func (c *Collector) flushRescan() {
	c.rescanMu.Lock()
	flushed := c.rescan
	c.rescan = nil
	tc := c.activeTC
	c.rescanMu.Unlock()

	c.handOff(flushed, tc)
}

// handOff forwards jobs to tc, if there is one willing to accept them.
// A nil tc (no cycle running) or a tc that has already stopped
// accepting jobs (mid-termination) both mean the jobs go back onto the
// queue instead of being dropped: runCycle drains that queue under
// yieldMu's write lock before it trusts a cycle has actually
// quiesced, so a rescan that misses its tracer here is not lost, only
// deferred to that check.
func (c *Collector) handOff(jobs []TraceJob, tc *traceController) {
	if len(jobs) == 0 {
		return
	}
	if tc != nil && tc.push(jobs) {
		return
	}
	c.rescanMu.Lock()
	c.rescan = append(c.rescan, jobs...)
	c.rescanMu.Unlock()
}

// drainRescan empties and returns any queued re-scan jobs without
// forwarding them to a tracer. Called with yieldMu held for write, so
// no concurrent Mutate can be adding to the queue underneath it.
func (c *Collector) drainRescan() []TraceJob {
	c.rescanMu.Lock()
	jobs := c.rescan
	c.rescan = nil
	c.rescanMu.Unlock()
	return jobs
}

// rootProducer returns the initial TraceJob(s) for a cycle given the
// mark that cycle is tracing toward.
type rootProducer func(mark Mark) []TraceJob

// MajorCollect runs a full concurrent mark-sweep cycle, blocking until
// it completes. It rotates the current mark first, so every object
// reachable from the root is traced again under the new mark and
// everything else is swept. MinorCollect and MajorCollect share one
// mechanism (runCycle) and one block pool; besides the mark rotation they
// differ in their metrics bucket and in the trigger policy the monitor
// applies to them.
func (c *Collector) MajorCollect(ctx context.Context, root rootProducer) error {
	return c.runCycle(ctx, root, true)
}

// MinorCollect runs a collection cycle without rotating the current
// mark. Objects that already carry that mark, which includes every
// object allocated since the last major collection, count as marked:
// the trace does not walk their outgoing handles and the sweep keeps
// their lines.
func (c *Collector) MinorCollect(ctx context.Context, root rootProducer) error {
	return c.runCycle(ctx, root, false)
}

// TryMajorCollect runs a collection only if none is already in
// progress; used by the monitor so a slow cycle never queues up a
// backlog of redundant requests.
func (c *Collector) TryMajorCollect(ctx context.Context, root rootProducer) bool {
	if !c.collectMu.TryLock() {
		return false
	}
	c.collectMu.Unlock()
	_ = c.MajorCollect(ctx, root)
	return true
}

// TryMinorCollect is TryMajorCollect's minor-cycle counterpart.
func (c *Collector) TryMinorCollect(ctx context.Context, root rootProducer) bool {
	if !c.collectMu.TryLock() {
		return false
	}
	c.collectMu.Unlock()
	_ = c.MinorCollect(ctx, root)
	return true
}

func (c *Collector) runCycle(ctx context.Context, root rootProducer, isMajor bool) error {
	c.collectMu.Lock()
	defer c.collectMu.Unlock()

	c.yieldRequested.Store(true)
	defer c.yieldRequested.Store(false)

	start := time.Now()
	c.metrics.setState(StateMarking)

	// Only a major collection rotates the current mark: a minor cycle
	// traces and sweeps under the same color so objects it doesn't
	// reach are left exactly as a concurrently running major cycle
	// would find them, not shifted to a color neither cycle stamped.
	current := c.CurrentMark()
	next := current
	if isMajor {
		next = current.Next()
	}
	tc := newTraceController(next, c.cfg.TraceChunkSize)

	// Briefly exclude mutators so the mark flip and root snapshot are
	// atomic with respect to any in-flight Mutate call. Allocations
	// that start after this unlock stamp their objects with next
	// directly — "allocate black" — so the tracer never needs to
	// chase a moving allocation frontier.
	c.yieldMu.Lock()
	c.setActiveTC(tc)
	c.mark.Store(uint32(next))
	tc.push(root(next))
	c.yieldMu.Unlock()

	for {
		err := tc.run(ctx, c.cfg.TracerThreads)
		if err != nil {
			c.yieldMu.Lock()
			c.setActiveTC(nil)
			c.drainRescan()
			c.yieldMu.Unlock()
			c.metrics.setState(StateWaiting)
			return err
		}

		// tc.run returning only means its workers went idle with its
		// own channel empty; it says nothing about a Mutate that
		// queued a rescan in the handoff between the last worker
		// finishing and this point. Taking yieldMu for write cannot
		// succeed until every such in-flight Mutate has released it
		// (flushing its rescans back onto the queue via handOff, since
		// tc is no longer accepting pushes by then), so once held here
		// the queue reflects every write barrier that fired during
		// this round. Empty means the cycle has actually quiesced;
		// non-empty means another round must trace those edges before
		// Sweep is allowed to run.
		c.yieldMu.Lock()
		leftover := c.drainRescan()
		if len(leftover) == 0 {
			c.setActiveTC(nil)
			c.yieldMu.Unlock()
			break
		}
		tc = newTraceController(next, c.cfg.TraceChunkSize)
		c.setActiveTC(tc)
		tc.push(leftover)
		c.yieldMu.Unlock()
	}

	c.metrics.setState(StateFinishing)
	c.heap.Store().Sweep(next)

	elapsed := time.Since(start)
	// The old-object count is block-granular: blocks the store owns
	// after this sweep, not counting empty blocks retained in the free
	// pool.
	bs := c.heap.Store()
	bs.freeMu.Lock()
	freeBlocks := int64(len(bs.free))
	bs.freeMu.Unlock()
	oldObjects := uint64(bs.LiveBlocks() - freeBlocks)
	arenaSize := c.heap.GetSize()
	if isMajor {
		c.metrics.recordMajor(elapsed, oldObjects, arenaSize)
	} else {
		c.metrics.recordMinor(elapsed, oldObjects, arenaSize)
	}
	c.metrics.setState(StateWaiting)
	return nil
}

// Metrics returns a snapshot of this collector's counters.
func (c *Collector) Metrics() Metrics {
	return c.metrics.snapshot(c.heap.GetSize())
}
