// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// traceController distributes TraceJobs across a fixed pool of worker
// goroutines and detects termination. Every discovered job is accounted
// for by wg before being handed to the jobs channel, so the closer
// goroutine's wg.Wait only returns once no worker can possibly produce
// more work — the standard fan-out/fan-in termination idiom, used here
// in place of hand-rolled active-worker/yield-flag bookkeeping.
//
// wg.Wait returning is not by itself a safe moment to close jobs: a
// producer outside the worker pool (a mutator's write barrier, via
// Collector.handOff) can call push concurrently with the close. closeMu
// makes "is this controller still accepting work" and "send the job" one
// atomic step, so push either fully succeeds before jobs is closed or
// observes closed and hands the job back instead of racing a send
// against the close.
type traceController struct {
	mark Mark
	jobs chan TraceJob
	wg   sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
}

func newTraceController(mark Mark, chunkSize int) *traceController {
	capacity := chunkSize * 4
	if capacity < 256 {
		capacity = 256
	}
	return &traceController{mark: mark, jobs: make(chan TraceJob, capacity)}
}

// push enqueues newly discovered jobs, crediting wg before any job can
// be observed as processed. It reports whether the jobs were accepted;
// false means this controller has already finished this round and the
// caller must hold onto the jobs itself.
func (tc *traceController) push(jobs []TraceJob) bool {
	if len(jobs) == 0 {
		return true
	}
	tc.closeMu.Lock()
	defer tc.closeMu.Unlock()
	if tc.closed {
		return false
	}
	tc.wg.Add(len(jobs))
	for _, j := range jobs {
		tc.jobs <- j
	}
	return true
}

// run starts workerCount goroutines draining tc.jobs until every job
// reachable from the jobs pushed before run was called has been
// processed, including jobs those jobs themselves discover.
func (tc *traceController) run(ctx context.Context, workerCount int) error {
	closed := make(chan struct{})
	go func() {
		tc.wg.Wait()
		tc.closeMu.Lock()
		tc.closed = true
		close(tc.jobs)
		tc.closeMu.Unlock()
		close(closed)
	}()

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		g.Go(func() error {
			for j := range tc.jobs {
				tr := newTracer(tc.mark)
				j.run(tr)
				tc.push(tr.jobs)
				tc.wg.Done()
			}
			return nil
		})
	}
	err := g.Wait()
	<-closed
	return err
}
