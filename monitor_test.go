// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"context"
	"testing"
)

func TestMonitorDisabledDoesNotStartGoroutine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitorOn = false
	heap := NewHeap(4)

	m := startMonitor(cfg, heap,
		func(ctx context.Context) bool { return false },
		func(ctx context.Context) bool { return false },
	)
	m.Stop() // must return immediately, not block on a never-started goroutine.
}

func TestMonitorPollTriggersMinorOnGrowth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonitorOn = false // no goroutine: poll is called directly below
	heap := NewHeap(4)
	heap.Store().newBumpBlock() // establish a non-zero baseline size

	m := &monitor{cfg: cfg, heap: heap,
		triggerMinor: func(ctx context.Context) bool { return true },
		triggerMajor: func(ctx context.Context) bool { return false },
		stop:         make(chan struct{}),
	}
	m.lastMinorSize = heap.GetSize()
	for i := 0; i < 8; i++ {
		heap.Store().newBumpBlock()
	}
	triggered := false
	origTrigger := m.triggerMinor
	m.triggerMinor = func(ctx context.Context) bool {
		triggered = true
		return origTrigger(ctx)
	}
	m.poll()
	if !triggered {
		t.Error("expected poll to trigger a minor collection after the arena grew past the ratio trigger")
	}
}
