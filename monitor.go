// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"context"
	"sync"
	"time"
)

// monitor is the background goroutine that requests collections based
// on heap growth instead of waiting for a caller to ask explicitly. It
// is disabled by Config.MonitorOn = false, for callers that prefer to
// call Arena.MajorCollect/MinorCollect on their own schedule.
type monitor struct {
	cfg  Config
	heap *Heap

	triggerMinor func(ctx context.Context) bool
	triggerMajor func(ctx context.Context) bool

	stop chan struct{}
	wg   sync.WaitGroup

	lastMinorSize int64
	lastOldCount  uint64
}

func startMonitor(cfg Config, heap *Heap, triggerMinor, triggerMajor func(ctx context.Context) bool) *monitor {
	m := &monitor{
		cfg:          cfg,
		heap:         heap,
		triggerMinor: triggerMinor,
		triggerMajor: triggerMajor,
		stop:         make(chan struct{}),
	}
	if !cfg.MonitorOn {
		return m
	}
	m.lastMinorSize = heap.GetSize()
	m.wg.Add(1)
	go m.run()
	return m
}

func (m *monitor) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.MonitorWaitTime)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *monitor) poll() {
	size := m.heap.GetSize()
	if m.lastMinorSize > 0 && float64(size) >= float64(m.lastMinorSize)*m.cfg.MonitorArenaSizeRatioTrigger {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if m.triggerMinor(ctx) {
			m.lastMinorSize = m.heap.GetSize()
		}
		cancel()
	}

	old := uint64(m.heap.Store().LiveBlocks())
	if m.lastOldCount > 0 && float64(old) >= float64(m.lastOldCount)*m.cfg.MonitorMaxOldGrowthRate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if m.triggerMajor(ctx) {
			m.lastOldCount = uint64(m.heap.Store().LiveBlocks())
		}
		cancel()
	} else if m.lastOldCount == 0 {
		m.lastOldCount = old
	}
}

// Stop halts the monitor goroutine, if one was started, and waits for
// it to exit.
func (m *monitor) Stop() {
	if !m.cfg.MonitorOn {
		return
	}
	close(m.stop)
	m.wg.Wait()
}
