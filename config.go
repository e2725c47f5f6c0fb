// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import "time"

// Config tunes the collector's tracer, monitor, and allocator behavior.
// Every field has a default supplied by DefaultConfig; the zero Config
// is not valid on its own, following the common pattern of an explicit
// defaulting constructor rather than relying on Go zero values.
type Config struct {
	// TracerThreads is the number of goroutines draining the trace
	// queue during a collection.
	TracerThreads int

	// TraceChunkSize sizes each trace round's job channel: its
	// capacity is four times this value, and at least 256
	// (trace_chunk_size).
	TraceChunkSize int

	// TraceShareMin is kept for configuration compatibility
	// (trace_share_min); the tracer does not read it. Workers push
	// every job they discover to the shared channel.
	TraceShareMin int

	// TraceShareRatio is kept for configuration compatibility
	// (trace_share_ratio); the tracer does not read it.
	TraceShareRatio float64

	// TraceWaitTime is kept for configuration compatibility
	// (trace_wait_time_ms); the tracer does not read it. Idle workers
	// block on the job channel until it is closed.
	TraceWaitTime time.Duration

	// MutatorShareMin is the length of the collector's shared re-scan
	// queue at which a write barrier hands the queued jobs to the
	// running tracer instead of batching further (mutator_share_min).
	MutatorShareMin int

	// MonitorOn enables the background monitor goroutine
	// (monitor_on).
	MonitorOn bool

	// MonitorWaitTime is the monitor's poll interval
	// (monitor_wait_time_ms).
	MonitorWaitTime time.Duration

	// MonitorArenaSizeRatioTrigger requests a minor collection once
	// the arena has grown by this multiple since the last minor
	// collection (monitor_arena_size_ratio_trigger).
	MonitorArenaSizeRatioTrigger float64

	// MonitorMaxOldGrowthRate requests a major collection once the
	// surviving old-object count has grown by this multiple since the
	// last major collection (monitor_max_old_growth_rate).
	MonitorMaxOldGrowthRate float64

	// MutatorBudget is a per-Mutate allocation budget (see DESIGN.md).
	// Nothing reads it: checkpoint only counts allocations, and neither
	// it nor Mutation.YieldRequested compares that count with the
	// budget, so no value limits a Mutate call.
	MutatorBudget int

	// FreeBlockRetainQuota bounds how many swept blocks a BlockStore
	// keeps resident in its free pool per sweep pass.
	FreeBlockRetainQuota int
}

// DefaultConfig returns the package's default tuning.
func DefaultConfig() Config {
	return Config{
		TracerThreads:                2,
		TraceChunkSize:               100,
		TraceShareMin:                50,
		TraceShareRatio:              0.5,
		TraceWaitTime:                5 * time.Millisecond,
		MutatorShareMin:              1000,
		MonitorOn:                    true,
		MonitorWaitTime:              10 * time.Millisecond,
		MonitorArenaSizeRatioTrigger: 2.0,
		MonitorMaxOldGrowthRate:      10.0,
		MutatorBudget:                0,
		FreeBlockRetainQuota:         64,
	}
}
