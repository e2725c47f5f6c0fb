// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"sync"
	"sync/atomic"
)

// largeObject is the side-list entry for an allocation too big for any
// block. Its header field points at the owning box's embedded Header,
// the Go-idiomatic stand-in for "a single preceding mark byte": the
// typed box already carries one, a large object just needs a handle to
// find it again during sweep.
type largeObject struct {
	header *Header
	size   int
}

func (lo *largeObject) loadMark() Mark   { return lo.header.loadMark() }
func (lo *largeObject) storeMark(m Mark) { lo.header.storeMark(m) }

// BlockStore is the thread-safe custodian of every block and large
// object belonging to one Heap. Its four pools are independently
// mutex-guarded so that a mutator fetching a head block never blocks on
// a sweep draining an unrelated pool.
type BlockStore struct {
	freeMu    sync.Mutex
	free      []*Block

	recycleMu sync.Mutex
	recycle   []*BumpBlock

	restMu    sync.Mutex
	rest      []*BumpBlock

	largeMu sync.Mutex
	large   []*largeObject

	sweeping  atomic.Bool
	sweepLock sync.Mutex

	liveBlocks atomic.Int64

	// freeRetainQuota bounds how many blocks sweep returns to the free
	// pool in a single pass, so a steady-state workload doesn't thrash
	// the system allocator by releasing and re-requesting the same
	// blocks every cycle.
	freeRetainQuota int
}

// NewBlockStore returns an empty BlockStore. retainQuota is the maximum
// number of blocks kept resident in the free pool across a single sweep
// pass; additional freed blocks are released for the host runtime to
// reclaim.
func NewBlockStore(retainQuota int) *BlockStore {
	if retainQuota <= 0 {
		retainQuota = 64
	}
	return &BlockStore{freeRetainQuota: retainQuota}
}

// IsSweeping reports whether a sweep currently holds the store's
// exclusive sweep lock.
func (bs *BlockStore) IsSweeping() bool { return bs.sweeping.Load() }

// LiveBlocks returns the number of blocks currently owned by this store
// across all four pools.
func (bs *BlockStore) LiveBlocks() int64 { return bs.liveBlocks.Load() }

func (bs *BlockStore) newBumpBlock() *BumpBlock {
	bs.liveBlocks.Add(1)
	return newBumpBlock(newBlock())
}

// GetHead returns a block to bump-fill, preferring a recycle block (one
// with a known hole) over a fresh free block over allocating a new one.
func (bs *BlockStore) GetHead() *BumpBlock {
	bs.recycleMu.Lock()
	if n := len(bs.recycle); n > 0 {
		b := bs.recycle[n-1]
		bs.recycle = bs.recycle[:n-1]
		bs.recycleMu.Unlock()
		return b
	}
	bs.recycleMu.Unlock()

	bs.freeMu.Lock()
	if n := len(bs.free); n > 0 {
		blk := bs.free[n-1]
		bs.free = bs.free[:n-1]
		bs.freeMu.Unlock()
		return newBumpBlock(blk)
	}
	bs.freeMu.Unlock()

	return bs.newBumpBlock()
}

// GetOverflow returns a block with no holes used yet, preferring a free
// block over allocating a new one.
func (bs *BlockStore) GetOverflow() *BumpBlock {
	bs.freeMu.Lock()
	if n := len(bs.free); n > 0 {
		blk := bs.free[n-1]
		bs.free = bs.free[:n-1]
		bs.freeMu.Unlock()
		return newBumpBlock(blk)
	}
	bs.freeMu.Unlock()

	return bs.newBumpBlock()
}

// PushRecycle returns a block with remaining holes to the recycle pool.
func (bs *BlockStore) PushRecycle(b *BumpBlock) {
	bs.recycleMu.Lock()
	bs.recycle = append(bs.recycle, b)
	bs.recycleMu.Unlock()
}

// PushRest returns a block with no usable holes to the rest pool.
func (bs *BlockStore) PushRest(b *BumpBlock) {
	bs.restMu.Lock()
	bs.rest = append(bs.rest, b)
	bs.restMu.Unlock()
}

// CreateLarge registers a standalone large object backed by header
// (which the caller has already allocated, typically via new(box[T]))
// and pushes it onto the large side list.
func (bs *BlockStore) CreateLarge(header *Header, size int) *largeObject {
	lo := &largeObject{header: header, size: size}
	bs.largeMu.Lock()
	bs.large = append(bs.large, lo)
	bs.largeMu.Unlock()
	return lo
}

// Sweep reclaims unmarked space. It drains recycle and rest, resets each
// block's holes under mark, and re-files it into recycle/rest/free
// according to its post-reset state; it drains large, keeping only
// objects whose mark equals mark; and it trims the free pool down to
// freeRetainQuota. Sweep takes the store-wide exclusive sweep lock for
// its whole duration.
func (bs *BlockStore) Sweep(mark Mark) {
	bs.sweepLock.Lock()
	defer bs.sweepLock.Unlock()
	bs.sweeping.Store(true)
	defer bs.sweeping.Store(false)

	bs.recycleMu.Lock()
	drained := bs.recycle
	bs.recycle = nil
	bs.recycleMu.Unlock()

	bs.restMu.Lock()
	drained = append(drained, bs.rest...)
	bs.rest = nil
	bs.restMu.Unlock()

	var newRecycle, newRest []*BumpBlock
	var freed []*Block
	for _, bb := range drained {
		bb.resetHole(mark)
		switch {
		case bb.block.summaryMark() == mark && bb.hasHole():
			newRecycle = append(newRecycle, bb)
		case bb.block.summaryMark() == mark:
			newRest = append(newRest, bb)
		default:
			freed = append(freed, bb.block)
		}
	}

	bs.recycleMu.Lock()
	bs.recycle = append(bs.recycle, newRecycle...)
	bs.recycleMu.Unlock()

	bs.restMu.Lock()
	bs.rest = append(bs.rest, newRest...)
	bs.restMu.Unlock()

	bs.largeMu.Lock()
	keep := bs.large[:0]
	for _, lo := range bs.large {
		if lo.loadMark() == mark {
			keep = append(keep, lo)
		}
	}
	bs.large = keep
	bs.largeMu.Unlock()

	bs.freeMu.Lock()
	bs.free = append(bs.free, freed...)
	if over := len(bs.free) - bs.freeRetainQuota; over > 0 {
		bs.free = bs.free[over:]
		bs.liveBlocks.Add(-int64(over))
	}
	bs.freeMu.Unlock()
}

// ArenaSizeBytes returns the current heap footprint: block_count *
// BlockSize plus the sum of every large object's size.
func (bs *BlockStore) ArenaSizeBytes() int64 {
	total := bs.liveBlocks.Load() * BlockSize

	bs.largeMu.Lock()
	for _, lo := range bs.large {
		total += int64(lo.size)
	}
	bs.largeMu.Unlock()
	return total
}
