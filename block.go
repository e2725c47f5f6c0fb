// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import "sync/atomic"

// numPayloadLines is the number of LineSize-granular lines that fit in
// BlockCapacity. It is two less than LineCount: BlockCapacity leaves out
// LineCount bytes for the line-mark table, which is two lines' worth.
const numPayloadLines = BlockCapacity / LineSize

// Block is a single region (an ordinary Go allocation, with no
// BlockSize alignment): BlockCapacity bytes of
// payload plus one mark per line and one block-level summary mark. Go's
// sync/atomic has no single-byte atomic type, so line marks are kept as
// a sidecar array of atomic.Uint32 rather than packed into the raw
// buffer's trailing bytes; this is a storage-representation
// simplification only — a stale relaxed read can only pick a slightly
// stale hole, never corrupt one. A Block is owned by exactly one
// collection or one thread-local allocation context at a time.
type Block struct {
	data  [BlockCapacity]byte
	lines [numPayloadLines]atomic.Uint32
	sum   atomic.Uint32
}

// newBlock allocates a fresh Block with every line at MarkNew: a block
// in the free pool always has every line mark equal to NEW.
func newBlock() *Block {
	return &Block{}
}

func (b *Block) payload() []byte { return b.data[:] }

func (b *Block) lineMark(i int) Mark    { return Mark(b.lines[i].Load()) }
func (b *Block) setLineMark(i int, m Mark) { b.lines[i].Store(uint32(m)) }

func (b *Block) summaryMark() Mark      { return Mark(b.sum.Load()) }
func (b *Block) setSummaryMark(m Mark)  { b.sum.Store(uint32(m)) }

// markLines marks every line covering the half-open byte range
// [off, off+size) with m, and raises the block summary to m. Used by
// the tracer when an object in this block is marked.
func (b *Block) markLines(off, size int, m Mark) {
	first := off / LineSize
	last := (off + size - 1) / LineSize
	for i := first; i <= last && i < numPayloadLines; i++ {
		b.setLineMark(i, m)
	}
	b.setSummaryMark(m)
}

// BumpBlock decorates a Block with a bump-pointer cursor/limit pair.
// cursor decreases as allocations are handed out; limit is the lower
// bound of the current hole. Allocation direction is top-down so that
// the tail of the block (highest addresses) is filled first, matching
// the original immix design's bias toward leaving low addresses for
// later-discovered holes.
type BumpBlock struct {
	block  *Block
	cursor int
	limit  int
}

func newBumpBlock(b *Block) *BumpBlock {
	return &BumpBlock{block: b, cursor: BlockCapacity, limit: 0}
}

// tryAlloc attempts to bump-allocate size bytes aligned to align within
// the block's current hole. It returns the byte offset of the
// allocation and true on success.
func (bb *BumpBlock) tryAlloc(size, align int) (off int, ok bool) {
	candidate := alignDown(bb.cursor-size, align)
	if candidate < 0 || candidate < bb.limit {
		return 0, false
	}
	bb.cursor = candidate
	return candidate, true
}

// findHole scans line marks from limit toward offset 0 looking for a run
// of at least linesFor(size) consecutive NEW lines, bracketed on both
// sides by non-NEW lines (the bracket adjacent to the hole is
// conservatively treated as occupied). On success it resets
// (cursor, limit) to the hole's (high, low) offsets and returns true.
func (bb *BumpBlock) findHole(size int) bool {
	return bb.findHoleFrom(bb.limit/LineSize, size)
}

// findHoleFrom is findHole but scans starting just below line topLine
// instead of below the block's current limit; resetHole uses this to
// scan the whole block from the top after a sweep.
func (bb *BumpBlock) findHoleFrom(topLine, size int) bool {
	need := linesFor(size)
	highLine := topLine
	// Conservatively never consider the line the current limit sits in
	// as part of a fresh hole: it may be the bracket of the block we are
	// currently bump-filling from above.
	runEnd := -1
	for line := highLine - 1; line >= 0; line-- {
		if bb.block.lineMark(line) == MarkNew {
			if runEnd == -1 {
				runEnd = line
			}
			continue
		}
		if runEnd != -1 {
			runLen := runEnd - line
			// A run ending at a marked line must give up one more line
			// beyond the marked line itself: immix conservatively treats
			// the line following (in scan order) a marked line as live
			// too, since an object occupying that line may not fill it
			// to the boundary. Hence strict ">" and a two-line offset,
			// not one.
			if runLen > need {
				bb.limit = (line + 2) * LineSize
				bb.cursor = (runEnd + 1) * LineSize
				return true
			}
			runEnd = -1
		}
	}
	if runEnd != -1 {
		runLen := runEnd + 1
		if runLen >= need {
			bb.limit = 0
			bb.cursor = (runEnd + 1) * LineSize
			return true
		}
	}
	return false
}

// alloc finds room for (size, align) within this block, first by
// bumping the current hole and, failing that, by searching for a new
// hole and retrying once.
func (bb *BumpBlock) alloc(size, align int) (off int, ok bool) {
	if off, ok = bb.tryAlloc(size, align); ok {
		return off, true
	}
	if bb.findHole(size) {
		return bb.tryAlloc(size, align)
	}
	return 0, false
}

// resetHole rewrites every line whose mark is not mark to MarkNew. If the
// block summary mark is not mark (nothing in the block survived), it sets
// (cursor, limit) to (0, 0), leaving no bump hole; Sweep files such a
// block as free, and GetHead/GetOverflow wrap it in a fresh BumpBlock.
// Otherwise it repositions (cursor, limit) at the first hole found from
// the top of the block. This is the post-sweep reset that reclaims dead
// lines in bulk.
func (bb *BumpBlock) resetHole(mark Mark) {
	for i := 0; i < numPayloadLines; i++ {
		if bb.block.lineMark(i) != mark {
			bb.block.setLineMark(i, MarkNew)
		}
	}
	if bb.block.summaryMark() != mark {
		bb.cursor, bb.limit = 0, 0
		return
	}
	bb.cursor, bb.limit = 0, 0
	bb.findHoleFrom(numPayloadLines, 1)
}

// hasHole reports whether the block currently has any usable free space
// below its high-water mark, i.e. whether it belongs in the recycle
// pool rather than the rest pool after a sweep.
func (bb *BumpBlock) hasHole() bool {
	return bb.cursor > bb.limit
}
