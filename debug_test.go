// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import "testing"

func TestHeapDumpRoundTrip(t *testing.T) {
	bs := NewBlockStore(4)
	bs.GetHead()
	var hdr Header
	hdr.storeMark(MarkRed)
	bs.CreateLarge(&hdr, 4096)

	data := bs.DumpHeap()
	summary, err := LoadHeapDump(data)
	if err != nil {
		t.Fatalf("LoadHeapDump: %v", err)
	}
	if summary.LiveBlocks != bs.LiveBlocks() {
		t.Errorf("LiveBlocks = %d, want %d", summary.LiveBlocks, bs.LiveBlocks())
	}
	if summary.LargeObjects != 1 {
		t.Errorf("LargeObjects = %d, want 1", summary.LargeObjects)
	}
	if summary.ArenaSize != bs.ArenaSizeBytes() {
		t.Errorf("ArenaSize = %d, want %d", summary.ArenaSize, bs.ArenaSizeBytes())
	}
}

func TestBlockStoreVerifyCleanStore(t *testing.T) {
	bs := NewBlockStore(4)
	bb := bs.GetHead()
	off, ok := bb.alloc(LineSize, 8)
	if !ok {
		t.Fatal("alloc failed")
	}
	bb.block.markLines(off, LineSize, MarkRed)
	bs.PushRest(bb)

	if err := bs.Verify(); err != nil {
		t.Errorf("Verify() = %v, want nil", err)
	}
}
