// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"bytes"
	"encoding/binary"
	"log"
	"os"

	"github.com/golang/snappy"
)

// debugEnabled and traceEnabled gate this package's diagnostic logging
// with a simple env-var switch. This is the one place the package
// falls back to the standard log package rather than a third-party
// logger; see DESIGN.md.
var (
	debugEnabled = os.Getenv("GC_DEBUG") != ""
	traceEnabled = os.Getenv("GC_TRACE") != ""

	debugLog = log.New(os.Stderr, "gcarena: ", log.LstdFlags|log.Lmicroseconds)
)

func debugf(format string, args ...any) {
	if debugEnabled {
		debugLog.Printf(format, args...)
	}
}

func tracef(format string, args ...any) {
	if traceEnabled {
		debugLog.Printf(format, args...)
	}
}

// Verify walks the blocks in the recycle and rest pools and checks that
// no block has a marked line while its summary mark is still MarkNew,
// returning an *AllocError wrapping errVerifyFailed for the first such
// block. It is a debug-only consistency check in the
// spirit of lldb.Allocator.Verify and is not safe to call while a
// collection is in progress.
func (bs *BlockStore) Verify() error {
	check := func(bb *BumpBlock) error {
		anyMarked := false
		for i := 0; i < numPayloadLines; i++ {
			if bb.block.lineMark(i) != MarkNew {
				anyMarked = true
				break
			}
		}
		if anyMarked && bb.block.summaryMark() == MarkNew {
			return &AllocError{Cause: errVerifyFailed}
		}
		return nil
	}

	bs.recycleMu.Lock()
	recycle := append([]*BumpBlock(nil), bs.recycle...)
	bs.recycleMu.Unlock()
	for _, bb := range recycle {
		if err := check(bb); err != nil {
			return err
		}
	}

	bs.restMu.Lock()
	rest := append([]*BumpBlock(nil), bs.rest...)
	bs.restMu.Unlock()
	for _, bb := range rest {
		if err := check(bb); err != nil {
			return err
		}
	}
	return nil
}

var errVerifyFailed = &verifyError{}

type verifyError struct{}

func (*verifyError) Error() string { return "block summary mark inconsistent with its line marks" }

// DumpHeap writes a compact, compressed snapshot of a BlockStore's pool
// sizes and live footprint, for attaching to bug reports. The format is
// internal to this package; DumpHeap and LoadHeapDump are each other's
// only intended readers.
func (bs *BlockStore) DumpHeap() []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	writeInt64 := func(v int64) {
		binary.LittleEndian.PutUint64(scratch[:], uint64(v))
		buf.Write(scratch[:])
	}

	bs.freeMu.Lock()
	writeInt64(int64(len(bs.free)))
	bs.freeMu.Unlock()

	bs.recycleMu.Lock()
	writeInt64(int64(len(bs.recycle)))
	bs.recycleMu.Unlock()

	bs.restMu.Lock()
	writeInt64(int64(len(bs.rest)))
	bs.restMu.Unlock()

	bs.largeMu.Lock()
	writeInt64(int64(len(bs.large)))
	bs.largeMu.Unlock()

	writeInt64(bs.LiveBlocks())
	writeInt64(bs.ArenaSizeBytes())

	return snappy.Encode(nil, buf.Bytes())
}

// HeapDumpSummary is the decoded form of a DumpHeap snapshot.
type HeapDumpSummary struct {
	FreeBlocks    int64
	RecycleBlocks int64
	RestBlocks    int64
	LargeObjects  int64
	LiveBlocks    int64
	ArenaSize     int64
}

// LoadHeapDump decodes a snapshot produced by DumpHeap.
func LoadHeapDump(data []byte) (HeapDumpSummary, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return HeapDumpSummary{}, err
	}
	if len(raw) != 48 {
		return HeapDumpSummary{}, &AllocError{Cause: errVerifyFailed}
	}
	read := func(i int) int64 {
		return int64(binary.LittleEndian.Uint64(raw[i*8 : i*8+8]))
	}
	return HeapDumpSummary{
		FreeBlocks:    read(0),
		RecycleBlocks: read(1),
		RestBlocks:    read(2),
		LargeObjects:  read(3),
		LiveBlocks:    read(4),
		ArenaSize:     read(5),
	}, nil
}
