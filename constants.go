// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

// Layout constants. These are bit-exact: changing them changes the
// on-heap layout of every block and is not a compatible change.
const (
	// BlockSize is the size, in bytes, of a single aligned block.
	BlockSize = 32 * 1024

	// LineSize is the granularity at which a block's "hole" tracking
	// operates.
	LineSize = 128

	// LineCount is the number of lines in a block, including the line
	// whose mark byte is repurposed as the block-level summary mark.
	LineCount = BlockSize / LineSize

	// BlockCapacity is the number of bytes usable for payloads in a
	// block once the line-mark table has been carved out of it.
	BlockCapacity = BlockSize - LineCount

	// SmallCutoff is the largest allocation size classified Small.
	SmallCutoff = 128

	// MaxAllocSize is the hard ceiling on any single allocation request.
	MaxAllocSize = 1<<32 - 1
)
