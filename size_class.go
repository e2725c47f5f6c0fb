// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import "github.com/cznic/mathutil"

// sizeClass discriminates the three allocation paths. It is encoded
// directly into Header so that sweep and the allocator can dispatch
// without recomputing thresholds from the raw size.
type sizeClass uint8

const (
	classSmall sizeClass = iota
	classMedium
	classLarge
)

// classify returns the size class for a payload of n bytes: small
// <= 128, medium <= BlockCapacity, large otherwise (up to MaxAllocSize).
func classify(n int) sizeClass {
	switch {
	case n <= SmallCutoff:
		return classSmall
	case n <= BlockCapacity:
		return classMedium
	default:
		return classLarge
	}
}

// linesFor returns the number of LineSize-granular lines a payload of n
// bytes occupies, rounding up.
func linesFor(n int) int {
	return mathutil.Max((n+LineSize-1)/LineSize, 1)
}

// alignUp rounds off up to the next multiple of align, which must be a
// power of two.
func alignUp(off, align int) int {
	return (off + align - 1) &^ (align - 1)
}

// alignDown rounds off down to the previous multiple of align, which
// must be a power of two.
func alignDown(off, align int) int {
	return off &^ (align - 1)
}
