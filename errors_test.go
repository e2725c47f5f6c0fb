// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import (
	"errors"
	"testing"
)

func TestAllocErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &AllocError{Size: 8, Align: 8, Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestOverflowErrorMessage(t *testing.T) {
	err := &OverflowError{Size: MaxAllocSize + 1}
	if err.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestInvariantViolationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected invariantViolation to panic")
		}
	}()
	invariantViolation("unreachable: %d", 1)
}
