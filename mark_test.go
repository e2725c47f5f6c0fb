// Copyright 2024 The gcarena Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcarena

import "testing"

func TestMarkNextRotation(t *testing.T) {
	cases := []struct {
		from, want Mark
	}{
		{MarkRed, MarkGreen},
		{MarkGreen, MarkBlue},
		{MarkBlue, MarkRed},
	}
	for _, c := range cases {
		if got := c.from.Next(); got != c.want {
			t.Errorf("%v.Next() = %v, want %v", c.from, got, c.want)
		}
	}
}

func TestMarkNextOnNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling Next on MarkNew")
		}
	}()
	MarkNew.Next()
}

func TestMarkValid(t *testing.T) {
	for m := MarkNew; m <= MarkBlue; m++ {
		if !m.valid() {
			t.Errorf("Mark(%d).valid() = false, want true", m)
		}
	}
	if Mark(99).valid() {
		t.Error("Mark(99).valid() = true, want false")
	}
}

func TestMarkString(t *testing.T) {
	if MarkRed.String() != "RED" {
		t.Errorf("MarkRed.String() = %q", MarkRed.String())
	}
	if Mark(99).String() != "INVALID" {
		t.Errorf("Mark(99).String() = %q", Mark(99).String())
	}
}
